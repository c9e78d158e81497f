package quality

import "strings"

// Preference is an ordered list of resolution codes, most desired first.
type Preference []Quality

// DefaultPreference ranks the common tiers from 4K down to 360P.
var DefaultPreference = Preference{
	Quality4K,
	Quality1080P60,
	Quality1080PPlus,
	Quality1080P,
	Quality720P,
	Quality480P,
	Quality360P,
}

// Select returns the first code of the preference list that is available.
//
// When nothing matches, the first available code is returned: the host lists
// its tiers best first, and that ordering is trusted as the fallback. An empty
// available set yields QualityUnknown.
func (p Preference) Select(available []Quality) Quality {
	if len(available) == 0 {
		return QualityUnknown
	}
	for _, want := range p {
		for _, q := range available {
			if q == want {
				return q
			}
		}
	}
	return available[0]
}

// Clone returns a copy of the preference list.
func (p Preference) Clone() Preference {
	if p == nil {
		return nil
	}
	clone := make(Preference, len(p))
	copy(clone, p)
	return clone
}

func (p Preference) String() string {
	parts := make([]string, 0, len(p))
	for _, q := range p {
		parts = append(parts, q.String())
	}
	return strings.Join(parts, ",")
}

// PreferenceParseString parses a comma separated list such as "4K,1080P60,80".
func PreferenceParseString(value string) (Preference, error) {
	var p Preference
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		var q Quality
		if err := q.UnmarshalText([]byte(part)); err != nil {
			return nil, err
		}
		p = append(p, q)
	}
	if len(p) == 0 {
		return nil, ErrUnknownQuality
	}
	return p, nil
}

// Package quality describes Bilibili resolution codes and how to pick one.
package quality

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Quality is a Bilibili resolution code (the "qn" parameter).
//
// Codes outside of the known constants are still valid: the host page may
// offer tiers this program does not know about.
type Quality int

const (
	// QualityUnknown represents an unknown quality.
	QualityUnknown Quality = 0
	// Quality240P represents the 240P tier.
	Quality240P Quality = 6
	// Quality360P represents the 360P tier.
	Quality360P Quality = 16
	// Quality480P represents the 480P tier.
	Quality480P Quality = 32
	// Quality720P represents the 720P tier.
	Quality720P Quality = 64
	// Quality720P60 represents the 720P 60fps tier.
	Quality720P60 Quality = 74
	// Quality1080P represents the 1080P tier.
	Quality1080P Quality = 80
	// Quality1080PPlus represents the high bitrate 1080P tier.
	Quality1080PPlus Quality = 112
	// Quality1080P60 represents the 1080P 60fps tier.
	Quality1080P60 Quality = 116
	// Quality4K represents the 4K tier.
	Quality4K Quality = 120
	// QualityHDR represents the HDR tier.
	QualityHDR Quality = 125
	// QualityDolbyVision represents the Dolby Vision tier.
	QualityDolbyVision Quality = 126
	// Quality8K represents the 8K tier.
	Quality8K Quality = 127
)

// ErrUnknownQuality is returned when the quality cannot be parsed.
var ErrUnknownQuality = errors.New("unknown quality")

var names = map[Quality]string{
	Quality240P:        "240P",
	Quality360P:        "360P",
	Quality480P:        "480P",
	Quality720P:        "720P",
	Quality720P60:      "720P60",
	Quality1080P:       "1080P",
	Quality1080PPlus:   "1080P+",
	Quality1080P60:     "1080P60",
	Quality4K:          "4K",
	QualityHDR:         "HDR",
	QualityDolbyVision: "DOLBY",
	Quality8K:          "8K",
}

// QualityParseString parses a name ("1080P60", "4k") or a positive numeric code ("116").
func QualityParseString(value string) Quality {
	value = strings.ToUpper(strings.TrimSpace(value))
	switch value {
	case "1080PPLUS":
		return Quality1080PPlus
	case "DOLBYVISION", "DOLBY VISION":
		return QualityDolbyVision
	}
	for q, name := range names {
		if name == value {
			return q
		}
	}
	if code, err := strconv.Atoi(value); err == nil && code > 0 {
		return Quality(code)
	}
	return QualityUnknown
}

// UnmarshalText implements the encoding.TextUnmarshaler interface.
func (q *Quality) UnmarshalText(text []byte) error {
	*q = QualityParseString(string(text))
	if *q == QualityUnknown {
		return ErrUnknownQuality
	}
	return nil
}

// UnmarshalJSON accepts both the numeric code the page reports and a string.
func (q *Quality) UnmarshalJSON(b []byte) error {
	var code int
	if err := json.Unmarshal(b, &code); err == nil {
		*q = Quality(code)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return q.UnmarshalText([]byte(s))
}

// String implements the fmt.Stringer interface.
func (q Quality) String() string {
	if name, ok := names[q]; ok {
		return name
	}
	if q == QualityUnknown {
		return "unknown"
	}
	return strconv.Itoa(int(q))
}

// Known returns true if the code is one of the documented tiers.
func (q Quality) Known() bool {
	_, ok := names[q]
	return ok
}

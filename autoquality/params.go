package autoquality

import (
	"encoding/json"
	"time"

	"github.com/Darkness4/bili-auto-quality/quality"
)

// Params represents the parameters of the automation.
type Params struct {
	Preference   quality.Preference `yaml:"preference,omitempty"`
	PollInterval time.Duration      `yaml:"pollInterval,omitempty"`
	MaxAttempts  int                `yaml:"maxAttempts,omitempty"`
	WaitReady    bool               `yaml:"waitReady,omitempty"`
	ReadyTimeout time.Duration      `yaml:"readyTimeout,omitempty"`
	Labels       map[string]string  `yaml:"labels,omitempty"`
}

func (p *Params) String() string {
	out, _ := json.MarshalIndent(p, "", "  ")
	return string(out)
}

// OptionalParams represents the optional parameters of the automation.
type OptionalParams struct {
	Preference   quality.Preference `yaml:"preference,omitempty"`
	PollInterval *time.Duration     `yaml:"pollInterval,omitempty"`
	MaxAttempts  *int               `yaml:"maxAttempts,omitempty"`
	WaitReady    *bool              `yaml:"waitReady,omitempty"`
	ReadyTimeout *time.Duration     `yaml:"readyTimeout,omitempty"`
	Labels       map[string]string  `yaml:"labels,omitempty"`
}

// DefaultParams is the default set of parameters.
var DefaultParams = Params{
	Preference:   quality.DefaultPreference,
	PollInterval: 500 * time.Millisecond,
	MaxAttempts:  40,
	WaitReady:    true,
	ReadyTimeout: 30 * time.Second,
	Labels:       nil,
}

// Override applies the values from the OptionalParams to the Params.
func (override *OptionalParams) Override(params *Params) {
	if len(override.Preference) > 0 {
		params.Preference = override.Preference.Clone()
	}
	if override.PollInterval != nil {
		params.PollInterval = *override.PollInterval
	}
	if override.MaxAttempts != nil {
		params.MaxAttempts = *override.MaxAttempts
	}
	if override.WaitReady != nil {
		params.WaitReady = *override.WaitReady
	}
	if override.ReadyTimeout != nil {
		params.ReadyTimeout = *override.ReadyTimeout
	}
	if override.Labels != nil {
		if params.Labels == nil {
			params.Labels = make(map[string]string)
		}
		for k, v := range override.Labels {
			params.Labels[k] = v
		}
	}
}

// Clone creates a deep copy of the Params struct.
func (p *Params) Clone() *Params {
	clone := Params{
		Preference:   p.Preference.Clone(),
		PollInterval: p.PollInterval,
		MaxAttempts:  p.MaxAttempts,
		WaitReady:    p.WaitReady,
		ReadyTimeout: p.ReadyTimeout,
	}

	if p.Labels != nil {
		clone.Labels = make(map[string]string)
		for k, v := range p.Labels {
			clone.Labels[k] = v
		}
	}

	return &clone
}

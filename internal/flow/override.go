package flow

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration decodes YAML scalars like "90s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if parsed < 0 {
		return fmt.Errorf("duration %q must be >= 0", raw)
	}
	*d = Duration(parsed)
	return nil
}

// StepOverride adjusts one catalog step. Nil fields leave the default
// alone.
type StepOverride struct {
	Fatal   *bool     `yaml:"fatal,omitempty"`
	Timeout *Duration `yaml:"timeout,omitempty"`
	Retries *int      `yaml:"retries,omitempty"`
	Backoff *Duration `yaml:"backoff,omitempty"`
	Skip    *bool     `yaml:"skip,omitempty"`
}

// Overrides tunes catalog steps per environment without a rebuild:
//
//	steps:
//	  await_snapshot:
//	    timeout: 10m
//	  submit_otp:
//	    skip: true
type Overrides struct {
	Steps map[string]StepOverride `yaml:"steps"`
}

func ParseOverrides(input []byte) (Overrides, error) {
	var o Overrides
	if err := yaml.Unmarshal(input, &o); err != nil {
		return Overrides{}, fmt.Errorf("decode overrides: %w", err)
	}
	return o, nil
}

// LoadOverrides reads an override file. An empty path means no
// overrides.
func LoadOverrides(path string) (Overrides, error) {
	if strings.TrimSpace(path) == "" {
		return Overrides{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read overrides: %w", err)
	}
	return ParseOverrides(raw)
}

// Apply returns a copy of steps with the overrides folded in. Targeting
// a step the catalog does not have is an error, as is any override that
// leaves the flow invalid.
func Apply(steps []Step, o Overrides) ([]Step, error) {
	if len(o.Steps) == 0 {
		return steps, nil
	}

	byName := make(map[string]int, len(steps))
	for i, s := range steps {
		byName[s.Name] = i
	}

	out := make([]Step, len(steps))
	copy(out, steps)
	for name, ov := range o.Steps {
		i, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("override targets unknown step %q", name)
		}
		if ov.Fatal != nil {
			out[i].Fatal = *ov.Fatal
		}
		if ov.Timeout != nil {
			out[i].Timeout = time.Duration(*ov.Timeout)
		}
		if ov.Retries != nil {
			out[i].Retries = *ov.Retries
		}
		if ov.Backoff != nil {
			out[i].Backoff = time.Duration(*ov.Backoff)
		}
		if ov.Skip != nil {
			out[i].Skip = *ov.Skip
		}
	}

	if err := Validate(out); err != nil {
		return nil, fmt.Errorf("overridden flow invalid: %w", err)
	}
	return out, nil
}

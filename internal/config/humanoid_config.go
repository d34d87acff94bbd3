// File: internal/config/humanoid_config.go
// This file defines the HumanoidConfig struct: the delay ranges that pace
// form interaction so that typing and clicking look like a person at a keyboard.
// Every range is expressed in milliseconds and sampled uniformly.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// MsRange is an inclusive range of milliseconds.
type MsRange struct {
	Min int `mapstructure:"min" yaml:"min"`
	Max int `mapstructure:"max" yaml:"max"`
}

// Validate rejects negative or inverted ranges.
func (r MsRange) Validate() error {
	if r.Min < 0 || r.Max < 0 {
		return fmt.Errorf("range must not be negative (min=%d, max=%d)", r.Min, r.Max)
	}
	if r.Min > r.Max {
		return fmt.Errorf("range min %d exceeds max %d", r.Min, r.Max)
	}
	return nil
}

// HumanoidConfig holds the pacing used while filling and submitting forms.
type HumanoidConfig struct {
	// KeyDelay is the pause after each typed character.
	KeyDelay MsRange `mapstructure:"key_delay" yaml:"key_delay"`
	// KeyHold is how long a key stays pressed between keyDown and keyUp.
	KeyHold         MsRange `mapstructure:"key_hold" yaml:"key_hold"`
	FirstFieldPause MsRange `mapstructure:"first_field_pause" yaml:"first_field_pause"`
	FieldPause      MsRange `mapstructure:"field_pause" yaml:"field_pause"`
	TermsPause      MsRange `mapstructure:"terms_pause" yaml:"terms_pause"`
	SubmitPause     MsRange `mapstructure:"submit_pause" yaml:"submit_pause"`
	EnterPause      MsRange `mapstructure:"enter_pause" yaml:"enter_pause"`
	DefaultPause    MsRange `mapstructure:"default_pause" yaml:"default_pause"`
}

// Validate checks every range in the humanoid configuration.
func (h *HumanoidConfig) Validate() error {
	ranges := []struct {
		name string
		r    MsRange
	}{
		{"key_delay", h.KeyDelay},
		{"key_hold", h.KeyHold},
		{"first_field_pause", h.FirstFieldPause},
		{"field_pause", h.FieldPause},
		{"terms_pause", h.TermsPause},
		{"submit_pause", h.SubmitPause},
		{"enter_pause", h.EnterPause},
		{"default_pause", h.DefaultPause},
	}
	for _, entry := range ranges {
		if err := entry.r.Validate(); err != nil {
			return fmt.Errorf("%s: %w", entry.name, err)
		}
	}
	return nil
}

func setHumanoidDefaults(v *viper.Viper) {
	set := func(key string, lo, hi int) {
		v.SetDefault("browser.humanoid."+key+".min", lo)
		v.SetDefault("browser.humanoid."+key+".max", hi)
	}
	set("key_delay", 30, 80)
	set("key_hold", 15, 45)
	set("first_field_pause", 300, 600)
	set("field_pause", 200, 500)
	set("terms_pause", 300, 700)
	set("submit_pause", 500, 1000)
	set("enter_pause", 300, 700)
	set("default_pause", 300, 800)
}

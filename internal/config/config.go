package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/jspindler/takt/internal/domain"
)

// PriorityWeights weight the four priority sub-scores. They should sum to
// 1.0; the calculator warns (but proceeds) when they do not.
type PriorityWeights struct {
	DueDate    float64 `mapstructure:"due_date"`
	Customer   float64 `mapstructure:"customer"`
	Dependency float64 `mapstructure:"dependency"`
	Setup      float64 `mapstructure:"setup"`
}

func (w PriorityWeights) Sum() float64 {
	return w.DueDate + w.Customer + w.Dependency + w.Setup
}

// MatchWeights weight the four machine-match axes.
type MatchWeights struct {
	Capability float64 `mapstructure:"capability"`
	Load       float64 `mapstructure:"load"`
	Setup      float64 `mapstructure:"setup"`
	Efficiency float64 `mapstructure:"efficiency"`
}

func (w MatchWeights) Sum() float64 {
	return w.Capability + w.Load + w.Setup + w.Efficiency
}

// BreakWindow is a daily recurring pause, "HH:MM" in facility local time.
type BreakWindow struct {
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
}

type EmergencyPolicy struct {
	AlwaysRequireApproval bool    `mapstructure:"always_require_approval"`
	MaxUnapprovedHours    float64 `mapstructure:"max_unapproved_hours"`
}

// FacilityConfig carries the facility-wide scheduling defaults. Constructors
// take it explicitly; there are no package-level defaults hiding in the
// engine.
type FacilityConfig struct {
	WorkStart   string         `mapstructure:"work_start"`
	WorkEnd     string         `mapstructure:"work_end"`
	WorkingDays []time.Weekday `mapstructure:"working_days"`
	Breaks      []BreakWindow  `mapstructure:"breaks"`

	HorizonDays       int     `mapstructure:"horizon_days"`
	MaxSlotCandidates int     `mapstructure:"max_slot_candidates"`
	BufferPct         float64 `mapstructure:"buffer_pct"`

	PriorityWeights PriorityWeights `mapstructure:"priority_weights"`
	MatchWeights    MatchWeights    `mapstructure:"match_weights"`

	Emergency EmergencyPolicy `mapstructure:"emergency"`
}

// DefaultWorkingHours returns the facility fallback calendar for machines
// that carry none of their own.
func (c FacilityConfig) DefaultWorkingHours() domain.WorkingHours {
	return domain.WorkingHours{
		Start:       c.WorkStart,
		End:         c.WorkEnd,
		WorkingDays: c.WorkingDays,
	}
}

// Default returns the stock facility configuration: 08:00-17:00 Mon-Fri
// with a lunch break, a 14 working-day search horizon, and the standard
// scoring weights.
func Default() FacilityConfig {
	return FacilityConfig{
		WorkStart:   "08:00",
		WorkEnd:     "17:00",
		WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Breaks:      []BreakWindow{{Start: "12:00", End: "13:00"}},

		HorizonDays:       14,
		MaxSlotCandidates: 5,
		BufferPct:         0.10,

		PriorityWeights: PriorityWeights{DueDate: 0.4, Customer: 0.3, Dependency: 0.2, Setup: 0.1},
		MatchWeights:    MatchWeights{Capability: 0.4, Load: 0.3, Setup: 0.2, Efficiency: 0.1},

		Emergency: EmergencyPolicy{MaxUnapprovedHours: 8},
	}
}

// Load reads the facility configuration from path. An empty path searches
// for takt.yaml in the working directory and $HOME/.config/takt; a missing
// file is not an error and yields the defaults.
func Load(path string) (FacilityConfig, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("takt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/takt")
	}

	def := Default()
	v.SetDefault("work_start", def.WorkStart)
	v.SetDefault("work_end", def.WorkEnd)
	v.SetDefault("working_days", []int{1, 2, 3, 4, 5})
	v.SetDefault("breaks", []map[string]string{{"start": "12:00", "end": "13:00"}})
	v.SetDefault("horizon_days", def.HorizonDays)
	v.SetDefault("max_slot_candidates", def.MaxSlotCandidates)
	v.SetDefault("buffer_pct", def.BufferPct)
	v.SetDefault("priority_weights.due_date", def.PriorityWeights.DueDate)
	v.SetDefault("priority_weights.customer", def.PriorityWeights.Customer)
	v.SetDefault("priority_weights.dependency", def.PriorityWeights.Dependency)
	v.SetDefault("priority_weights.setup", def.PriorityWeights.Setup)
	v.SetDefault("match_weights.capability", def.MatchWeights.Capability)
	v.SetDefault("match_weights.load", def.MatchWeights.Load)
	v.SetDefault("match_weights.setup", def.MatchWeights.Setup)
	v.SetDefault("match_weights.efficiency", def.MatchWeights.Efficiency)
	v.SetDefault("emergency.always_require_approval", def.Emergency.AlwaysRequireApproval)
	v.SetDefault("emergency.max_unapproved_hours", def.Emergency.MaxUnapprovedHours)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return def, nil
		}
		return FacilityConfig{}, fmt.Errorf("reading facility config: %w", err)
	}

	var cfg FacilityConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return FacilityConfig{}, fmt.Errorf("parsing facility config: %w", err)
	}
	return cfg, nil
}

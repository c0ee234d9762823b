package masterdata

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultDatabase is the EFD database queried when a channel names none.
	DefaultDatabase = "efd"
	// DefaultInterval is the lookback window used when a channel names none.
	DefaultInterval = "24h"
	// DefaultPeriod is the polling period used when a channel names none.
	DefaultPeriod = time.Minute
	// DefaultThresholdPct is the activity threshold of counter channels.
	DefaultThresholdPct = 90.0
)

var intervalPattern = regexp.MustCompile(`^[0-9]+(ns|u|µ|ms|s|m|h|d|w)$`)

// CounterSpec turns a channel into an edge-counting channel.
type CounterSpec struct {
	Fields       []string `yaml:"fields" json:"fields"`
	ThresholdPct float64  `yaml:"threshold_pct" json:"threshold_pct"`
}

// MonitorChannel maps one EFD measurement field to one CMMS asset attribute.
type MonitorChannel struct {
	Name        string        `yaml:"name" json:"name"`
	Measurement string        `yaml:"measurement" json:"measurement"`
	Field       string        `yaml:"field" json:"field"`
	AssetID     string        `yaml:"asset_id" json:"asset_id"`
	Attribute   string        `yaml:"attribute" json:"attribute"`
	Database    string        `yaml:"db_name" json:"db_name"`
	Interval    string        `yaml:"time_interval" json:"time_interval"`
	SalIndex    *int          `yaml:"salIndex,omitempty" json:"sal_index,omitempty"`
	Counter     *CounterSpec  `yaml:"counter,omitempty" json:"counter,omitempty"`
	Period      time.Duration `yaml:"period,omitempty" json:"period,omitempty"`
}

// IsCounter reports whether the channel publishes a running edge count.
func (c MonitorChannel) IsCounter() bool {
	return c.Counter != nil
}

// WithDefaults fills the optional fields left empty in configuration.
func (c MonitorChannel) WithDefaults() MonitorChannel {
	c.Name = strings.TrimSpace(c.Name)
	c.AssetID = strings.TrimSpace(c.AssetID)
	if strings.TrimSpace(c.Database) == "" {
		c.Database = DefaultDatabase
	}
	if strings.TrimSpace(c.Interval) == "" {
		c.Interval = DefaultInterval
	}
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.Counter != nil {
		counter := *c.Counter
		counter.Fields = append([]string(nil), counter.Fields...)
		if counter.ThresholdPct <= 0 {
			counter.ThresholdPct = DefaultThresholdPct
		}
		c.Counter = &counter
	}
	if c.SalIndex != nil {
		idx := *c.SalIndex
		c.SalIndex = &idx
	}
	return c
}

// Validate checks channel invariants.
func (c MonitorChannel) Validate() error {
	if c.Name == "" {
		return errors.New("channel: empty name")
	}
	if c.Measurement == "" {
		return fmt.Errorf("channel %q: empty measurement", c.Name)
	}
	if c.AssetID == "" {
		return fmt.Errorf("channel %q: empty asset id", c.Name)
	}
	if c.Attribute == "" {
		return fmt.Errorf("channel %q: empty attribute", c.Name)
	}
	if !ValidInterval(c.Interval) {
		return fmt.Errorf("channel %q: invalid time interval %q", c.Name, c.Interval)
	}
	idents := []string{c.Measurement, c.Database}
	if c.Counter != nil {
		if len(c.Counter.Fields) == 0 {
			return fmt.Errorf("channel %q: counter without fields", c.Name)
		}
		idents = append(idents, c.Counter.Fields...)
	} else {
		if c.Field == "" {
			return fmt.Errorf("channel %q: empty field", c.Name)
		}
		idents = append(idents, c.Field)
	}
	for _, ident := range idents {
		if !ValidIdentifier(ident) {
			return fmt.Errorf("channel %q: invalid identifier %q", c.Name, ident)
		}
	}
	return nil
}

// ValidInterval reports whether value is an InfluxQL duration literal such as 24h or 90m.
func ValidInterval(value string) bool {
	return intervalPattern.MatchString(value)
}

// ValidIdentifier reports whether value can be embedded as a quoted InfluxQL identifier.
func ValidIdentifier(value string) bool {
	if strings.TrimSpace(value) == "" {
		return false
	}
	return !strings.ContainsAny(value, "\"\\\n\r")
}

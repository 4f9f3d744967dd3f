package monitorfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"inbox_monitor/internal/domain/monitor"
	"inbox_monitor/internal/domain/schedule"
)

// Document is the on-disk shape of the monitors file.
type Document struct {
	Monitors []MonitorConfig `yaml:"monitors"`
}

type MonitorConfig struct {
	ID                string         `yaml:"id"`
	UserID            string         `yaml:"user_id"`
	Enabled           *bool          `yaml:"enabled"`
	Sender            string         `yaml:"sender"`
	Keywords          []string       `yaml:"keywords"`
	MaxCount          int            `yaml:"max_count"`
	StopAfterResponse string         `yaml:"stop_after_response"`
	ReplyTemplate     string         `yaml:"reply_template"`
	Schedule          ScheduleConfig `yaml:"schedule"`
}

type ScheduleConfig struct {
	Type                 string   `yaml:"type"`
	DaysOfWeek           []int    `yaml:"days_of_week"`
	TimeWindowStart      string   `yaml:"time_window_start"`
	TimeWindowEnd        string   `yaml:"time_window_end"`
	SpecificDates        []string `yaml:"specific_dates"`
	CheckIntervalMinutes int      `yaml:"check_interval_minutes"`
	UTCOffset            string   `yaml:"utc_offset"`
}

func (c ScheduleConfig) raw() schedule.Config {
	return schedule.Config{
		Type:                 c.Type,
		DaysOfWeek:           c.DaysOfWeek,
		TimeWindowStart:      c.TimeWindowStart,
		TimeWindowEnd:        c.TimeWindowEnd,
		SpecificDates:        c.SpecificDates,
		CheckIntervalMinutes: c.CheckIntervalMinutes,
		UTCOffset:            c.UTCOffset,
	}
}

// Rejection is a monitor entry that failed validation.
type Rejection struct {
	Index      int
	ID         string
	Violations schedule.Violations
}

func (r Rejection) Error() string {
	return fmt.Sprintf("monitor #%d (%s): %s", r.Index, r.ID, r.Violations.Error())
}

// Result is a parsed monitors file.
type Result struct {
	Monitors   []monitor.Monitor // enabled and valid, in file order
	Disabled   int
	Rejections []Rejection
}

// Parse decodes a monitors document. Unknown keys and malformed YAML fail
// the whole document; an invalid monitor only rejects that entry.
func Parse(data []byte) (*Result, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode monitors file: %w", err)
	}

	res := &Result{Monitors: make([]monitor.Monitor, 0, len(doc.Monitors))}
	seen := make(map[string]bool, len(doc.Monitors))
	for i, mc := range doc.Monitors {
		m, v := build(mc)
		if m.ID != "" && seen[m.ID] {
			v = append(v, schedule.Violation{Field: "id", Rule: "unique", Message: fmt.Sprintf("duplicate monitor id %q", m.ID)})
		}
		if len(v) > 0 {
			res.Rejections = append(res.Rejections, Rejection{Index: i, ID: mc.ID, Violations: v})
			continue
		}
		seen[m.ID] = true
		if mc.Enabled != nil && !*mc.Enabled {
			res.Disabled++
			continue
		}
		res.Monitors = append(res.Monitors, m)
	}
	return res, nil
}

func build(mc MonitorConfig) (monitor.Monitor, schedule.Violations) {
	var v schedule.Violations
	required := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			v = append(v, schedule.Violation{Field: field, Rule: "required", Message: "must not be empty"})
		}
	}
	required("id", mc.ID)
	required("user_id", mc.UserID)
	required("sender", mc.Sender)
	if mc.MaxCount <= 0 {
		v = append(v, schedule.Violation{Field: "max_count", Rule: "positive", Message: fmt.Sprintf("must be greater than zero, got %d", mc.MaxCount)})
	}
	policy, err := monitor.ParseStopPolicy(mc.StopAfterResponse)
	if err != nil {
		v = append(v, schedule.Violation{Field: "stop_after_response", Rule: "unknown", Message: err.Error()})
	}

	def, err := schedule.Build(mc.Schedule.raw())
	if err != nil {
		var sv schedule.Violations
		if errors.As(err, &sv) {
			v = append(v, sv.Prefixed("schedule.")...)
		}
	}

	return monitor.Monitor{
		ID:            strings.TrimSpace(mc.ID),
		UserID:        strings.TrimSpace(mc.UserID),
		Filter:        monitor.Filter{Sender: strings.TrimSpace(mc.Sender), Keywords: mc.Keywords},
		Schedule:      def,
		MaxCount:      mc.MaxCount,
		StopPolicy:    policy,
		ReplyTemplate: mc.ReplyTemplate,
	}, v
}

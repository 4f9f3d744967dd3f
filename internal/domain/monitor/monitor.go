package monitor

import (
	"fmt"
	"net/mail"
	"strings"

	"inbox_monitor/internal/domain/schedule"
)

// StopPolicy controls what happens after a monitor responds within a period.
type StopPolicy string

const (
	StopNever StopPolicy = "never"
	// StopAfterFirst suppresses the rest of the period once one response is
	// sent, and ends the responding cycle after that response.
	StopAfterFirst StopPolicy = "after_first"
	// StopAfterEachPeriod suppresses the rest of the period once a cycle has
	// responded, but lets that cycle finish its remaining items.
	StopAfterEachPeriod StopPolicy = "after_each_period"
)

// ParseStopPolicy maps a configured value to a StopPolicy. Empty means never.
func ParseStopPolicy(s string) (StopPolicy, error) {
	switch p := StopPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return StopNever, nil
	case StopNever, StopAfterFirst, StopAfterEachPeriod:
		return p, nil
	default:
		return "", fmt.Errorf("unknown stop_after_response %q", s)
	}
}

// SuppressesPeriod reports whether a response ends checking for the period.
func (p StopPolicy) SuppressesPeriod() bool {
	return p == StopAfterFirst || p == StopAfterEachPeriod
}

// Filter selects the inbound items a monitor reacts to.
type Filter struct {
	// Sender is a full address ("boss@example.com") or a domain ("@example.com").
	Sender   string
	Keywords []string
}

// MatchesSender compares the address part of from against the filter,
// ignoring case and display names.
func (f Filter) MatchesSender(from string) bool {
	want := strings.ToLower(strings.TrimSpace(f.Sender))
	if want == "" {
		return false
	}
	got := strings.ToLower(Address(from))
	if strings.HasPrefix(want, "@") {
		return strings.HasSuffix(got, want)
	}
	return got == want
}

// MatchesKeywords reports whether any keyword occurs in the subject or body.
// A filter without keywords matches everything.
func (f Filter) MatchesKeywords(subject, body string) bool {
	if len(f.Keywords) == 0 {
		return true
	}
	text := strings.ToLower(subject + "\n" + body)
	for _, k := range f.Keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// Address extracts the bare address from a From header value.
func Address(from string) string {
	if a, err := mail.ParseAddress(from); err == nil {
		return a.Address
	}
	return strings.Trim(strings.TrimSpace(from), "<>")
}

// Monitor is one watched sender bound to a schedule and a per-period quota.
type Monitor struct {
	ID            string
	UserID        string
	Filter        Filter
	Schedule      schedule.Definition
	MaxCount      int
	StopPolicy    StopPolicy
	ReplyTemplate string
}

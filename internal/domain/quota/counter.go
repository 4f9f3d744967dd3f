package quota

import (
	"fmt"
	"time"
)

// Counter is the usage of one monitor within one period.
type Counter struct {
	MonitorID    string
	PeriodID     string
	UserID       string
	CurrentCount int
	MaxCount     int
	UpdatedAt    time.Time
}

// Outcome is the result of an increment attempt. Current is the count after
// the attempt.
type Outcome struct {
	Allowed bool
	Current int
	Max     int
}

func Allowed(current, max int) Outcome { return Outcome{Allowed: true, Current: current, Max: max} }
func Denied(current, max int) Outcome  { return Outcome{Current: current, Max: max} }

func (o Outcome) String() string {
	verdict := "denied"
	if o.Allowed {
		verdict = "allowed"
	}
	return fmt.Sprintf("%s %d/%d", verdict, o.Current, o.Max)
}

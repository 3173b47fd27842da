package broadcast

import (
	"errors"
	"time"
)

// ErrCycleInFlight is returned when a cycle is triggered while another runs.
var ErrCycleInFlight = errors.New("broadcast cycle already running")

type Status string

const (
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Outcome is the result of one recipient's single send attempt.
type Outcome struct {
	Address   string
	Status    Status
	MessageID string
	Err       error
}

// Report summarizes one dispatch. Outcomes follow subscriber order.
type Report struct {
	CycleID   string
	ContentID string
	Outcomes  []Outcome
	Sent      int
	Failed    int
	StartedAt time.Time
	Took      time.Duration
}

func (r Report) Total() int { return len(r.Outcomes) }

type Config struct {
	Header      string
	Workers     int
	RatePerSec  int // 0 disables the limiter
	SendTimeout time.Duration
	Location    *time.Location
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.Location == nil {
		c.Location = time.UTC
	}
	return c
}

// Package scheduler fires named jobs on cron or interval schedules in a fixed
// time zone.
//
// Jobs run on the cron goroutine with a skip-if-running policy, an optional
// per-run timeout, and panic recovery.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "jokeline/pkg/logx"
)

var ErrUnknownSchedule = errors.New("unknown schedule")

type Config struct {
	Timezone string // IANA TZ, e.g. "US/Pacific"; empty means Local
}

type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	running *atomic.Bool
	skipped *atomic.Uint64
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	cfg    Config
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	baseCtx context.Context
	cancel  context.CancelFunc
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
	Skipped uint64
}

type Snapshot struct {
	Running   bool
	Timezone  string
	Schedules []ScheduleInfo
}

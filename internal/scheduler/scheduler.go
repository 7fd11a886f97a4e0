// Package scheduler runs the proxy's periodic background jobs — MCP
// tool-list refresh and prompt-cache TTL sweep — on cron expressions.
// Adapted from myclaw's internal/cron/service.go: same
// robfig/cron/v3-backed Cron singleton and Start/Stop lifecycle, stripped
// of the JSON-persisted user-defined job store (agentproxy's jobs are
// fixed, code-registered background tasks, not user-editable reminders).
package scheduler

import (
	"log"

	rcron "github.com/robfig/cron/v3"
)

// Scheduler wraps a robfig/cron/v3 instance for the proxy's fixed set of
// background jobs.
type Scheduler struct {
	cron *rcron.Cron
}

func New() *Scheduler {
	return &Scheduler{cron: rcron.New()}
}

// AddFunc registers fn to run on the given standard 5-field cron
// expression. Registration failures are returned to the caller rather than
// only logged, since a misconfigured schedule string is a startup-time
// error, not a runtime one.
func (s *Scheduler) AddFunc(spec string, fn func()) (rcron.EntryID, error) {
	return s.cron.AddFunc(spec, func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[scheduler] job panicked: %v", r)
			}
		}()
		fn()
	})
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() { s.cron.Stop() }

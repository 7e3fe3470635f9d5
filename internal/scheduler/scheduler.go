// Package scheduler runs CareCircle's periodic maintenance on cron expressions.
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSpec runs the abandoned-session sweep every 15 minutes.
const DefaultSweepSpec = "*/15 * * * *"

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron   *cron.Cron
	parser cron.Parser
}

// NewScheduler creates and starts a cron scheduler using the standard 5-field syntax.
// A panicking job is recovered and logged instead of taking the process down.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c, parser: parser}
}

// AddJob schedules task on expr and returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	id, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	slog.Debug("Scheduler.AddJob: scheduled", "expr", expr, "entryID", id)
	return nil
}

// Validate reports whether expr would be accepted by AddJob.
func (s *Scheduler) Validate(expr string) error {
	_, err := s.parser.Parse(expr)
	return err
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

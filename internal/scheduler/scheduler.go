// Package scheduler runs periodic maintenance tasks: system-health
// recomputation and a nightly full vector-index rebuild (spec.md
// §4.6 rebuild_from_transcripts, §6.2 /api/verify/system).
package scheduler

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler wraps a robfig/cron runner with the two fixed jobs this
// service needs; callers register the actual work via closures so
// this package stays decoupled from vectorindex/accountindex.
type Scheduler struct {
	cron *cron.Cron
}

// New builds a Scheduler using cron's standard 5-field parser.
func New() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// ScheduleHealthCheck runs fn on the given cron spec (default every 5
// minutes if spec is empty), recomputing SystemHealth.
func (s *Scheduler) ScheduleHealthCheck(spec string, fn func(ctx context.Context)) error {
	if spec == "" {
		spec = "*/5 * * * *"
	}
	_, err := s.cron.AddFunc(spec, func() {
		fn(context.Background())
	})
	if err != nil {
		return err
	}
	log.Printf("scheduled health check: %s", spec)
	return nil
}

// ScheduleRebuild runs fn on the given cron spec (default nightly at
// 03:00), rebuilding the vector index from persisted transcripts.
func (s *Scheduler) ScheduleRebuild(spec string, fn func(ctx context.Context)) error {
	if spec == "" {
		spec = "0 3 * * *"
	}
	_, err := s.cron.AddFunc(spec, func() {
		fn(context.Background())
	})
	if err != nil {
		return err
	}
	log.Printf("scheduled vector index rebuild: %s", spec)
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, waiting for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

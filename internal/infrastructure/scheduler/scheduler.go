package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Scheduler fires job runs on cron expressions with a seconds field
// ("0 0 2 * * *" for 02:00 daily). Overlap protection is not its concern:
// a run that finds its job lock held skips itself.
type Scheduler struct {
	cron *cron.Cron
}

func New() *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
	}
}

// Schedule registers fn under the given cron spec. The returned error covers
// spec parsing only; run failures are the callback's to report.
func (s *Scheduler) Schedule(spec string, fn func(context.Context)) error {
	_, err := s.cron.AddFunc(spec, func() {
		fn(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

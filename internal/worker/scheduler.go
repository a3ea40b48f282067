package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a periodic unit of work. Errors are logged; the schedule continues.
type Job func(ctx context.Context) error

// Scheduler runs named jobs on cron specs in UTC.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	timeout time.Duration
	logger  zerolog.Logger
}

func NewScheduler(ctx context.Context, timeout time.Duration, logger *zerolog.Logger) *Scheduler {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "scheduler").Logger()
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(time.UTC)),
		ctx:     ctx,
		timeout: timeout,
		logger:  l,
	}
}

// Register adds job under spec. Standard five-field specs and descriptors
// such as @daily or @every 30m are accepted.
func (s *Scheduler) Register(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		s.logger.Error().Err(err).Str("job", name).Str("spec", spec).Msg("Failed to register job")
		return err
	}
	s.logger.Info().Str("job", name).Str("spec", spec).Msg("Job registered")
	return nil
}

func (s *Scheduler) run(name string, job Job) {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	start := time.Now()
	if err := job(ctx); err != nil {
		s.logger.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("Job failed")
		return
	}
	s.logger.Debug().Str("job", name).Dur("took", time.Since(start)).Msg("Job finished")
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) Jobs() int {
	return len(s.cron.Entries())
}

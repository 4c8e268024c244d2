// Package schedule runs the relay's periodic jobs (retention sweep, daily
// export) on cron patterns. Jobs are fire-and-forget: a failed run is logged
// and the next scheduled run retries from scratch, which is the only retry
// mechanism the relay has.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Service owns the cron runner.
type Service struct {
	cron   *cron.Cron
	parser cron.Parser
	logger *slog.Logger
}

// NewService creates a stopped scheduler; call Start after adding jobs.
func NewService(log *slog.Logger) *Service {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		cron:   cron.New(cron.WithParser(parser)),
		parser: parser,
		logger: log.With(slog.String("service", "schedule")),
	}
}

// Add registers a named job on a cron pattern.
func (s *Service) Add(name, pattern string, run func(context.Context) error) error {
	if _, err := s.parser.Parse(pattern); err != nil {
		return fmt.Errorf("invalid cron pattern for %s: %w", name, err)
	}
	_, err := s.cron.AddFunc(pattern, func() {
		s.logger.Info("scheduled job starting", slog.String("job", name))
		if err := run(context.Background()); err != nil {
			s.logger.Error("scheduled job failed",
				slog.String("job", name), slog.Any("error", err))
			return
		}
		s.logger.Info("scheduled job finished", slog.String("job", name))
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

// Start begins running scheduled jobs.
func (s *Service) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs to finish.
func (s *Service) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

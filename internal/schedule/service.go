// Package schedule runs the periodic full reconciliation pass.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/chorusbot/chorus/internal/syncer"
)

// Syncer is the reconciliation entrypoint the scheduler drives.
type Syncer interface {
	SyncAll(ctx context.Context) (syncer.Report, error)
}

type Service struct {
	cron    *cron.Cron
	parser  cron.Parser
	pattern string
	syncer  Syncer
	logger  *slog.Logger
	entry   cron.EntryID
}

func NewService(log *slog.Logger, sync Syncer, pattern string) *Service {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Service{
		cron:    cron.New(cron.WithParser(parser)),
		parser:  parser,
		pattern: pattern,
		syncer:  sync,
		logger:  log.With(slog.String("service", "schedule")),
	}
}

// Start validates the pattern, registers the sync job, and starts the cron
// runner.
func (s *Service) Start() error {
	if _, err := s.parser.Parse(s.pattern); err != nil {
		return fmt.Errorf("invalid cron pattern %q: %w", s.pattern, err)
	}
	entry, err := s.cron.AddFunc(s.pattern, s.run)
	if err != nil {
		return fmt.Errorf("register sync job: %w", err)
	}
	s.entry = entry
	s.cron.Start()
	s.logger.Info("periodic sync scheduled", slog.String("pattern", s.pattern))
	return nil
}

// Stop halts the cron runner and waits for a running job to finish.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("periodic sync stopped")
}

func (s *Service) run() {
	report, err := s.syncer.SyncAll(context.Background())
	if err != nil {
		s.logger.Error("scheduled sync", slog.Any("error", err))
		return
	}
	if failed := report.Failures(); len(failed) > 0 {
		for _, unit := range failed {
			s.logger.Warn("scheduled sync unit failed",
				slog.String("member", unit.MemberID), slog.Any("error", unit.Err))
		}
	}
}

package maintenance

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mealvault/mealvault/internal/backup"
	"github.com/mealvault/mealvault/pkg/logger"
)

// BackupService is the slice of the backup coordinator the scheduler drives.
type BackupService interface {
	Create(ctx context.Context) (*backup.Metadata, error)
	List(ctx context.Context) ([]backup.Metadata, error)
	Delete(ctx context.Context, id string) error
}

// noopLocker is used when no write gate is supplied.
type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// Scheduler runs periodic backups and enforces the retention cap. Backup
// copies close the store file, so the scheduler holds the supplied write gate
// for the duration of each run to keep repository traffic out.
type Scheduler struct {
	backups   BackupService
	gate      sync.Locker
	cron      *cron.Cron
	log       *zap.Logger
	schedule  string
	retention int
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithGate installs the lock that serialises backup runs against repository
// writes. The HTTP layer shares the same lock.
func WithGate(gate sync.Locker) Option {
	return func(s *Scheduler) {
		if gate != nil {
			s.gate = gate
		}
	}
}

// WithRetention caps how many backups are kept; the oldest beyond the cap are
// pruned after each run. Zero or negative keeps everything.
func WithRetention(n int) Option {
	return func(s *Scheduler) {
		s.retention = n
	}
}

// NewScheduler constructs a Scheduler. An empty schedule disables periodic
// runs; RunOnce remains available either way.
func NewScheduler(backups BackupService, schedule string, opts ...Option) *Scheduler {
	s := &Scheduler{
		backups:  backups,
		gate:     noopLocker{},
		schedule: schedule,
		log:      logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return s
}

// Start registers the backup job and launches the scheduler. A nil backup
// service or empty schedule leaves the scheduler idle.
func (s *Scheduler) Start() error {
	if s.backups == nil || s.schedule == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() {
		if err := s.RunOnce(context.Background()); err != nil {
			s.log.Warn("scheduled backup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running job to complete.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunOnce takes one backup and prunes artifacts beyond the retention cap.
// Pruning failures do not undo a successful backup; all errors are reported
// together.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if s.backups == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.gate.Lock()
	defer s.gate.Unlock()

	meta, err := s.backups.Create(ctx)
	if err != nil {
		return err
	}
	s.log.Info("scheduled backup created", zap.String("id", meta.ID))

	return s.prune(ctx)
}

func (s *Scheduler) prune(ctx context.Context) error {
	if s.retention < 1 {
		return nil
	}

	metas, err := s.backups.List(ctx)
	if err != nil {
		return err
	}
	if len(metas) <= s.retention {
		return nil
	}

	var errs error
	for _, meta := range metas[s.retention:] {
		if err := s.backups.Delete(ctx, meta.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		s.log.Info("pruned expired backup", zap.String("id", meta.ID))
	}
	return errs
}

package workers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cipherdrop/cipherdrop/internal/logging"
	"github.com/cipherdrop/cipherdrop/internal/server/repositories/files"
)

// SweepInterval is how often the sweeper polls for expired files.
const SweepInterval = 60 * time.Second

// FileDeleter erases one file across all tiers. The file service
// satisfies it.
type FileDeleter interface {
	DeleteFile(ctx context.Context, id uuid.UUID) error
}

// Sweeper periodically removes files whose expires_at has passed.
type Sweeper struct {
	repo     files.Repository
	deleter  FileDeleter
	logger   logging.Logger
	interval time.Duration
}

func NewSweeper(repo files.Repository, deleter FileDeleter, logger logging.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		deleter:  deleter,
		logger:   logger,
		interval: SweepInterval,
	}
}

// Run sweeps on a fixed period until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one cycle. A failing file is logged and left for the next
// cycle; the rest of the batch still gets processed.
func (s *Sweeper) Sweep(ctx context.Context) {
	ids, err := s.repo.ListExpired(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error(ctx, "listing expired files failed", "error", err)
		return
	}

	for _, id := range ids {
		if err := s.deleter.DeleteFile(ctx, id); err != nil {
			s.logger.Warn(ctx, "sweeping file failed", "uuid", id, "error", err)
		} else {
			s.logger.Debug(ctx, "swept expired file", "uuid", id)
		}
	}
}

package provision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/autoreg-cli/internal/config"
	"github.com/xkilldash9x/autoreg-cli/internal/store"
)

const persistTimeout = 10 * time.Second

// Attempter runs one provisioning attempt. *Orchestrator implements it.
type Attempter interface {
	CreateAndConfirmAccount(ctx context.Context) Result
}

// Runner bounds how many attempts, and therefore browser processes, run at
// once. Each attempt gets an ID, an optional deadline and, when a repository
// is configured, a persisted record.
type Runner struct {
	attempter Attempter
	sem       *semaphore.Weighted
	timeout   time.Duration
	repo      store.Repository
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// NewRunner creates a Runner. repo may be nil.
func NewRunner(a Attempter, cfg config.ProvisionConfig, repo store.Repository, logger *zap.Logger) *Runner {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		attempter: a,
		sem:       semaphore.NewWeighted(int64(limit)),
		timeout:   cfg.AttemptTimeout,
		repo:      repo,
		logger:    logger.Named("runner"),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Run waits for a free slot and performs one attempt. The error is non-nil
// only when ctx ends before a slot frees up; attempt failures are reported in
// the Result.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	id := r.newID()
	logger := r.logger.With(zap.String("attempt_id", id))

	if err := r.sem.Acquire(ctx, 1); err != nil {
		return Result{}, fmt.Errorf("waiting for a free provisioning slot: %w", err)
	}
	defer r.sem.Release(1)

	attemptCtx := WithAttemptID(ctx, id)
	if r.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(attemptCtx, r.timeout)
		defer cancel()
	}

	logger.Info("Provisioning attempt started")
	res := r.attempter.CreateAndConfirmAccount(attemptCtx)
	res.AttemptID = id
	logger.Info("Provisioning attempt finished", zap.Bool("success", res.Success))

	if r.repo != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := r.repo.Save(saveCtx, res.Record(r.now())); err != nil {
			logger.Error("Failed to persist provisioning result", zap.Error(err))
		}
	}
	return res, nil
}

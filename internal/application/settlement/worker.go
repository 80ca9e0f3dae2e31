package settlement

import (
	"context"
	"time"

	"captable-backend/internal/domain"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Worker periodically settles Processing distributions. Work fans out across
// recipients but never within one: the Processing state is the logical lock,
// and the optional Redis advisory lock keeps two worker processes off the
// same distribution at the same time.
type Worker struct {
	Service     *Service
	Rdb         *redis.Client
	Clock       clockwork.Clock
	Interval    time.Duration
	Concurrency int
}

const workerLockTTL = 2 * time.Minute

func (w *Worker) clock() clockwork.Clock {
	if w.Clock == nil {
		return clockwork.NewRealClock()
	}
	return w.Clock
}

func (w *Worker) interval() time.Duration {
	if w.Interval <= 0 {
		return 30 * time.Second
	}
	return w.Interval
}

func (w *Worker) concurrency() int {
	if w.Concurrency <= 0 {
		return 8
	}
	return w.Concurrency
}

// Run loops until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log.Info().Dur("interval", w.interval()).Msg("settlement worker started")
	for {
		if err := w.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("settlement sweep failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clock().After(w.interval()):
		}
	}
}

// RunOnce settles every Processing distribution attached to a funded batch.
func (w *Worker) RunOnce(ctx context.Context) error {
	var pending []domain.Distribution
	err := w.Service.DB.WithContext(ctx).
		Joins(`JOIN "SettlementBatches" ON "SettlementBatches".batch_id = "Distributions".batch_id`).
		Where(`"Distributions".status = ? AND "SettlementBatches".status = ?`,
			domain.DistributionProcessing, domain.BatchFunded).
		Order("distribution_id").
		Find(&pending).Error
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency())
	for _, dist := range pending {
		dist := dist
		g.Go(func() error {
			unlock, ok := w.tryLock(gctx, dist.PayoutReference)
			if !ok {
				return nil
			}
			defer unlock()
			if err := w.Service.Settle(gctx, dist.DistributionID); err != nil {
				// A failed payout already moved the record to Failed; the
				// sweep keeps going for the other recipients.
				log.Warn().Err(err).
					Str("distribution_id", dist.DistributionID.String()).
					Msg("settle attempt failed")
			}
			return nil
		})
	}
	return g.Wait()
}

// tryLock takes a short-lived advisory lock so a second worker process skips
// a distribution that is already being attempted.
func (w *Worker) tryLock(ctx context.Context, reference string) (func(), bool) {
	if w.Rdb == nil {
		return func() {}, true
	}
	key := "settle-lock:" + reference
	ok, err := w.Rdb.SetNX(ctx, key, "1", workerLockTTL).Result()
	if err != nil || !ok {
		return nil, false
	}
	return func() { w.Rdb.Del(context.Background(), key) }, true
}

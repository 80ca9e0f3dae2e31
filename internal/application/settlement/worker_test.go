package settlement

import (
	"context"
	"testing"

	"captable-backend/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRunOnce_SettlesFundedBatch(t *testing.T) {
	svc, provider, db := setupServiceTest(t)
	dist := seedDistribution(t, db, domain.DistributionReady, true)
	_, err := svc.SubmitBatch(context.Background(), dist.CompanyID, "")
	require.NoError(t, err)

	w := &Worker{Service: svc}
	require.NoError(t, w.RunOnce(context.Background()))

	require.Len(t, provider.payoutCalls, 1)
	var reloaded domain.Distribution
	require.NoError(t, db.Where("distribution_id = ?", dist.DistributionID).First(&reloaded).Error)
	assert.Equal(t, domain.DistributionCompleted, reloaded.Status)
}

func TestWorkerRunOnce_SkipsUnfundedBatches(t *testing.T) {
	svc, provider, db := setupServiceTest(t)
	seedDistribution(t, db, domain.DistributionProcessing, true)

	w := &Worker{Service: svc}
	require.NoError(t, w.RunOnce(context.Background()))
	assert.Empty(t, provider.payoutCalls, "no payout without a funded batch")
}

func TestWorkerRunOnce_RespectsAdvisoryLock(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc, provider, db := setupServiceTest(t)
	dist := seedDistribution(t, db, domain.DistributionReady, true)
	_, err := svc.SubmitBatch(context.Background(), dist.CompanyID, "")
	require.NoError(t, err)

	// Another worker already holds the lock for this distribution.
	require.NoError(t, rdb.Set(context.Background(), "settle-lock:"+dist.PayoutReference, "1", workerLockTTL).Err())

	w := &Worker{Service: svc, Rdb: rdb}
	require.NoError(t, w.RunOnce(context.Background()))
	assert.Empty(t, provider.payoutCalls, "locked distribution is skipped")

	var reloaded domain.Distribution
	require.NoError(t, db.Where("distribution_id = ?", dist.DistributionID).First(&reloaded).Error)
	assert.Equal(t, domain.DistributionProcessing, reloaded.Status)
}

func TestWorkerRunOnce_ReleasesLockAfterSettling(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	svc, _, db := setupServiceTest(t)
	dist := seedDistribution(t, db, domain.DistributionReady, true)
	_, err := svc.SubmitBatch(context.Background(), dist.CompanyID, "")
	require.NoError(t, err)

	w := &Worker{Service: svc, Rdb: rdb}
	require.NoError(t, w.RunOnce(context.Background()))

	assert.False(t, mr.Exists("settle-lock:"+dist.PayoutReference))
}

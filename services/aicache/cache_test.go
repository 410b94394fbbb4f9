package aicache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aware88/fresh-ai-crm-sub016/interfaces"
	"github.com/aware88/fresh-ai-crm-sub016/internal/logger"
	"github.com/aware88/fresh-ai-crm-sub016/internal/models"
	"github.com/aware88/fresh-ai-crm-sub016/internal/utils"
)

type inMemoryCacheRepository struct {
	mu      sync.Mutex
	entries map[string]models.AnalysisCacheEntry
}

func newInMemoryCacheRepository() *inMemoryCacheRepository {
	return &inMemoryCacheRepository{entries: make(map[string]models.AnalysisCacheEntry)}
}

func (r *inMemoryCacheRepository) GetByEmailID(ctx context.Context, emailID string) (*models.AnalysisCacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[emailID]
	if !ok {
		return nil, nil
	}
	copied := entry
	return &copied, nil
}

func (r *inMemoryCacheRepository) Upsert(ctx context.Context, entry *models.AnalysisCacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.EmailID] = *entry
	return nil
}

func (r *inMemoryCacheRepository) Delete(ctx context.Context, emailID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, emailID)
	return nil
}

func (r *inMemoryCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, entry := range r.entries {
		if !entry.ExpiresAt.After(now) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestCache(repo interfaces.AnalysisCacheRepository, ttl time.Duration) *analysisCache {
	return &analysisCache{
		repository: repo,
		logger:     getLogger(),
		ttl:        ttl,
		nowFunc:    utils.Now,
	}
}

func analysisResult(label string) *interfaces.AnalysisResult {
	return &interfaces.AnalysisResult{
		Analysis: models.JSONMap{"summary": label},
		Draft:    models.JSONMap{"body": "draft for " + label},
	}
}

func TestAnalysisCache_GetOrCompute_CachesResult(t *testing.T) {
	// Arrange
	repo := newInMemoryCacheRepository()
	cache := newTestCache(repo, time.Hour)
	ctx := context.Background()
	var computeCalls int32

	compute := func(ctx context.Context) (*interfaces.AnalysisResult, error) {
		atomic.AddInt32(&computeCalls, 1)
		return analysisResult("first"), nil
	}

	// Act
	first, err := cache.GetOrCompute(ctx, "email_1", compute)
	require.NoError(t, err)
	second, err := cache.GetOrCompute(ctx, "email_1", compute)
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int32(1), atomic.LoadInt32(&computeCalls))
	assert.Equal(t, "first", first.AnalysisResult["summary"])
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
	assert.Equal(t, first.ComputedAt.Add(time.Hour), first.ExpiresAt)
}

func TestAnalysisCache_GetOrCompute_SingleFlight(t *testing.T) {
	// Arrange
	repo := newInMemoryCacheRepository()
	cache := newTestCache(repo, time.Hour)
	ctx := context.Background()

	var computeCalls int32
	started := make(chan struct{})
	release := make(chan struct{})

	compute := func(ctx context.Context) (*interfaces.AnalysisResult, error) {
		if atomic.AddInt32(&computeCalls, 1) == 1 {
			close(started)
		}
		<-release
		return analysisResult("shared"), nil
	}

	// Act: five concurrent callers for the same email
	var wg sync.WaitGroup
	results := make([]*models.AnalysisCacheEntry, 5)
	errs := make([]error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.GetOrCompute(ctx, "email_1", compute)
		}(i)
	}

	<-started
	// Give the remaining callers time to join the in-flight computation
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// Assert
	assert.Equal(t, int32(1), atomic.LoadInt32(&computeCalls))
	for i := 0; i < 5; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, results[i])
		assert.Equal(t, "shared", results[i].AnalysisResult["summary"])
	}
}

func TestAnalysisCache_GetOrCompute_ExpiredEntryRecomputed(t *testing.T) {
	// Arrange
	repo := newInMemoryCacheRepository()
	cache := newTestCache(repo, time.Hour)
	ctx := context.Background()

	now := utils.Now()
	cache.nowFunc = func() time.Time { return now }

	_, err := cache.GetOrCompute(ctx, "email_1", func(ctx context.Context) (*interfaces.AnalysisResult, error) {
		return analysisResult("stale"), nil
	})
	require.NoError(t, err)

	// Act: move past the TTL, the stale entry must not be served
	cache.nowFunc = func() time.Time { return now.Add(time.Hour + time.Minute) }

	miss, err := cache.Get(ctx, "email_1")
	require.NoError(t, err)
	entry, err := cache.GetOrCompute(ctx, "email_1", func(ctx context.Context) (*interfaces.AnalysisResult, error) {
		return analysisResult("fresh"), nil
	})
	require.NoError(t, err)

	// Assert
	assert.Nil(t, miss)
	assert.Equal(t, "fresh", entry.AnalysisResult["summary"])
}

func TestAnalysisCache_GetOrCompute_FailureWritesNothing(t *testing.T) {
	// Arrange
	repo := newInMemoryCacheRepository()
	cache := newTestCache(repo, time.Hour)
	ctx := context.Background()
	computeErr := errors.New("collaborator unavailable")

	// Act
	entry, err := cache.GetOrCompute(ctx, "email_1", func(ctx context.Context) (*interfaces.AnalysisResult, error) {
		return nil, computeErr
	})

	// Assert
	assert.Nil(t, entry)
	assert.ErrorIs(t, err, computeErr)

	stored, repoErr := repo.GetByEmailID(ctx, "email_1")
	require.NoError(t, repoErr)
	assert.Nil(t, stored)

	// A later call retries the computation
	recovered, err := cache.GetOrCompute(ctx, "email_1", func(ctx context.Context) (*interfaces.AnalysisResult, error) {
		return analysisResult("recovered"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", recovered.AnalysisResult["summary"])
}

func TestAnalysisCache_SweepExpired(t *testing.T) {
	// Arrange
	repo := newInMemoryCacheRepository()
	cache := newTestCache(repo, time.Hour)
	ctx := context.Background()

	now := utils.Now()
	cache.nowFunc = func() time.Time { return now }

	for _, id := range []string{"email_1", "email_2"} {
		_, err := cache.GetOrCompute(ctx, id, func(ctx context.Context) (*interfaces.AnalysisResult, error) {
			return analysisResult(id), nil
		})
		require.NoError(t, err)
	}

	// Act: only entries past their TTL are removed
	cache.nowFunc = func() time.Time { return now.Add(time.Hour + time.Minute) }
	removed, err := cache.SweepExpired(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}

func TestAnalysisCache_Invalidate(t *testing.T) {
	// Arrange
	repo := newInMemoryCacheRepository()
	cache := newTestCache(repo, time.Hour)
	ctx := context.Background()

	_, err := cache.GetOrCompute(ctx, "email_1", func(ctx context.Context) (*interfaces.AnalysisResult, error) {
		return analysisResult("original"), nil
	})
	require.NoError(t, err)

	// Act
	err = cache.Invalidate(ctx, "email_1")
	require.NoError(t, err)

	// Assert
	entry, err := cache.Get(ctx, "email_1")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

package cache

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-adaptive/internal/assessment"
)

// countingStore counts bank reads that reach the backing store.
type countingStore struct {
	assessment.Store
	reads atomic.Int32
}

func (c *countingStore) GetAssessment(ctx context.Context, id string) (assessment.Assessment, error) {
	c.reads.Add(1)
	return c.Store.GetAssessment(ctx, id)
}

func (c *countingStore) GetAssessmentByCode(ctx context.Context, code string) (assessment.Assessment, error) {
	c.reads.Add(1)
	return c.Store.GetAssessmentByCode(ctx, code)
}

func setup(t *testing.T) (*miniredis.Miniredis, *countingStore, *CachedStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	backing := &countingStore{Store: assessment.NewInMemoryStore()}
	return mr, backing, NewCachedStore(backing, NewAssessmentCache(rdb, time.Minute), nil)
}

func sample(id, code string) assessment.Assessment {
	return assessment.Assessment{
		ID:          id,
		Code:        code,
		Title:       "Algebra",
		DurationSec: 300,
		Questions: []assessment.Question{
			{ID: "q1", Text: "1+1?", Options: []string{"1", "2"}, CorrectOption: 1, Difficulty: 1, Topic: "Math"},
		},
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCachedStoreReadThrough(t *testing.T) {
	mr, backing, s := setup(t)
	ctx := context.Background()
	require.NoError(t, s.PutAssessment(ctx, sample("a1", "ALG1")))
	backing.reads.Store(0)

	a, err := s.GetAssessment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Algebra", a.Title)
	assert.True(t, mr.Exists("assessment:a1"))

	again, err := s.GetAssessment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a, again)
	assert.EqualValues(t, 1, backing.reads.Load(), "second read is served from redis")

	byCode, err := s.GetAssessmentByCode(ctx, "ALG1")
	require.NoError(t, err)
	assert.Equal(t, "a1", byCode.ID)
	assert.EqualValues(t, 1, backing.reads.Load())

	mr.FastForward(2 * time.Minute)
	_, err = s.GetAssessment(ctx, "a1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, backing.reads.Load(), "expired entries are refilled")
}

func TestCachedStoreInvalidatesOnPut(t *testing.T) {
	mr, _, s := setup(t)
	ctx := context.Background()
	require.NoError(t, s.PutAssessment(ctx, sample("a1", "OLD")))
	_, err := s.GetAssessmentByCode(ctx, "OLD")
	require.NoError(t, err)

	upd := sample("a1", "NEW")
	upd.Title = "Algebra II"
	require.NoError(t, s.PutAssessment(ctx, upd))
	assert.False(t, mr.Exists("assessment:code:OLD"))

	a, err := s.GetAssessment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Algebra II", a.Title)

	_, err = s.GetAssessmentByCode(ctx, "OLD")
	assert.ErrorIs(t, err, assessment.ErrNotFound)
}

func TestCachedStoreFallsBackWhenRedisDown(t *testing.T) {
	mr, _, s := setup(t)
	ctx := context.Background()
	require.NoError(t, s.PutAssessment(ctx, sample("a1", "ALG1")))
	mr.Close()

	a, err := s.GetAssessment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "a1", a.ID)

	_, err = s.GetAssessment(ctx, "missing")
	assert.ErrorIs(t, err, assessment.ErrNotFound)
}

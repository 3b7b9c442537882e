package cache

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/go-playground/assert/v2"
	"github.com/redis/go-redis/v9"

	"newspulse/internal/model"
)

type fakeLookup struct {
	results map[int64]model.EnrichmentResult
	asked   [][]int64
	err     error
	during  func() // runs after the store read, before the reply returns
}

func (f *fakeLookup) LookupComplete(ctx context.Context, articleIDs []int64, kind string) (map[int64]model.EnrichmentResult, error) {
	f.asked = append(f.asked, articleIDs)
	if f.during != nil {
		defer f.during()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[int64]model.EnrichmentResult)
	for _, id := range articleIDs {
		if r, ok := f.results[id]; ok && r.Kind == kind {
			out[id] = r
		}
	}
	return out, nil
}

func complete(id, articleID int64, score float64) model.EnrichmentResult {
	return model.EnrichmentResult{
		ID:            id,
		ArticleID:     articleID,
		Kind:          model.KindSentiment,
		Status:        model.StatusComplete,
		ComputedScore: &score,
	}
}

func TestLookupComplete_NoRedisUsesStore(t *testing.T) {
	store := &fakeLookup{results: map[int64]model.EnrichmentResult{1: complete(10, 1, 0.3)}}
	c := NewRedisCache(nil, store, 0)

	found, err := c.LookupComplete(context.Background(), []int64{1, 2}, model.KindSentiment)

	assert.Equal(t, nil, err)
	assert.Equal(t, 1, len(found))
	assert.Equal(t, int64(10), found[1].ID)
	assert.Equal(t, 1, len(store.asked))
}

func TestLookupComplete_StoreErrorPropagates(t *testing.T) {
	c := NewRedisCache(nil, &fakeLookup{err: errors.New("db down")}, 0)

	_, err := c.LookupComplete(context.Background(), []int64{1}, model.KindSentiment)

	assert.NotEqual(t, nil, err)
}

func TestLookupComplete_UnreachableRedisDegrades(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer rdb.Close()

	store := &fakeLookup{results: map[int64]model.EnrichmentResult{1: complete(10, 1, 0.3)}}
	c := NewRedisCache(rdb, store, 0)

	found, err := c.LookupComplete(context.Background(), []int64{1}, model.KindSentiment)

	assert.Equal(t, nil, err)
	assert.Equal(t, int64(10), found[1].ID)
}

func TestLookupComplete_BackfillsAndServesFromRedis(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	rdb.Del(ctx, key(model.KindSentiment, 1), key(model.KindSentiment, 2))

	store := &fakeLookup{results: map[int64]model.EnrichmentResult{1: complete(10, 1, 0.3)}}
	c := NewRedisCache(rdb, store, 0)

	_, err = c.LookupComplete(ctx, []int64{1, 2}, model.KindSentiment)
	assert.Equal(t, nil, err)

	found, err := c.LookupComplete(ctx, []int64{1, 2}, model.KindSentiment)
	assert.Equal(t, nil, err)
	assert.Equal(t, 0.3, *found[1].ComputedScore)
	// the second call only asks the store about the article that has nothing yet
	assert.Equal(t, []int64{2}, store.asked[1])

	c.Remember(ctx, complete(11, 1, -0.5))
	found, _ = c.LookupComplete(ctx, []int64{1}, model.KindSentiment)
	assert.Equal(t, int64(11), found[1].ID)

	failed := complete(12, 1, 0)
	failed.Status = model.StatusError
	c.Remember(ctx, failed)
	found, _ = c.LookupComplete(ctx, []int64{1}, model.KindSentiment)
	assert.Equal(t, int64(11), found[1].ID)
}

func TestLookupComplete_BackfillKeepsNewerRememberedResult(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	ctx := context.Background()
	rdb.Del(ctx, key(model.KindSentiment, 3))

	store := &fakeLookup{results: map[int64]model.EnrichmentResult{3: complete(20, 3, 0.1)}}
	c := NewRedisCache(rdb, store, 0)
	// a scoring unit finishes while the batch lookup is still reading the store
	store.during = func() { c.Remember(ctx, complete(21, 3, 0.8)) }

	found, err := c.LookupComplete(ctx, []int64{3}, model.KindSentiment)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(20), found[3].ID)

	store.during = nil
	found, err = c.LookupComplete(ctx, []int64{3}, model.KindSentiment)
	assert.Equal(t, nil, err)
	assert.Equal(t, int64(21), found[3].ID)
	assert.Equal(t, 0.8, *found[3].ComputedScore)
	assert.Equal(t, 1, len(store.asked))
}

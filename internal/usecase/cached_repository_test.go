package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/vellum-stream/pipeline/internal/domain/model"
)

// fakeVideoCache is a cache.VideoRecordCache fake, tracking hit/miss
// behavior explicitly rather than a real Redis round-trip.
type fakeVideoCache struct {
	records map[string]*model.VideoRecord
	all     []*model.VideoRecord
	hasAll  bool
	getHits int
}

func newFakeVideoCache() *fakeVideoCache {
	return &fakeVideoCache{records: make(map[string]*model.VideoRecord)}
}

func (c *fakeVideoCache) Get(ctx context.Context, id string) (*model.VideoRecord, error) {
	record, ok := c.records[id]
	if !ok {
		return nil, nil
	}
	c.getHits++
	return record, nil
}

func (c *fakeVideoCache) Set(ctx context.Context, record *model.VideoRecord, ttl time.Duration) error {
	c.records[record.ID] = record
	return nil
}

func (c *fakeVideoCache) Delete(ctx context.Context, id string) error {
	delete(c.records, id)
	return nil
}

func (c *fakeVideoCache) GetAll(ctx context.Context) ([]*model.VideoRecord, error) {
	if !c.hasAll {
		return nil, nil
	}
	return c.all, nil
}

func (c *fakeVideoCache) SetAll(ctx context.Context, records []*model.VideoRecord, ttl time.Duration) error {
	c.all = records
	c.hasAll = true
	return nil
}

func (c *fakeVideoCache) DeleteAll(ctx context.Context) error {
	c.all = nil
	c.hasAll = false
	return nil
}

func TestCachedVideoRepository_Get_CacheMissThenHit(t *testing.T) {
	repo := newFakeVideoRepository()
	record, _ := model.NewVideoRecord("upload-1", "movie.mp4")
	repo.records["upload-1"] = record

	videoCache := newFakeVideoCache()
	cached := NewCachedVideoRepository(repo, videoCache, DefaultCachedRepositoryConfig())

	got, err := cached.Get(context.Background(), "upload-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != "upload-1" {
		t.Errorf("ID = %v, want upload-1", got.ID)
	}
	if videoCache.getHits != 0 {
		t.Errorf("getHits = %d, want 0 on first (miss) read", videoCache.getHits)
	}

	if _, err := cached.Get(context.Background(), "upload-1"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if videoCache.getHits != 1 {
		t.Errorf("getHits = %d, want 1 on second (cached) read", videoCache.getHits)
	}
}

func TestCachedVideoRepository_Update_InvalidatesCache(t *testing.T) {
	repo := newFakeVideoRepository()
	record, _ := model.NewVideoRecord("upload-2", "movie.mp4")
	repo.records["upload-2"] = record

	videoCache := newFakeVideoCache()
	cached := NewCachedVideoRepository(repo, videoCache, DefaultCachedRepositoryConfig())

	if _, err := cached.Get(context.Background(), "upload-2"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if _, ok := videoCache.records["upload-2"]; !ok {
		t.Fatal("expected record to be cached after first Get")
	}

	record.Progress = 50
	if err := cached.Update(context.Background(), record); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, ok := videoCache.records["upload-2"]; ok {
		t.Error("expected cache entry to be invalidated after Update")
	}
}

func TestCachedVideoRepository_ListAll_CachesListing(t *testing.T) {
	repo := newFakeVideoRepository()
	r1, _ := model.NewVideoRecord("upload-3", "a.mp4")
	r2, _ := model.NewVideoRecord("upload-4", "b.mp4")
	repo.records["upload-3"] = r1
	repo.records["upload-4"] = r2

	videoCache := newFakeVideoCache()
	cached := NewCachedVideoRepository(repo, videoCache, DefaultCachedRepositoryConfig())

	got, err := cached.ListAll(context.Background())
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len(got) = %d, want 2", len(got))
	}
	if !videoCache.hasAll {
		t.Error("expected listing to be cached after ListAll")
	}
}

func TestCachedVideoRepository_TryAcquireForProcessing_InvalidatesOnWin(t *testing.T) {
	repo := newFakeVideoRepository()
	record, _ := model.NewVideoRecord("upload-5", "movie.mp4")
	repo.records["upload-5"] = record

	videoCache := newFakeVideoCache()
	videoCache.records["upload-5"] = record
	cached := NewCachedVideoRepository(repo, videoCache, DefaultCachedRepositoryConfig())

	acquired, _, err := cached.TryAcquireForProcessing(context.Background(), "upload-5")
	if err != nil {
		t.Fatalf("TryAcquireForProcessing() error = %v", err)
	}
	if !acquired {
		t.Fatal("expected acquisition to succeed")
	}
	if _, ok := videoCache.records["upload-5"]; ok {
		t.Error("expected cache entry to be invalidated after a winning acquire")
	}
}

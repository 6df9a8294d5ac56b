// Package store implements the video-record persistence layer on top of an
// embedded, crash-durable bbolt database.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vellum-stream/pipeline/internal/domain/model"
	"github.com/vellum-stream/pipeline/internal/domain/repository"
	"github.com/vellum-stream/pipeline/internal/infrastructure/metrics"
)

var videosBucket = []byte("videos")

// Store implements repository.VideoRepository using a single bbolt database
// file. bbolt serializes all writers, so every exported method that needs
// read-modify-write atomicity runs inside one db.Update transaction.
type Store struct {
	db *bolt.DB
}

// Open creates (if necessary) and opens the bbolt database at path,
// ensuring the videos bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(videosBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create videos bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// observe records one store operation against StoreOperationsTotal.
func observe(op string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreOperationsTotal.WithLabelValues(op, status).Inc()
}

// Create persists a new record. Returns repository.ErrDuplicateVideo if id
// already exists.
func (s *Store) Create(ctx context.Context, record *model.VideoRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(videosBucket)
		if bucket.Get([]byte(record.ID)) != nil {
			return repository.ErrDuplicateVideo
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal video record: %w", err)
		}

		return bucket.Put([]byte(record.ID), data)
	})
	observe("create", err)
	return err
}

// Get retrieves a record by id. Returns repository.ErrVideoNotFound if absent.
func (s *Store) Get(ctx context.Context, id string) (*model.VideoRecord, error) {
	var record *model.VideoRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(videosBucket).Get([]byte(id))
		if data == nil {
			return repository.ErrVideoNotFound
		}

		record = &model.VideoRecord{}
		return json.Unmarshal(data, record)
	})
	observe("get", err)
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Update performs a full read-modify-write of the record under the bucket's
// transaction lock. If the caller is transitioning the record to completed
// and CompletedAt has not been stamped yet, the store stamps it.
func (s *Store) Update(ctx context.Context, record *model.VideoRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(videosBucket)
		if bucket.Get([]byte(record.ID)) == nil {
			return repository.ErrVideoNotFound
		}

		if record.Status == model.StatusCompleted && record.CompletedAt == nil {
			now := time.Now()
			record.CompletedAt = &now
		}

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal video record: %w", err)
		}

		return bucket.Put([]byte(record.ID), data)
	})
	observe("update", err)
	return err
}

// ListAll returns every record, sorted by CreatedAt descending (newest
// first), for the admin listing view.
func (s *Store) ListAll(ctx context.Context) ([]*model.VideoRecord, error) {
	var records []*model.VideoRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(videosBucket).ForEach(func(_, data []byte) error {
			var record model.VideoRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("unmarshal video record: %w", err)
			}
			records = append(records, &record)
			return nil
		})
	})
	observe("list_all", err)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

// ListPendingCallbacks selects records eligible for webhook redispatch,
// oldest first, so the sweeper drains the longest-waiting callbacks first.
func (s *Store) ListPendingCallbacks(ctx context.Context) ([]*model.VideoRecord, error) {
	var records []*model.VideoRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(videosBucket).ForEach(func(_, data []byte) error {
			var record model.VideoRecord
			if err := json.Unmarshal(data, &record); err != nil {
				return fmt.Errorf("unmarshal video record: %w", err)
			}
			if record.EligibleForCallback() {
				records = append(records, &record)
			}
			return nil
		})
	})
	observe("list_pending_callbacks", err)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}

// TryAcquireForProcessing is the atomic guard behind exactly-once job
// execution: read the current record, evaluate the guard predicate in Go,
// and put the mutated record back inside the same transaction. bbolt has a
// single writer at a time, so this read-modify-write is genuinely atomic —
// a second concurrent caller for the same id blocks until the first
// transaction commits, then evaluates the predicate against the committed
// record. A record left at processing/progress 10 still satisfies the
// crash-recovery clause, so that caller acquires it as well; it loses only
// once progress has moved past 10 or the record is completed.
func (s *Store) TryAcquireForProcessing(ctx context.Context, id string) (bool, *model.VideoRecord, error) {
	var (
		acquired bool
		record   *model.VideoRecord
	)

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(videosBucket)
		data := bucket.Get([]byte(id))
		if data == nil {
			return repository.ErrVideoNotFound
		}

		record = &model.VideoRecord{}
		if err := json.Unmarshal(data, record); err != nil {
			return fmt.Errorf("unmarshal video record: %w", err)
		}

		eligible := record.Status == model.StatusUploading ||
			record.Status == model.StatusFailed ||
			(record.Status == model.StatusProcessing && record.Progress <= 10)
		if !eligible {
			acquired = false
			return nil
		}

		record.Status = model.StatusProcessing
		record.Progress = 10
		acquired = true

		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshal video record: %w", err)
		}
		return bucket.Put([]byte(id), data)
	})
	observe("try_acquire", err)
	if err != nil {
		return false, nil, err
	}

	return acquired, record, nil
}

// Compile-time verification that Store implements repository.VideoRepository.
var _ repository.VideoRepository = (*Store)(nil)

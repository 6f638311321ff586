// Package store persists uploaded batches and instruction statuses in Redis.
// Batches are stored as JSON blobs, one key per batch, with a set per flavor
// acting as the index.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"echeq/model"
)

const (
	checkBatchKeyPrefix    = "echeq:batch:"
	checkBatchIndexKey     = "echeq:batches"
	transferBatchKeyPrefix = "echeq:transfer_batch:"
	transferBatchIndexKey  = "echeq:transfer_batches"
)

// ErrNotFound is returned when a batch ID has no stored record.
var ErrNotFound = fmt.Errorf("batch not found")

// Store is the Redis-backed batch repository.
type Store struct {
	client *redis.Client
}

func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// NewFromAddr connects to Redis at addr and verifies the connection.
func NewFromAddr(ctx context.Context, addr string) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &Store{client: rdb}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// --- check batches ---

func (s *Store) SaveBatch(ctx context.Context, b *model.Batch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("error marshalling batch: %w", err)
	}
	if err := s.client.Set(ctx, checkBatchKeyPrefix+b.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("error saving batch %s: %w", b.ID, err)
	}
	return s.client.SAdd(ctx, checkBatchIndexKey, b.ID).Err()
}

func (s *Store) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	data, err := s.client.Get(ctx, checkBatchKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("error loading batch %s: %w", id, err)
	}
	var b model.Batch
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("error unmarshalling batch %s: %w", id, err)
	}
	return &b, nil
}

// ListBatches returns every stored check batch, newest upload first.
func (s *Store) ListBatches(ctx context.Context) ([]*model.Batch, error) {
	ids, err := s.client.SMembers(ctx, checkBatchIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("error listing batches: %w", err)
	}
	batches := make([]*model.Batch, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBatch(ctx, id)
		if err == ErrNotFound {
			// Index entry outlived its blob; self-heal.
			s.client.SRem(ctx, checkBatchIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].UploadedAt > batches[j].UploadedAt
	})
	return batches, nil
}

func (s *Store) DeleteBatch(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, checkBatchKeyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("error deleting batch %s: %w", id, err)
	}
	if err := s.client.SRem(ctx, checkBatchIndexKey, id).Err(); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateCheckStatuses applies per-instruction run outcomes to a stored batch.
// Successful instructions become "sent" and share the single sentAt the
// portal confirmation produced; failures become "failed".
func (s *Store) UpdateCheckStatuses(ctx context.Context, batchID string, outcomes map[string]bool, sentAt, updatedAt string) error {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	for i := range b.Checks {
		ok, seen := outcomes[b.Checks[i].ID]
		if !seen {
			continue
		}
		if ok {
			b.Checks[i].Status = model.StatusSent
			b.Checks[i].SentAt = sentAt
		} else {
			b.Checks[i].Status = model.StatusFailed
		}
		b.Checks[i].UpdatedAt = updatedAt
	}
	return s.SaveBatch(ctx, b)
}

// MarkChecksProcessing flips the named instructions to "processing" before a
// run starts, so the UI shows them in flight.
func (s *Store) MarkChecksProcessing(ctx context.Context, batchID string, ids []string, updatedAt string) error {
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range b.Checks {
		if want[b.Checks[i].ID] {
			b.Checks[i].Status = model.StatusProcessing
			b.Checks[i].UpdatedAt = updatedAt
		}
	}
	return s.SaveBatch(ctx, b)
}

// ResetCheckStatuses returns every instruction in every batch to "pending".
// Recovery hatch for a run that died mid-flight.
func (s *Store) ResetCheckStatuses(ctx context.Context, updatedAt string) (int, error) {
	batches, err := s.ListBatches(ctx)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, b := range batches {
		changed := false
		for i := range b.Checks {
			if b.Checks[i].Status != model.StatusPending {
				b.Checks[i].Status = model.StatusPending
				b.Checks[i].SentAt = ""
				b.Checks[i].UpdatedAt = updatedAt
				reset++
				changed = true
			}
		}
		if changed {
			if err := s.SaveBatch(ctx, b); err != nil {
				return reset, err
			}
		}
	}
	return reset, nil
}

// --- transfer batches ---

func (s *Store) SaveTransferBatch(ctx context.Context, b *model.TransferBatch) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("error marshalling transfer batch: %w", err)
	}
	if err := s.client.Set(ctx, transferBatchKeyPrefix+b.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("error saving transfer batch %s: %w", b.ID, err)
	}
	return s.client.SAdd(ctx, transferBatchIndexKey, b.ID).Err()
}

func (s *Store) GetTransferBatch(ctx context.Context, id string) (*model.TransferBatch, error) {
	data, err := s.client.Get(ctx, transferBatchKeyPrefix+id).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("error loading transfer batch %s: %w", id, err)
	}
	var b model.TransferBatch
	if err := json.Unmarshal([]byte(data), &b); err != nil {
		return nil, fmt.Errorf("error unmarshalling transfer batch %s: %w", id, err)
	}
	return &b, nil
}

func (s *Store) ListTransferBatches(ctx context.Context) ([]*model.TransferBatch, error) {
	ids, err := s.client.SMembers(ctx, transferBatchIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("error listing transfer batches: %w", err)
	}
	batches := make([]*model.TransferBatch, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetTransferBatch(ctx, id)
		if err == ErrNotFound {
			s.client.SRem(ctx, transferBatchIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	sort.Slice(batches, func(i, j int) bool {
		return batches[i].UploadedAt > batches[j].UploadedAt
	})
	return batches, nil
}

func (s *Store) DeleteTransferBatch(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, transferBatchKeyPrefix+id).Result()
	if err != nil {
		return fmt.Errorf("error deleting transfer batch %s: %w", id, err)
	}
	if err := s.client.SRem(ctx, transferBatchIndexKey, id).Err(); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateTransferStatuses(ctx context.Context, batchID string, outcomes map[string]bool, sentAt, updatedAt string) error {
	b, err := s.GetTransferBatch(ctx, batchID)
	if err != nil {
		return err
	}
	for i := range b.Transfers {
		ok, seen := outcomes[b.Transfers[i].ID]
		if !seen {
			continue
		}
		if ok {
			b.Transfers[i].Status = model.StatusSent
			b.Transfers[i].SentAt = sentAt
		} else {
			b.Transfers[i].Status = model.StatusFailed
		}
		b.Transfers[i].UpdatedAt = updatedAt
	}
	return s.SaveTransferBatch(ctx, b)
}

func (s *Store) MarkTransfersProcessing(ctx context.Context, batchID string, ids []string, updatedAt string) error {
	b, err := s.GetTransferBatch(ctx, batchID)
	if err != nil {
		return err
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range b.Transfers {
		if want[b.Transfers[i].ID] {
			b.Transfers[i].Status = model.StatusProcessing
			b.Transfers[i].UpdatedAt = updatedAt
		}
	}
	return s.SaveTransferBatch(ctx, b)
}

func (s *Store) ResetTransferStatuses(ctx context.Context, updatedAt string) (int, error) {
	batches, err := s.ListTransferBatches(ctx)
	if err != nil {
		return 0, err
	}
	reset := 0
	for _, b := range batches {
		changed := false
		for i := range b.Transfers {
			if b.Transfers[i].Status != model.StatusPending {
				b.Transfers[i].Status = model.StatusPending
				b.Transfers[i].SentAt = ""
				b.Transfers[i].UpdatedAt = updatedAt
				reset++
				changed = true
			}
		}
		if changed {
			if err := s.SaveTransferBatch(ctx, b); err != nil {
				return reset, err
			}
		}
	}
	return reset, nil
}

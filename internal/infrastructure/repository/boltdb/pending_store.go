package boltdb

import (
	"context"
	"log/slog"

	"github.com/mrops-br/offline-catalog/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ domain.PendingWriteStore = (*PendingStore)(nil)

// PendingStore persists the pending-write queue as a single JSON array.
// Every mutation is a read-modify-write inside one bolt transaction;
// failures are logged and swallowed.
type PendingStore struct {
	store  *Store
	tracer trace.Tracer
	logger *slog.Logger
}

// NewPendingStore creates a pending-write queue backed by store
func NewPendingStore(store *Store, tracer trace.Tracer, logger *slog.Logger) *PendingStore {
	return &PendingStore{
		store:  store,
		tracer: tracer,
		logger: logger,
	}
}

// Append adds write at the tail of the queue
func (s *PendingStore) Append(ctx context.Context, write domain.PendingWrite) {
	ctx, span := s.tracer.Start(ctx, "PendingStore.Append")
	defer span.End()

	count := s.mutate(ctx, func(writes []domain.PendingWrite) ([]domain.PendingWrite, bool) {
		return append(writes, write), true
	})

	span.SetAttributes(attribute.Int("pending.count", count))
	s.logger.InfoContext(ctx, "Pending write queued",
		slog.String("product_name", write.Name),
		slog.Int("pending_count", count),
	)
}

// ListAll returns the queue in FIFO order. An unreadable blob reads as empty.
func (s *PendingStore) ListAll(ctx context.Context) []domain.PendingWrite {
	data, err := s.store.Get(PendingProductsKey)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read pending writes", slog.String("error", err.Error()))
		return nil
	}
	return s.decode(ctx, data)
}

// RemoveAt drops the entry at index; out-of-range indexes are ignored
func (s *PendingStore) RemoveAt(ctx context.Context, index int) {
	ctx, span := s.tracer.Start(ctx, "PendingStore.RemoveAt")
	defer span.End()

	count := s.mutate(ctx, func(writes []domain.PendingWrite) ([]domain.PendingWrite, bool) {
		if index < 0 || index >= len(writes) {
			return writes, false
		}
		return append(writes[:index], writes[index+1:]...), true
	})

	span.SetAttributes(attribute.Int("pending.count", count))
}

// Len reports the number of queued writes
func (s *PendingStore) Len(ctx context.Context) int {
	return len(s.ListAll(ctx))
}

// mutate applies fn to the stored queue within one transaction and returns
// the resulting length. fn reports whether the queue changed.
func (s *PendingStore) mutate(ctx context.Context, fn func([]domain.PendingWrite) ([]domain.PendingWrite, bool)) int {
	var count int
	err := s.store.Update(PendingProductsKey, func(current []byte) ([]byte, error) {
		writes, changed := fn(s.decode(ctx, current))
		count = len(writes)
		if !changed {
			return nil, nil
		}
		return json.Marshal(writes)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to persist pending writes", slog.String("error", err.Error()))
	}
	return count
}

func (s *PendingStore) decode(ctx context.Context, data []byte) []domain.PendingWrite {
	if len(data) == 0 {
		return nil
	}

	var writes []domain.PendingWrite
	if err := json.Unmarshal(data, &writes); err != nil {
		s.logger.WarnContext(ctx, "Failed to decode pending writes", slog.String("error", err.Error()))
		return nil
	}
	return writes
}

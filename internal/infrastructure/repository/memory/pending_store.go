package memory

import (
	"context"
	"log/slog"
	"sync"

	"github.com/mrops-br/offline-catalog/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ domain.PendingWriteStore = (*PendingStore)(nil)

// PendingStore is an in-memory implementation of domain.PendingWriteStore
type PendingStore struct {
	mu     sync.RWMutex
	writes []domain.PendingWrite
	tracer trace.Tracer
	logger *slog.Logger
}

// NewPendingStore creates a new in-memory pending-write queue
func NewPendingStore(tracer trace.Tracer, logger *slog.Logger) *PendingStore {
	return &PendingStore{
		tracer: tracer,
		logger: logger,
	}
}

// Append adds write at the tail of the queue
func (s *PendingStore) Append(ctx context.Context, write domain.PendingWrite) {
	ctx, span := s.tracer.Start(ctx, "PendingStore.Append")
	defer span.End()

	s.mu.Lock()
	s.writes = append(s.writes, write)
	count := len(s.writes)
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("pending.count", count))
	s.logger.InfoContext(ctx, "Pending write queued",
		slog.String("product_name", write.Name),
		slog.Int("pending_count", count),
	)
}

// ListAll returns a snapshot of the queue in FIFO order
func (s *PendingStore) ListAll(ctx context.Context) []domain.PendingWrite {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.PendingWrite, len(s.writes))
	copy(out, s.writes)
	return out
}

// RemoveAt drops the entry at index; out-of-range indexes are ignored
func (s *PendingStore) RemoveAt(ctx context.Context, index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.writes) {
		return
	}
	s.writes = append(s.writes[:index:index], s.writes[index+1:]...)
}

// Len reports the number of queued writes
func (s *PendingStore) Len(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.writes)
}

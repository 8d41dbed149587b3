package memory

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/mrops-br/offline-catalog/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ domain.FavoriteStore = (*FavoriteStore)(nil)

// FavoriteStore is an in-memory implementation of domain.FavoriteStore
type FavoriteStore struct {
	mu        sync.RWMutex
	favorites domain.FavoriteSet
	tracer    trace.Tracer
	logger    *slog.Logger
}

// NewFavoriteStore creates a new in-memory favorite store
func NewFavoriteStore(tracer trace.Tracer, logger *slog.Logger) *FavoriteStore {
	return &FavoriteStore{
		favorites: domain.FavoriteSet{},
		tracer:    tracer,
		logger:    logger,
	}
}

func (s *FavoriteStore) SetFavorite(ctx context.Context, key string, favorite bool) {
	ctx, span := s.tracer.Start(ctx, "FavoriteStore.SetFavorite")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.name", key),
		attribute.Bool("product.favorite", favorite),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites[key] = favorite

	s.logger.DebugContext(ctx, "Favorite updated",
		slog.String("product_name", key),
		slog.Bool("favorite", favorite),
	)
}

func (s *FavoriteStore) ReplaceAll(ctx context.Context, set domain.FavoriteSet) {
	_, span := s.tracer.Start(ctx, "FavoriteStore.ReplaceAll")
	defer span.End()

	span.SetAttributes(attribute.Int("favorite.count", len(set)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.favorites = maps.Clone(set)
	if s.favorites == nil {
		s.favorites = domain.FavoriteSet{}
	}
}

func (s *FavoriteStore) GetAll(ctx context.Context) domain.FavoriteSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.favorites)
}

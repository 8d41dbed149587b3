package boltdb

import (
	"context"
	"log/slog"

	"github.com/mrops-br/offline-catalog/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var _ domain.FavoriteStore = (*FavoriteStore)(nil)

// FavoriteStore persists the favorite set as a single JSON object keyed by
// product name.
type FavoriteStore struct {
	store  *Store
	tracer trace.Tracer
	logger *slog.Logger
}

// NewFavoriteStore creates a favorite store backed by store
func NewFavoriteStore(store *Store, tracer trace.Tracer, logger *slog.Logger) *FavoriteStore {
	return &FavoriteStore{
		store:  store,
		tracer: tracer,
		logger: logger,
	}
}

// SetFavorite records the flag for a single product
func (s *FavoriteStore) SetFavorite(ctx context.Context, key string, favorite bool) {
	ctx, span := s.tracer.Start(ctx, "FavoriteStore.SetFavorite")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.name", key),
		attribute.Bool("product.favorite", favorite),
	)

	err := s.store.Update(FavoriteProductsKey, func(current []byte) ([]byte, error) {
		set := s.decode(ctx, current)
		set[key] = favorite
		return json.Marshal(set)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to persist favorites", slog.String("error", err.Error()))
	}
}

// ReplaceAll overwrites the persisted set
func (s *FavoriteStore) ReplaceAll(ctx context.Context, set domain.FavoriteSet) {
	ctx, span := s.tracer.Start(ctx, "FavoriteStore.ReplaceAll")
	defer span.End()

	span.SetAttributes(attribute.Int("favorite.count", len(set)))
	s.save(ctx, set)
}

// GetAll returns the persisted set. Both the map layout and the older
// list-of-names layout are accepted; a corrupt blob reads as empty.
func (s *FavoriteStore) GetAll(ctx context.Context) domain.FavoriteSet {
	data, err := s.store.Get(FavoriteProductsKey)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read favorites", slog.String("error", err.Error()))
		return domain.FavoriteSet{}
	}
	return s.decode(ctx, data)
}

func (s *FavoriteStore) decode(ctx context.Context, data []byte) domain.FavoriteSet {
	set := domain.FavoriteSet{}
	if len(data) == 0 {
		return set
	}

	if err := json.Unmarshal(data, &set); err == nil {
		if set == nil {
			return domain.FavoriteSet{}
		}
		return set
	}

	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		s.logger.WarnContext(ctx, "Failed to decode favorites", slog.String("error", err.Error()))
		return domain.FavoriteSet{}
	}
	set = make(domain.FavoriteSet, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func (s *FavoriteStore) save(ctx context.Context, set domain.FavoriteSet) {
	data, err := json.Marshal(set)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to encode favorites", slog.String("error", err.Error()))
		return
	}
	if err := s.store.Put(FavoriteProductsKey, data); err != nil {
		s.logger.WarnContext(ctx, "Failed to persist favorites", slog.String("error", err.Error()))
	}
}

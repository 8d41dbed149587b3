package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mrops-br/offline-catalog/internal/app/dto"
	"github.com/mrops-br/offline-catalog/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// User-facing confirmation messages
const (
	MessageAdded       = "Product added successfully!"
	MessageQueued      = "Product saved locally and will be synced when online"
	MessageFavorited   = "Product marked as favorite!"
	MessageUnfavorited = "Product removed from favorites"
)

const drainKey = "pending-drain"

var ErrAlreadyStarted = errors.New("catalog service already started")

// CatalogService owns the product list and its derived view, and keeps the
// remote catalog, the pending-write queue and the favorite set in step with
// connectivity changes.
//
// State is guarded by mu. Network and storage calls run without the lock
// held; their results are applied under it afterwards.
type CatalogService struct {
	client    domain.CatalogClient
	pending   domain.PendingWriteStore
	favorites domain.FavoriteStore
	monitor   domain.ConnectivityMonitor

	tracer     trace.Tracer
	logger     *slog.Logger
	operations metric.Int64Counter
	drained    metric.Int64Counter

	drains     singleflight.Group
	background sync.WaitGroup

	mu           sync.Mutex
	baseCtx      context.Context
	started      bool
	closed       bool
	subscription domain.Subscription
	products     []domain.Product
	filtered     []domain.Product
	criteria     filterCriteria
	isLoading    bool
	isOffline    bool
	errorMessage string
	alertMessage string
}

// NewCatalogService creates a new catalog service. Call Start to begin
// reacting to connectivity changes.
func NewCatalogService(
	client domain.CatalogClient,
	pending domain.PendingWriteStore,
	favorites domain.FavoriteStore,
	monitor domain.ConnectivityMonitor,
	tracer trace.Tracer,
	meter metric.Meter,
	logger *slog.Logger,
) *CatalogService {
	operations, _ := meter.Int64Counter(
		"catalog.operations",
		metric.WithDescription("Total number of catalog operations"),
	)

	drained, _ := meter.Int64Counter(
		"catalog.pending.drained",
		metric.WithDescription("Total number of pending writes confirmed by the server"),
	)

	s := &CatalogService{
		client:     client,
		pending:    pending,
		favorites:  favorites,
		monitor:    monitor,
		tracer:     tracer,
		logger:     logger,
		operations: operations,
		drained:    drained,
		baseCtx:    context.Background(),
		criteria:   filterCriteria{sortMode: domain.SortDefault},
		isOffline:  !monitor.IsConnected(),
	}

	overlayFavorites(s.products, favorites.GetAll(context.Background()))
	s.filtered = buildView(s.products, s.criteria)
	return s
}

// Start registers the connectivity handler and applies the current state.
// If the network is already reachable, one drain and reload is kicked off so
// writes queued by a previous run are not left behind.
func (s *CatalogService) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	// Deliveries are asynchronous, so subscribing under mu cannot deadlock
	sub, err := s.monitor.Subscribe(s.handleConnectivity)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to subscribe to connectivity: %w", err)
	}
	s.started = true
	s.baseCtx = ctx
	s.subscription = sub
	s.mu.Unlock()

	s.handleConnectivity(s.monitor.IsConnected())
	return nil
}

// Close unregisters the connectivity handler and waits for background drains
func (s *CatalogService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	sub := s.subscription
	s.mu.Unlock()

	var err error
	if started {
		err = s.monitor.Unsubscribe(sub)
	}
	s.background.Wait()
	return err
}

// Wait blocks until background drains started so far have finished
func (s *CatalogService) Wait() {
	s.background.Wait()
}

func (s *CatalogService) handleConnectivity(connected bool) {
	s.mu.Lock()
	s.isOffline = !connected
	if !connected || s.closed {
		s.mu.Unlock()
		return
	}
	ctx := s.baseCtx
	s.background.Add(1)
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Connectivity restored, syncing pending products")

	go func() {
		defer s.background.Done()
		s.SyncPendingProducts(ctx)
	}()
}

// LoadProducts replaces the product list with a fresh fetch. On failure the
// current list is kept and the error is recorded as the error message.
func (s *CatalogService) LoadProducts(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "CatalogService.LoadProducts")
	defer span.End()

	s.setLoading(true)

	products, err := s.client.FetchAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to fetch products")
		s.logger.ErrorContext(ctx, "Failed to load products",
			slog.String("error", err.Error()),
		)

		s.mu.Lock()
		s.isLoading = false
		s.errorMessage = err.Error()
		s.mu.Unlock()

		s.record(ctx, "load", "failure")
		return err
	}

	overlayFavorites(products, s.favorites.GetAll(ctx))

	s.mu.Lock()
	s.products = products
	s.filtered = buildView(s.products, s.criteria)
	s.isLoading = false
	s.errorMessage = ""
	s.mu.Unlock()

	span.SetAttributes(attribute.Int("product.count", len(products)))
	s.record(ctx, "load", "success")
	s.logger.InfoContext(ctx, "Products loaded",
		slog.Int("count", len(products)),
	)

	span.SetStatus(codes.Ok, "Products loaded")
	return nil
}

// AddProduct submits a new product when online, or queues it locally when
// offline. Input is expected to be validated by the caller.
func (s *CatalogService) AddProduct(ctx context.Context, write domain.PendingWrite) *dto.AddProductResult {
	ctx, span := s.tracer.Start(ctx, "CatalogService.AddProduct")
	defer span.End()

	s.mu.Lock()
	offline := s.isOffline
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("product.name", write.Name),
		attribute.String("product.category", write.Category),
		attribute.Bool("catalog.offline", offline),
	)

	if offline {
		s.pending.Append(ctx, write)

		s.mu.Lock()
		s.alertMessage = MessageQueued
		s.mu.Unlock()

		s.record(ctx, "add", "queued")
		s.logger.InfoContext(ctx, "Product queued for sync",
			slog.String("name", write.Name),
		)
		span.SetStatus(codes.Ok, "Product queued")
		return &dto.AddProductResult{Success: true, Queued: true, Message: MessageQueued}
	}

	s.setLoading(true)

	result, err := s.client.Submit(ctx, write)
	if err == nil && !result.Success {
		err = fmt.Errorf("%w: %s", domain.ErrApplicationFailure, result.Message)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to add product")
		s.logger.ErrorContext(ctx, "Failed to add product",
			slog.String("name", write.Name),
			slog.String("error", err.Error()),
		)

		s.mu.Lock()
		s.isLoading = false
		s.errorMessage = err.Error()
		s.mu.Unlock()

		s.record(ctx, "add", "failure")
		return &dto.AddProductResult{Success: false, Message: err.Error()}
	}

	s.mu.Lock()
	s.isLoading = false
	s.alertMessage = MessageAdded
	s.mu.Unlock()

	span.SetAttributes(attribute.Int64("product.id", result.ProductID))
	s.record(ctx, "add", "success")
	s.logger.InfoContext(ctx, "Product added",
		slog.String("name", write.Name),
		slog.Int64("product_id", result.ProductID),
	)

	// The reload outcome lands in the error message; the add itself succeeded.
	_ = s.LoadProducts(ctx)

	span.SetStatus(codes.Ok, "Product added")
	return &dto.AddProductResult{Success: true, Message: MessageAdded}
}

// SyncPendingProducts submits every queued write in FIFO order, removing the
// ones the server accepts, then reloads the catalog once. Concurrent calls
// share a single pass. It returns how many writes were confirmed.
func (s *CatalogService) SyncPendingProducts(ctx context.Context) int {
	v, _, shared := s.drains.Do(drainKey, func() (any, error) {
		return s.drain(ctx), nil
	})
	if shared {
		s.logger.DebugContext(ctx, "Joined in-flight pending drain")
	}
	return v.(int)
}

func (s *CatalogService) drain(ctx context.Context) int {
	ctx, span := s.tracer.Start(ctx, "CatalogService.SyncPendingProducts")
	defer span.End()

	writes := s.pending.ListAll(ctx)
	span.SetAttributes(attribute.Int("pending.count", len(writes)))

	removed := 0
	for i, write := range writes {
		result, err := s.client.Submit(ctx, write)
		if err == nil && !result.Success {
			err = fmt.Errorf("%w: %s", domain.ErrApplicationFailure, result.Message)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "Pending product not synced",
				slog.String("name", write.Name),
				slog.Int("position", i),
				slog.String("error", err.Error()),
			)
			continue
		}

		// Earlier removals in this pass shift the remaining entries left.
		s.pending.RemoveAt(ctx, i-removed)
		removed++
	}

	s.drained.Add(ctx, int64(removed))
	span.SetAttributes(
		attribute.Int("pending.synced", removed),
		attribute.Int("pending.failed", len(writes)-removed),
	)
	s.record(ctx, "sync", "success")
	s.logger.InfoContext(ctx, "Pending products drained",
		slog.Int("synced", removed),
		slog.Int("remaining", len(writes)-removed),
	)

	if err := s.LoadProducts(ctx); err != nil {
		s.logger.WarnContext(ctx, "Reload after sync failed",
			slog.String("error", err.Error()),
		)
	}
	return removed
}

// ToggleFavorite flips the favorite flag of the named product and persists
// the favorite set. It reports false when no loaded product has that name.
func (s *CatalogService) ToggleFavorite(ctx context.Context, name string) bool {
	ctx, span := s.tracer.Start(ctx, "CatalogService.ToggleFavorite")
	defer span.End()

	span.SetAttributes(attribute.String("product.name", name))

	s.mu.Lock()
	idx := -1
	for i := range s.products {
		if s.products[i].PersistentID() == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		span.SetStatus(codes.Error, "Product not found")
		s.logger.WarnContext(ctx, "Favorite toggle for unknown product",
			slog.String("name", name),
		)
		s.record(ctx, "favorite", "not_found")
		return false
	}

	favorite := !s.products[idx].IsFavorite
	s.products[idx].IsFavorite = favorite
	s.filtered = buildView(s.products, s.criteria)
	if favorite {
		s.alertMessage = MessageFavorited
	} else {
		s.alertMessage = MessageUnfavorited
	}
	s.mu.Unlock()

	set := s.favorites.GetAll(ctx)
	if set == nil {
		set = domain.FavoriteSet{}
	}
	if favorite {
		set[name] = true
	} else {
		delete(set, name)
	}
	s.favorites.ReplaceAll(ctx, set)

	span.SetAttributes(attribute.Bool("product.favorite", favorite))
	s.record(ctx, "favorite", "success")
	s.logger.InfoContext(ctx, "Favorite toggled",
		slog.String("name", name),
		slog.Bool("favorite", favorite),
	)

	span.SetStatus(codes.Ok, "Favorite toggled")
	return true
}

func (s *CatalogService) SetSearchText(text string) {
	s.mu.Lock()
	s.criteria.searchText = text
	s.mu.Unlock()
	s.FilterProducts()
}

func (s *CatalogService) SetFavoritesOnly(enabled bool) {
	s.mu.Lock()
	s.criteria.favoritesOnly = enabled
	s.mu.Unlock()
	s.FilterProducts()
}

func (s *CatalogService) SetSortMode(mode domain.SortMode) {
	s.mu.Lock()
	s.criteria.sortMode = mode
	s.mu.Unlock()
	s.FilterProducts()
}

// FilterProducts recomputes the derived view from the product list
func (s *CatalogService) FilterProducts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filtered = buildView(s.products, s.criteria)
}

// Products returns the current filtered and sorted view
func (s *CatalogService) Products() []*dto.ProductResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return dto.ToProductResponseList(s.filtered)
}

// PendingCount reports the number of writes waiting to be synced
func (s *CatalogService) PendingCount(ctx context.Context) int {
	return len(s.pending.ListAll(ctx))
}

// State returns a snapshot of the observable state
func (s *CatalogService) State(ctx context.Context) *dto.StateResponse {
	pending := s.PendingCount(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	return &dto.StateResponse{
		IsLoading:     s.isLoading,
		IsOffline:     s.isOffline,
		SearchText:    s.criteria.searchText,
		FavoritesOnly: s.criteria.favoritesOnly,
		SortMode:      string(s.criteria.sortMode),
		ErrorMessage:  s.errorMessage,
		AlertMessage:  s.alertMessage,
		ProductCount:  len(s.products),
		PendingCount:  pending,
	}
}

func (s *CatalogService) setLoading(loading bool) {
	s.mu.Lock()
	s.isLoading = loading
	s.mu.Unlock()
}

func (s *CatalogService) record(ctx context.Context, operation, result string) {
	s.operations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("result", result),
		),
	)
}

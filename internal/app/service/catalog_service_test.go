package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrops-br/offline-catalog/internal/domain"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/connectivity"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/repository/memory"
	"github.com/shopspring/decimal"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"gotest.tools/assert"
	is "gotest.tools/assert/cmp"
)

type catalogItem struct {
	name     string
	category string
	price    string
}

// fakeClient serves a fixed catalog and records submissions. Each fetch
// decodes fresh product instances, as the real client does.
type fakeClient struct {
	mu        sync.Mutex
	catalog   []catalogItem
	fetchErr  error
	fetches   int
	submitted []domain.PendingWrite
	submit    func(write domain.PendingWrite) (*domain.SubmissionResult, error)
}

func (c *fakeClient) FetchAll(ctx context.Context) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches++
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	products := make([]domain.Product, 0, len(c.catalog))
	for _, item := range c.catalog {
		products = append(products, domain.NewProduct(
			item.name, item.category, decimal.RequireFromString(item.price), decimal.NewFromInt(5), nil,
		))
	}
	return products, nil
}

func (c *fakeClient) Submit(ctx context.Context, write domain.PendingWrite) (*domain.SubmissionResult, error) {
	c.mu.Lock()
	c.submitted = append(c.submitted, write)
	submit := c.submit
	c.mu.Unlock()

	if submit != nil {
		return submit(write)
	}
	return &domain.SubmissionResult{Success: true, Message: "Product Added Successfully!", ProductID: 1}, nil
}

func (c *fakeClient) submissions() []domain.PendingWrite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PendingWrite(nil), c.submitted...)
}

func (c *fakeClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

type harness struct {
	client    *fakeClient
	pending   *memory.PendingStore
	favorites *memory.FavoriteStore
	monitor   *connectivity.Monitor
	svc       *CatalogService
}

func newHarness(t *testing.T, catalog ...catalogItem) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := tracenoop.NewTracerProvider().Tracer("")

	h := &harness{
		client:    &fakeClient{catalog: catalog},
		pending:   memory.NewPendingStore(tracer, logger),
		favorites: memory.NewFavoriteStore(tracer, logger),
		monitor:   connectivity.NewMonitor(nil, time.Second, logger),
	}
	h.svc = NewCatalogService(h.client, h.pending, h.favorites, h.monitor,
		tracer, metricnoop.NewMeterProvider().Meter(""), logger)
	t.Cleanup(func() {
		assert.NilError(t, h.svc.Close())
	})
	return h
}

// setConnected feeds an observation and waits for every consequence to settle
func (h *harness) setConnected(connected bool) {
	h.monitor.Observe(connected)
	h.monitor.Wait()
	h.svc.Wait()
}

func names(h *harness) []string {
	var out []string
	for _, p := range h.svc.Products() {
		out = append(out, p.Name)
	}
	return out
}

func widget() domain.PendingWrite {
	return domain.PendingWrite{
		Name:     "Widget",
		Category: domain.CategoryProduct,
		Price:    decimal.RequireFromString("9.99"),
		TaxRate:  decimal.RequireFromString("5.0"),
	}
}

func TestDefaultSortFavoritesFirstThenName(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		catalogItem{"banana", domain.CategoryProduct, "1"},
		catalogItem{"Apple", domain.CategoryProduct, "2"},
		catalogItem{"cherry", domain.CategoryProduct, "3"},
		catalogItem{"apple", domain.CategoryProduct, "4"},
		catalogItem{"Zucchini", domain.CategoryProduct, "5"},
	)
	h.favorites.ReplaceAll(ctx, domain.FavoriteSet{"cherry": true, "Zucchini": true})

	assert.NilError(t, h.svc.LoadProducts(ctx))
	assert.DeepEqual(t, []string{"Zucchini", "cherry", "Apple", "apple", "banana"}, names(h))
}

func TestPriceSortIgnoresFavorites(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		catalogItem{"Alpha", domain.CategoryProduct, "30"},
		catalogItem{"Beta", domain.CategoryProduct, "10.5"},
		catalogItem{"Gamma", domain.CategoryProduct, "20"},
		catalogItem{"Delta", domain.CategoryProduct, "10.5"},
	)
	h.favorites.ReplaceAll(ctx, domain.FavoriteSet{"Alpha": true})
	assert.NilError(t, h.svc.LoadProducts(ctx))

	h.svc.SetSortMode(domain.SortPriceAscending)
	assert.DeepEqual(t, []string{"Beta", "Delta", "Gamma", "Alpha"}, names(h))

	h.svc.SetSortMode(domain.SortPriceDescending)
	assert.DeepEqual(t, []string{"Alpha", "Gamma", "Beta", "Delta"}, names(h))

	h.svc.SetSortMode(domain.SortDefault)
	assert.DeepEqual(t, []string{"Alpha", "Beta", "Delta", "Gamma"}, names(h))
}

func TestToggleFavoriteTwiceRestoresState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		catalogItem{"Widget", domain.CategoryProduct, "9.99"},
		catalogItem{"Gadget", domain.CategoryProduct, "5"},
	)
	h.favorites.ReplaceAll(ctx, domain.FavoriteSet{"Gadget": true})
	assert.NilError(t, h.svc.LoadProducts(ctx))
	before := h.favorites.GetAll(ctx)

	assert.Assert(t, h.svc.ToggleFavorite(ctx, "Widget"))
	assert.Equal(t, true, h.favorites.GetAll(ctx).IsFavorite("Widget"))
	assert.Equal(t, MessageFavorited, h.svc.State(ctx).AlertMessage)
	assert.DeepEqual(t, []string{"Gadget", "Widget"}, names(h))

	assert.Assert(t, h.svc.ToggleFavorite(ctx, "Widget"))
	assert.Equal(t, MessageUnfavorited, h.svc.State(ctx).AlertMessage)
	assert.DeepEqual(t, before, h.favorites.GetAll(ctx))
	for _, p := range h.svc.Products() {
		if p.Name == "Widget" {
			assert.Equal(t, false, p.IsFavorite)
		}
	}
}

func TestToggleFavoriteUnknownProduct(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, catalogItem{"Widget", domain.CategoryProduct, "1"})
	assert.NilError(t, h.svc.LoadProducts(ctx))

	assert.Equal(t, false, h.svc.ToggleFavorite(ctx, "Nope"))
	assert.Equal(t, 0, len(h.favorites.GetAll(ctx)))
	assert.Equal(t, "", h.svc.State(ctx).AlertMessage)
}

func TestOfflineAddThenReconnectDrains(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.setConnected(false)
	assert.NilError(t, h.svc.Start(ctx))

	state := h.svc.State(ctx)
	assert.Equal(t, true, state.IsOffline)

	result := h.svc.AddProduct(ctx, widget())
	assert.Equal(t, true, result.Success)
	assert.Equal(t, true, result.Queued)
	assert.Equal(t, MessageQueued, result.Message)
	assert.Equal(t, 0, len(h.client.submissions()))

	writes := h.pending.ListAll(ctx)
	assert.Equal(t, 1, len(writes))
	assert.Equal(t, "Widget", writes[0].Name)
	assert.Equal(t, domain.CategoryProduct, writes[0].Category)
	assert.Assert(t, writes[0].Price.Equal(decimal.RequireFromString("9.99")))
	assert.Assert(t, writes[0].TaxRate.Equal(decimal.NewFromInt(5)))
	assert.Assert(t, writes[0].Image == nil)

	h.setConnected(true)

	submitted := h.client.submissions()
	assert.Equal(t, 1, len(submitted))
	assert.Equal(t, "Widget", submitted[0].Name)
	assert.Assert(t, submitted[0].Price.Equal(decimal.RequireFromString("9.99")))
	assert.Equal(t, 0, h.pending.Len(ctx))
	assert.Equal(t, 1, h.client.fetchCount())
	assert.Equal(t, false, h.svc.State(ctx).IsOffline)
}

func TestGoingOfflineHasNoSideEffects(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.pending.Append(ctx, widget())
	h.setConnected(false)
	assert.NilError(t, h.svc.Start(ctx))

	h.setConnected(false)
	assert.Equal(t, 0, len(h.client.submissions()))
	assert.Equal(t, 0, h.client.fetchCount())
	assert.Equal(t, 1, h.svc.PendingCount(ctx))
}

func TestStartDrainsWhenAlreadyConnected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, catalogItem{"Widget", domain.CategoryProduct, "9.99"})
	h.pending.Append(ctx, widget())

	assert.NilError(t, h.svc.Start(ctx))
	assert.Assert(t, errors.Is(h.svc.Start(ctx), ErrAlreadyStarted))
	h.svc.Wait()

	assert.Equal(t, 1, len(h.client.submissions()))
	assert.Equal(t, 0, h.pending.Len(ctx))
	assert.DeepEqual(t, []string{"Widget"}, names(h))
}

func TestReloadKeepsFavoriteAcrossInstances(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, catalogItem{"Widget", domain.CategoryProduct, "9.99"})

	assert.NilError(t, h.svc.LoadProducts(ctx))
	first := h.svc.Products()[0]
	assert.Assert(t, h.svc.ToggleFavorite(ctx, "Widget"))

	assert.NilError(t, h.svc.LoadProducts(ctx))
	reloaded := h.svc.Products()[0]

	assert.Assert(t, first.ID != reloaded.ID)
	assert.Equal(t, "Widget", reloaded.Name)
	assert.Equal(t, true, reloaded.IsFavorite)
}

func TestSearchIsCaseInsensitiveOverNameAndCategory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		catalogItem{"Alpha Product", domain.CategoryProduct, "1"},
		catalogItem{"Beta Service", domain.CategoryService, "2"},
	)
	assert.NilError(t, h.svc.LoadProducts(ctx))

	h.svc.SetSearchText("serv")
	assert.DeepEqual(t, []string{"Beta Service"}, names(h))

	h.svc.SetSearchText("PRODUCT")
	assert.DeepEqual(t, []string{"Alpha Product"}, names(h))

	h.svc.SetSearchText("")
	assert.Equal(t, 2, len(names(h)))
}

func TestFavoritesOnlyFilter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t,
		catalogItem{"Alpha", domain.CategoryProduct, "1"},
		catalogItem{"Beta", domain.CategoryService, "2"},
		catalogItem{"Gamma", domain.CategoryService, "3"},
	)
	h.favorites.ReplaceAll(ctx, domain.FavoriteSet{"Gamma": true, "Beta": true})
	assert.NilError(t, h.svc.LoadProducts(ctx))

	h.svc.SetFavoritesOnly(true)
	assert.DeepEqual(t, []string{"Beta", "Gamma"}, names(h))

	h.svc.SetSearchText("gam")
	assert.DeepEqual(t, []string{"Gamma"}, names(h))

	state := h.svc.State(ctx)
	assert.Equal(t, true, state.FavoritesOnly)
	assert.Equal(t, "gam", state.SearchText)
	assert.Equal(t, 3, state.ProductCount)
}

func failNamed(failing ...string) func(domain.PendingWrite) (*domain.SubmissionResult, error) {
	return func(write domain.PendingWrite) (*domain.SubmissionResult, error) {
		for _, name := range failing {
			if write.Name == name {
				return nil, errors.New("connection reset")
			}
		}
		return &domain.SubmissionResult{Success: true, Message: "ok", ProductID: 7}, nil
	}
}

func TestDrainPartialFailureKeepsFailedEntry(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.client.submit = failNamed("First")

	h.pending.Append(ctx, domain.PendingWrite{Name: "First"})
	h.pending.Append(ctx, domain.PendingWrite{Name: "Second"})

	assert.Equal(t, 1, h.svc.SyncPendingProducts(ctx))

	writes := h.pending.ListAll(ctx)
	assert.Equal(t, 1, len(writes))
	assert.Equal(t, "First", writes[0].Name)
	assert.Equal(t, 2, len(h.client.submissions()))
	assert.Equal(t, 1, h.client.fetchCount())
}

func TestDrainRemovesShiftedEntries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.client.submit = failNamed("C", "E")

	for _, name := range []string{"A", "B", "C", "D", "E"} {
		h.pending.Append(ctx, domain.PendingWrite{Name: name})
	}

	assert.Equal(t, 3, h.svc.SyncPendingProducts(ctx))

	var remaining []string
	for _, w := range h.pending.ListAll(ctx) {
		remaining = append(remaining, w.Name)
	}
	assert.DeepEqual(t, []string{"C", "E"}, remaining)
}

func TestDrainTreatsRejectionAsFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.client.submit = func(domain.PendingWrite) (*domain.SubmissionResult, error) {
		return &domain.SubmissionResult{Success: false, Message: "Duplicate product"}, nil
	}
	h.pending.Append(ctx, widget())

	assert.Equal(t, 0, h.svc.SyncPendingProducts(ctx))
	assert.Equal(t, 1, h.pending.Len(ctx))
	assert.Equal(t, "", h.svc.State(ctx).ErrorMessage)
}

func TestOverlappingDrainsShareOnePass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.client.submit = func(domain.PendingWrite) (*domain.SubmissionResult, error) {
		once.Do(func() { close(entered) })
		<-release
		return &domain.SubmissionResult{Success: false, Message: "rejected"}, nil
	}
	h.pending.Append(ctx, widget())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.svc.SyncPendingProducts(ctx)
	}()
	<-entered
	go func() {
		defer wg.Done()
		h.svc.SyncPendingProducts(ctx)
	}()
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, len(h.client.submissions()))
	assert.Equal(t, 1, h.client.fetchCount())
}

func TestLoadFailureKeepsExistingList(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, catalogItem{"Widget", domain.CategoryProduct, "1"})
	assert.NilError(t, h.svc.LoadProducts(ctx))

	h.client.mu.Lock()
	h.client.fetchErr = errors.New("transport failure: dial tcp: timeout")
	h.client.mu.Unlock()

	err := h.svc.LoadProducts(ctx)
	assert.ErrorContains(t, err, "timeout")

	state := h.svc.State(ctx)
	assert.Equal(t, false, state.IsLoading)
	assert.Assert(t, is.Contains(state.ErrorMessage, "timeout"))
	assert.DeepEqual(t, []string{"Widget"}, names(h))
}

func TestOnlineAddReloadsCatalog(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, catalogItem{"Widget", domain.CategoryProduct, "9.99"})

	result := h.svc.AddProduct(ctx, widget())
	assert.Equal(t, true, result.Success)
	assert.Equal(t, false, result.Queued)
	assert.Equal(t, MessageAdded, result.Message)

	assert.Equal(t, 1, len(h.client.submissions()))
	assert.Equal(t, 1, h.client.fetchCount())
	assert.Equal(t, 0, h.pending.Len(ctx))
	assert.DeepEqual(t, []string{"Widget"}, names(h))

	state := h.svc.State(ctx)
	assert.Equal(t, false, state.IsLoading)
	assert.Equal(t, MessageAdded, state.AlertMessage)
}

func TestOnlineAddRejectedLeavesStateAlone(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.client.submit = func(domain.PendingWrite) (*domain.SubmissionResult, error) {
		return &domain.SubmissionResult{Success: false, Message: "Duplicate product"}, nil
	}

	result := h.svc.AddProduct(ctx, widget())
	assert.Equal(t, false, result.Success)
	assert.Assert(t, strings.Contains(result.Message, "Duplicate product"))

	state := h.svc.State(ctx)
	assert.Equal(t, false, state.IsLoading)
	assert.Assert(t, is.Contains(state.ErrorMessage, "Duplicate product"))
	assert.Equal(t, "", state.AlertMessage)
	assert.Equal(t, 0, h.client.fetchCount())
	assert.Equal(t, 0, h.pending.Len(ctx))
}

func TestOnlineAddTransportError(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.client.submit = func(domain.PendingWrite) (*domain.SubmissionResult, error) {
		return nil, domain.ErrTransport
	}

	result := h.svc.AddProduct(ctx, widget())
	assert.Equal(t, false, result.Success)
	assert.Equal(t, domain.ErrTransport.Error(), h.svc.State(ctx).ErrorMessage)
	assert.Equal(t, false, h.svc.State(ctx).IsLoading)
	assert.Equal(t, 0, h.pending.Len(ctx))
}

func TestCloseStopsReactingToConnectivity(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.setConnected(false)
	assert.NilError(t, h.svc.Start(ctx))
	h.pending.Append(ctx, widget())

	assert.NilError(t, h.svc.Close())
	h.setConnected(true)

	assert.Equal(t, 0, len(h.client.submissions()))
	assert.Equal(t, 1, h.pending.Len(ctx))
}

func TestCloseLeavesOtherServicesOnSharedMonitor(t *testing.T) {
	ctx := context.Background()
	first := newHarness(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tracer := tracenoop.NewTracerProvider().Tracer("")
	second := NewCatalogService(&fakeClient{}, memory.NewPendingStore(tracer, logger),
		memory.NewFavoriteStore(tracer, logger), first.monitor,
		tracer, metricnoop.NewMeterProvider().Meter(""), logger)

	first.setConnected(false)
	assert.NilError(t, first.svc.Start(ctx))
	assert.NilError(t, second.Start(ctx))
	assert.Equal(t, true, first.svc.State(ctx).IsOffline)

	assert.NilError(t, second.Close())
	first.setConnected(true)

	assert.Equal(t, false, first.svc.State(ctx).IsOffline)
	assert.Equal(t, true, second.State(ctx).IsOffline)
}

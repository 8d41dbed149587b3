package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/mrops-br/offline-catalog/internal/app/service"
	"github.com/mrops-br/offline-catalog/internal/domain"
	"github.com/mrops-br/offline-catalog/internal/infrastructure/http/response"
	"github.com/shopspring/decimal"
)

// maxFormMemory bounds the multipart form held in memory; larger images
// spill to temporary files
const maxFormMemory = 10 << 20

// ProductHandler handles HTTP requests for the catalog
type ProductHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewProductHandler creates a new product handler
func NewProductHandler(service *service.CatalogService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: service,
		logger:  logger,
	}
}

// ListProducts handles GET /products. The search, favorites and sort query
// parameters update the view criteria when present.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if query.Has("favorites") {
		favoritesOnly, err := strconv.ParseBool(query.Get("favorites"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, fmt.Errorf("invalid favorites flag: %w", err))
			return
		}
		h.service.SetFavoritesOnly(favoritesOnly)
	}
	if query.Has("search") {
		h.service.SetSearchText(query.Get("search"))
	}
	if query.Has("sort") {
		h.service.SetSortMode(domain.ParseSortMode(query.Get("sort")))
	}

	response.JSON(w, http.StatusOK, h.service.Products())
}

// CreateProduct handles POST /products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	write, err := h.decodeProductForm(r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "Failed to decode product form",
			slog.String("error", err.Error()),
		)
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	if err := write.Validate(); err != nil {
		response.Error(w, http.StatusUnprocessableEntity, err)
		return
	}

	result := h.service.AddProduct(r.Context(), write)
	switch {
	case !result.Success:
		response.JSON(w, http.StatusBadGateway, result)
	case result.Queued:
		response.JSON(w, http.StatusAccepted, result)
	default:
		response.JSON(w, http.StatusCreated, result)
	}
}

// ReloadProducts handles POST /products/reload
func (h *ProductHandler) ReloadProducts(w http.ResponseWriter, r *http.Request) {
	if err := h.service.LoadProducts(r.Context()); err != nil {
		response.Error(w, http.StatusBadGateway, err)
		return
	}

	response.JSON(w, http.StatusOK, h.service.Products())
}

// ToggleFavorite handles POST /products/{name}/favorite
func (h *ProductHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	name, err := productNameParam(r)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err)
		return
	}

	if !h.service.ToggleFavorite(r.Context(), name) {
		response.Error(w, http.StatusNotFound, fmt.Errorf("%w: %s", domain.ErrProductNotFound, name))
		return
	}

	for _, p := range h.service.Products() {
		if p.Name == name {
			response.JSON(w, http.StatusOK, p)
			return
		}
	}
	// Hidden by the favorites-only filter
	response.JSON(w, http.StatusOK, h.service.State(r.Context()))
}

// productNameParam returns the decoded {name} segment. chi matches against
// RawPath when the request carried escapes that Path cannot represent (such
// as %2F), and only then is the segment still escaped.
func productNameParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "name")
	if r.URL.RawPath == "" {
		return name, nil
	}
	unescaped, err := url.PathUnescape(name)
	if err != nil {
		return "", fmt.Errorf("invalid product name %q: %w", name, err)
	}
	return unescaped, nil
}

// GetState handles GET /state
func (h *ProductHandler) GetState(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.service.State(r.Context()))
}

func (h *ProductHandler) decodeProductForm(r *http.Request) (domain.PendingWrite, error) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		return domain.PendingWrite{}, fmt.Errorf("invalid multipart form: %w", err)
	}

	write := domain.PendingWrite{
		Name:     strings.TrimSpace(r.FormValue("product_name")),
		Category: strings.TrimSpace(r.FormValue("product_type")),
	}
	if write.Category == "" {
		write.Category = domain.CategoryProduct
	}

	var err error
	if write.Price, err = decimal.NewFromString(r.FormValue("price")); err != nil {
		return domain.PendingWrite{}, fmt.Errorf("%w: %w", domain.ErrInvalidProductPrice, err)
	}
	if write.TaxRate, err = decimal.NewFromString(r.FormValue("tax")); err != nil {
		return domain.PendingWrite{}, fmt.Errorf("%w: %w", domain.ErrInvalidTaxRate, err)
	}

	file, _, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return write, nil
	case err != nil:
		return domain.PendingWrite{}, fmt.Errorf("invalid image part: %w", err)
	}
	defer file.Close()

	if write.Image, err = io.ReadAll(file); err != nil {
		return domain.PendingWrite{}, fmt.Errorf("failed to read image: %w", err)
	}
	return write, nil
}

package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mrops-br/offline-catalog/internal/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	fetchPath  = "get"
	submitPath = "add"

	// maxErrorBody caps how much of a failed response is echoed into errors
	maxErrorBody = 512
)

var _ domain.CatalogClient = (*CatalogHTTPClient)(nil)

// CatalogHTTPClient talks to the remote product API
type CatalogHTTPClient struct {
	baseURL string
	client  *http.Client
	tracer  trace.Tracer
	logger  *slog.Logger
}

// NewCatalogHTTPClient creates a client for the API rooted at baseURL
func NewCatalogHTTPClient(baseURL string, timeout time.Duration, tracer trace.Tracer, logger *slog.Logger) *CatalogHTTPClient {
	return &CatalogHTTPClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		tracer: tracer,
		logger: logger,
	}
}

// FetchAll retrieves every product in the catalog
func (c *CatalogHTTPClient) FetchAll(ctx context.Context) ([]domain.Product, error) {
	ctx, span := c.tracer.Start(ctx, "CatalogHTTPClient.FetchAll")
	defer span.End()

	endpoint, err := c.endpoint(fetchPath)
	if err != nil {
		return nil, c.fail(ctx, span, "fetch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, c.fail(ctx, span, "fetch", fmt.Errorf("%w: %w", domain.ErrInvalidEndpoint, err))
	}
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, c.fail(ctx, span, "fetch", err)
	}

	var payloads []productPayload
	if err := json.Unmarshal(data, &payloads); err != nil {
		return nil, c.fail(ctx, span, "fetch", fmt.Errorf("%w: %w", domain.ErrDecoding, err))
	}
	// A null body decodes without error but is not a catalog
	if payloads == nil {
		return nil, c.fail(ctx, span, "fetch", fmt.Errorf("%w: expected a JSON array", domain.ErrDecoding))
	}

	products := make([]domain.Product, 0, len(payloads))
	for i := range payloads {
		product, err := payloads[i].toDomain()
		if err != nil {
			return nil, c.fail(ctx, span, "fetch", fmt.Errorf("item %d: %w", i, err))
		}
		products = append(products, product)
	}

	span.SetAttributes(attribute.Int("product.count", len(products)))
	span.SetStatus(codes.Ok, "Products fetched")
	c.logger.DebugContext(ctx, "Fetched products from catalog API",
		slog.Int("count", len(products)),
	)
	return products, nil
}

// Submit posts a new product as multipart/form-data
func (c *CatalogHTTPClient) Submit(ctx context.Context, write domain.PendingWrite) (*domain.SubmissionResult, error) {
	ctx, span := c.tracer.Start(ctx, "CatalogHTTPClient.Submit")
	defer span.End()

	span.SetAttributes(
		attribute.String("product.name", write.Name),
		attribute.Bool("product.has_image", len(write.Image) > 0),
	)

	endpoint, err := c.endpoint(submitPath)
	if err != nil {
		return nil, c.fail(ctx, span, "submit", err)
	}

	body, contentType, err := encodeProductForm(write)
	if err != nil {
		return nil, c.fail(ctx, span, "submit", fmt.Errorf("%w: %w", domain.ErrTransport, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, c.fail(ctx, span, "submit", fmt.Errorf("%w: %w", domain.ErrInvalidEndpoint, err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	data, err := c.do(req)
	if err != nil {
		return nil, c.fail(ctx, span, "submit", err)
	}

	var resp submitResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, c.fail(ctx, span, "submit", fmt.Errorf("%w: %w", domain.ErrDecoding, err))
	}

	result, err := resp.toDomain()
	if err != nil {
		return nil, c.fail(ctx, span, "submit", err)
	}

	span.SetAttributes(
		attribute.Bool("submit.success", result.Success),
		attribute.Int64("product.id", result.ProductID),
	)
	span.SetStatus(codes.Ok, "Product submitted")
	c.logger.InfoContext(ctx, "Submitted product to catalog API",
		slog.String("product_name", write.Name),
		slog.Bool("success", result.Success),
		slog.String("message", result.Message),
	)
	return result, nil
}

// endpoint joins path onto the base URL
func (c *CatalogHTTPClient) endpoint(path string) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidEndpoint, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("%w: %q is not an absolute URL", domain.ErrInvalidEndpoint, c.baseURL)
	}
	return base.JoinPath(path).String(), nil
}

// do executes req and returns the body of a 2xx response
func (c *CatalogHTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: %s %s returned %d: %s",
			domain.ErrHTTPStatus, req.Method, req.URL.Path, resp.StatusCode, string(snippet))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", domain.ErrTransport, err)
	}
	return data, nil
}

func (c *CatalogHTTPClient) fail(ctx context.Context, span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	c.logger.WarnContext(ctx, "Catalog API call failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	return err
}

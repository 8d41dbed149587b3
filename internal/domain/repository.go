package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidEndpoint    = errors.New("invalid endpoint")
	ErrTransport          = errors.New("transport failure")
	ErrDecoding           = errors.New("decoding failure")
	ErrHTTPStatus         = errors.New("unexpected http status")
	ErrApplicationFailure = errors.New("server rejected request")

	ErrProductNotFound     = errors.New("product not found")
	ErrInvalidProductName  = errors.New("product name cannot be empty")
	ErrInvalidProductPrice = errors.New("product price must be greater than zero")
	ErrInvalidTaxRate      = errors.New("tax rate must be between 0 and 100")
)

// CatalogClient defines the contract for the remote product API
type CatalogClient interface {
	FetchAll(ctx context.Context) ([]Product, error)
	Submit(ctx context.Context, write PendingWrite) (*SubmissionResult, error)
}

// PendingWriteStore is a durable FIFO queue of unsubmitted product creations.
// Persistence failures are absorbed by the implementation.
type PendingWriteStore interface {
	Append(ctx context.Context, write PendingWrite)
	ListAll(ctx context.Context) []PendingWrite
	RemoveAt(ctx context.Context, index int)
}

// FavoriteStore is a durable mapping of persistent identifiers to favorite flags
type FavoriteStore interface {
	SetFavorite(ctx context.Context, key string, favorite bool)
	ReplaceAll(ctx context.Context, set FavoriteSet)
	GetAll(ctx context.Context) FavoriteSet
}

// Subscription identifies one registered connectivity handler
type Subscription uint64

// ConnectivityMonitor exposes the process-wide reachability signal
type ConnectivityMonitor interface {
	IsConnected() bool
	Subscribe(handler func(connected bool)) (Subscription, error)
	Unsubscribe(sub Subscription) error
}

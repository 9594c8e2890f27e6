// Package supabase provides a DocumentStore over Supabase PostgREST.
// Each collection is a table with an `id text primary key` column, a
// `data jsonb` column holding the document body and a `created_at` column
// defaulting to now(), which orders query results.
package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/infra/resilience"
	"github.com/boddenberg/finance-core/internal/port"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("supabase")

// Client wraps HTTP calls to the Supabase PostgREST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	apiKey         string
	serviceRoleKey string
	cb             *gobreaker.CircuitBreaker
	bulkhead       *resilience.Bulkhead
	cfg            resilience.Config
	logger         *zap.Logger
}

// NewClient creates a Supabase client.
func NewClient(httpClient *http.Client, baseURL, apiKey, serviceRoleKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		apiKey:         apiKey,
		serviceRoleKey: serviceRoleKey,
		cb:             cb,
		bulkhead:       resilience.NewBulkhead(cfg.MaxConcurrency),
		cfg:            cfg,
		logger:         logger,
	}
}

// row is the table shape shared by every collection.
type row struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// execute runs fn behind the bulkhead, circuit breaker and retry loop.
func (c *Client) execute(ctx context.Context, fn func() error) error {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return err
	}
	defer c.bulkhead.Release()

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, fn)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "supabase"}
	}
	return err
}

// Get fetches one document by id.
func (c *Client) Get(ctx context.Context, collection, id string) (*port.Document, error) {
	ctx, span := tracer.Start(ctx, "Supabase.Get")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	var rows []row
	err := c.execute(ctx, func() error {
		path := fmt.Sprintf("%s?select=id,data&id=eq.%s&limit=1", collection, url.QueryEscape(id))
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		rows = nil
		if body == nil {
			return nil
		}
		if err := json.Unmarshal(body, &rows); err != nil {
			return resilience.Permanent(fmt.Errorf("failed to decode %s: %w", collection, err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: collection, ID: id}
	}
	return &port.Document{ID: rows[0].ID, Data: rows[0].Data}, nil
}

// Query returns documents whose data fields equal every filter value,
// ordered by creation time.
func (c *Client) Query(ctx context.Context, collection string, filters ...port.Filter) ([]port.Document, error) {
	ctx, span := tracer.Start(ctx, "Supabase.Query")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", collection),
		attribute.Int("filters", len(filters)),
	)

	params := url.Values{}
	params.Set("select", "id,data")
	params.Set("order", "created_at.asc")
	for _, f := range filters {
		params.Add("data->>"+f.Field, "eq."+filterValue(f.Value))
	}
	path := collection + "?" + params.Encode()

	docs := make([]port.Document, 0)
	err := c.execute(ctx, func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path)
		if err != nil {
			return err
		}
		docs = docs[:0]
		if body == nil {
			return nil
		}
		var rows []row
		if err := json.Unmarshal(body, &rows); err != nil {
			return resilience.Permanent(fmt.Errorf("failed to decode %s: %w", collection, err))
		}
		for _, r := range rows {
			docs = append(docs, port.Document{ID: r.ID, Data: r.Data})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Set upserts the whole document.
func (c *Client) Set(ctx context.Context, collection, id string, data json.RawMessage) error {
	ctx, span := tracer.Start(ctx, "Supabase.Set")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	if !json.Valid(data) {
		return fmt.Errorf("set %s/%s: invalid json", collection, id)
	}

	return c.execute(ctx, func() error {
		return c.doUpsert(ctx, collection, row{ID: id, Data: data})
	})
}

// Add stores the document under a new uuid.
func (c *Client) Add(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	id := uuid.NewString()
	if err := c.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

// Delete removes the document. Deleting a missing id is not an error.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	ctx, span := tracer.Start(ctx, "Supabase.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", collection))

	return c.execute(ctx, func() error {
		return c.doDelete(ctx, fmt.Sprintf("%s?id=eq.%s", collection, url.QueryEscape(id)))
	})
}

// Ping checks PostgREST answers for the transactions table.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, port.CollectionTransactions+"?select=id&limit=1")
	return err
}

func filterValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(x)
	}
}

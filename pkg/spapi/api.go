// Package spapi is the typed surface of the partner API: endpoint
// descriptors, response schemas, and the operations the sync jobs
// drive. It translates between Go values and the wire quirks of each
// API family (payload envelopes on the v0 operations, three different
// money shapes) so callers never touch raw JSON.
package spapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/FridaySalami/spapi-sync/pkg/client"
	"github.com/FridaySalami/spapi-sync/pkg/pagination"
)

// Config holds the settings for the API facade.
type Config struct {
	// Client performs the signed, rate-limited HTTP requests.
	Client *client.Client

	// MarketplaceID scopes every operation to one marketplace.
	MarketplaceID string

	// MaxPages bounds every pagination chain. Zero means
	// pagination.DefaultMaxPages.
	MaxPages int
}

// API exposes the partner operations over a configured client. All
// operations are scoped to a single marketplace.
type API struct {
	client        *client.Client
	marketplaceID string
	maxPages      int
}

// New creates an API facade.
func New(cfg Config) (*API, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.MarketplaceID == "" {
		return nil, fmt.Errorf("marketplace id is required")
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = pagination.DefaultMaxPages
	}

	return &API{
		client:        cfg.Client,
		marketplaceID: cfg.MarketplaceID,
		maxPages:      cfg.MaxPages,
	}, nil
}

// GetOrders returns a pager over orders created after the given
// instant, oldest page first.
func (a *API) GetOrders(createdAfter time.Time) *pagination.Pager[Order] {
	return pagination.NewPager(func(ctx context.Context, cursor string, page int) ([]Order, string, error) {
		q := url.Values{"MarketplaceIds": {a.marketplaceID}}
		if cursor != "" {
			q.Set("NextToken", cursor)
		} else {
			q.Set("CreatedAfter", createdAfter.UTC().Format(time.RFC3339))
		}

		var resp ordersResponse
		if err := a.call(ctx, EndpointGetOrders, "", q, &resp); err != nil {
			return nil, "", err
		}
		return resp.Payload.Orders, resp.Payload.NextToken, nil
	}, a.maxPages)
}

// GetOrderItems returns a pager over the line items of one order.
func (a *API) GetOrderItems(orderID string) *pagination.Pager[OrderItem] {
	return pagination.NewPager(func(ctx context.Context, cursor string, page int) ([]OrderItem, string, error) {
		q := url.Values{}
		if cursor != "" {
			q.Set("NextToken", cursor)
		}

		var resp orderItemsResponse
		if err := a.call(ctx, EndpointGetOrderItems, orderID, q, &resp); err != nil {
			return nil, "", err
		}
		return resp.Payload.OrderItems, resp.Payload.NextToken, nil
	}, a.maxPages)
}

// GetCompetitivePricing fetches competitor pricing for up to
// MaxPricingBatch ASINs in a single call. The result carries one entry
// per requested ASIN, including the ones that failed to price.
func (a *API) GetCompetitivePricing(ctx context.Context, asins []string) ([]PricingResult, error) {
	if len(asins) == 0 {
		return nil, nil
	}
	if len(asins) > MaxPricingBatch {
		return nil, fmt.Errorf("pricing batch of %d exceeds the limit of %d ASINs", len(asins), MaxPricingBatch)
	}

	q := url.Values{
		"MarketplaceId": {a.marketplaceID},
		"Asins":         {strings.Join(asins, ",")},
		"ItemType":      {"Asin"},
	}

	var resp pricingResponse
	if err := a.call(ctx, EndpointGetCompetitivePricing, "", q, &resp); err != nil {
		return nil, err
	}
	return resp.Payload, nil
}

// GetPricingBatched fetches competitor pricing for any number of ASINs
// by splitting them into batches of MaxPricingBatch and keeping at most
// parallel batches in flight. Results come back in input order. The
// first batch to fail cancels the rest.
func (a *API) GetPricingBatched(ctx context.Context, asins []string, parallel int) ([]PricingResult, error) {
	if len(asins) == 0 {
		return nil, nil
	}
	if parallel < 1 {
		parallel = 1
	}

	var batches [][]string
	for start := 0; start < len(asins); start += MaxPricingBatch {
		batches = append(batches, asins[start:min(start+MaxPricingBatch, len(asins))])
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		sem      = semaphore.NewWeighted(int64(parallel))
		pages    = make([][]PricingResult, len(batches))
		wg       sync.WaitGroup
		mu       sync.Mutex
		batchErr error
	)

	for i, batch := range batches {
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			page, err := a.GetCompetitivePricing(runCtx, batch)
			if err != nil {
				mu.Lock()
				if batchErr == nil {
					batchErr = fmt.Errorf("pricing batch %d of %d: %w", i+1, len(batches), err)
				}
				mu.Unlock()
				cancel()
				return
			}
			pages[i] = page
		}()
	}
	wg.Wait()

	if batchErr != nil {
		return nil, batchErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]PricingResult, 0, len(asins))
	for _, page := range pages {
		results = append(results, page...)
	}
	return results, nil
}

// ListFinancialEvents returns a pager over financial event groups
// posted after the given instant. Each page yields exactly one
// FinancialEvents group.
func (a *API) ListFinancialEvents(postedAfter time.Time) *pagination.Pager[FinancialEvents] {
	return pagination.NewPager(func(ctx context.Context, cursor string, page int) ([]FinancialEvents, string, error) {
		q := url.Values{}
		if cursor != "" {
			q.Set("NextToken", cursor)
		} else {
			q.Set("PostedAfter", postedAfter.UTC().Format(time.RFC3339))
		}

		var resp financialEventsResponse
		if err := a.call(ctx, EndpointListFinancialEvents, "", q, &resp); err != nil {
			return nil, "", err
		}
		return []FinancialEvents{resp.Payload.FinancialEvents}, resp.Payload.NextToken, nil
	}, a.maxPages)
}

// GetCatalogItem fetches one catalog item with its summaries, product
// types, and sales ranks for the configured marketplace.
func (a *API) GetCatalogItem(ctx context.Context, asin string) (*CatalogItem, error) {
	if asin == "" {
		return nil, fmt.Errorf("asin is required")
	}

	q := url.Values{
		"marketplaceIds": {a.marketplaceID},
		"includedData":   {"summaries,productTypes,salesRanks"},
	}

	var item CatalogItem
	if err := a.call(ctx, EndpointGetCatalogItem, asin, q, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// call performs one operation through the underlying client, expanding
// the path argument when the endpoint needs one.
func (a *API) call(ctx context.Context, ep Endpoint, pathArg string, q url.Values, out any) error {
	path := ep.Path
	if pathArg != "" {
		path = fmt.Sprintf(ep.Path, url.PathEscape(pathArg))
	}

	return a.client.Do(ctx, client.Request{
		Op:       ep.Name,
		Class:    ep.Class,
		Path:     path,
		Query:    q,
		CacheTTL: ep.CacheTTL,
	}, out)
}

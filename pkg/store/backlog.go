package store

import (
	"context"
	"fmt"
	"time"

	"github.com/FridaySalami/spapi-sync/pkg/spapi"
	"github.com/FridaySalami/spapi-sync/pkg/sync"
)

const itemsBacklogSQL = `
SELECT amazon_order_id FROM orders
WHERE items_synced_at IS NULL AND amazon_order_id > $1
ORDER BY amazon_order_id
LIMIT $2
`

const pricingBacklogSQL = `
SELECT DISTINCT asin FROM order_items
WHERE asin > $1 AND asin <> ''
  AND NOT EXISTS (
    SELECT 1 FROM pricing p WHERE p.asin = order_items.asin AND p.captured_at > $2
  )
ORDER BY asin
LIMIT $3
`

const catalogBacklogSQL = `
SELECT DISTINCT asin FROM order_items
WHERE asin > $1 AND asin <> ''
  AND NOT EXISTS (
    SELECT 1 FROM catalog_items c WHERE c.asin = order_items.asin AND c.synced_at > $2
  )
ORDER BY asin
LIMIT $3
`

// keys runs a single-column keyset query and returns the page plus the
// cursor for the next one. Keyset rather than offset, because rows that
// complete between pages leave the predicate.
func (s *Store) keys(ctx context.Context, sql string, limit int, args ...any) ([]string, string, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, "", fmt.Errorf("backlog query: %w", err)
	}
	defer rows.Close()

	var page []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, "", fmt.Errorf("backlog scan: %w", err)
		}
		page = append(page, key)
	}
	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("backlog rows: %w", err)
	}

	if len(page) < limit {
		return page, "", nil
	}
	return page, page[len(page)-1], nil
}

// ItemsBacklog yields the orders whose line items have not been synced
// yet, one order per item.
func (s *Store) ItemsBacklog() sync.Backlog {
	return sync.BacklogFunc(func(ctx context.Context, after string, limit int) ([]sync.Item, string, error) {
		page, next, err := s.keys(ctx, itemsBacklogSQL, limit, after, limit)
		if err != nil {
			return nil, "", err
		}

		items := make([]sync.Item, len(page))
		for i, id := range page {
			items[i] = sync.Item{ID: id}
		}
		return items, next, nil
	})
}

// PricingBacklog yields ASINs seen on order lines whose pricing is
// older than staleAfter, grouped into batch items of up to
// spapi.MaxPricingBatch keys.
func (s *Store) PricingBacklog(staleAfter time.Duration) sync.Backlog {
	return sync.BacklogFunc(func(ctx context.Context, after string, limit int) ([]sync.Item, string, error) {
		cutoff := time.Now().Add(-staleAfter)
		page, next, err := s.keys(ctx, pricingBacklogSQL, limit, after, cutoff, limit)
		if err != nil {
			return nil, "", err
		}

		var items []sync.Item
		for start := 0; start < len(page); start += spapi.MaxPricingBatch {
			end := min(start+spapi.MaxPricingBatch, len(page))
			group := page[start:end]
			items = append(items, sync.Item{ID: group[0], Keys: group})
		}
		return items, next, nil
	})
}

// CatalogBacklog yields ASINs seen on order lines with no catalog
// record newer than staleAfter, one ASIN per item.
func (s *Store) CatalogBacklog(staleAfter time.Duration) sync.Backlog {
	return sync.BacklogFunc(func(ctx context.Context, after string, limit int) ([]sync.Item, string, error) {
		cutoff := time.Now().Add(-staleAfter)
		page, next, err := s.keys(ctx, catalogBacklogSQL, limit, after, cutoff, limit)
		if err != nil {
			return nil, "", err
		}

		items := make([]sync.Item, len(page))
		for i, asin := range page {
			items[i] = sync.Item{ID: asin}
		}
		return items, next, nil
	})
}

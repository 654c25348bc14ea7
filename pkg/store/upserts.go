package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/FridaySalami/spapi-sync/pkg/spapi"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS orders (
    amazon_order_id     text PRIMARY KEY,
    purchase_date       timestamptz NOT NULL,
    last_update_date    timestamptz NOT NULL,
    order_status        text NOT NULL,
    fulfillment_channel text NOT NULL DEFAULT '',
    sales_channel       text NOT NULL DEFAULT '',
    total_amount        numeric,
    total_currency      text,
    items_shipped       integer NOT NULL DEFAULT 0,
    items_unshipped     integer NOT NULL DEFAULT 0,
    marketplace_id      text NOT NULL,
    is_business         boolean NOT NULL DEFAULT false,
    is_prime            boolean NOT NULL DEFAULT false,
    items_synced_at     timestamptz,
    synced_at           timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_items (
    amazon_order_id  text NOT NULL,
    order_item_id    text NOT NULL,
    asin             text NOT NULL DEFAULT '',
    seller_sku       text NOT NULL DEFAULT '',
    title            text NOT NULL DEFAULT '',
    quantity_ordered integer NOT NULL DEFAULT 0,
    quantity_shipped integer NOT NULL DEFAULT 0,
    price_amount     numeric,
    price_currency   text,
    tax_amount       numeric,
    tax_currency     text,
    promo_amount     numeric,
    promo_currency   text,
    synced_at        timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (amazon_order_id, order_item_id)
);

CREATE INDEX IF NOT EXISTS order_items_asin_idx ON order_items (asin);

CREATE TABLE IF NOT EXISTS pricing (
    asin                 text NOT NULL,
    competitive_price_id text NOT NULL,
    condition            text NOT NULL DEFAULT '',
    landed_amount        numeric,
    landed_currency      text,
    listing_amount       numeric,
    shipping_amount      numeric,
    belongs_to_requester boolean NOT NULL DEFAULT false,
    captured_at          timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (asin, competitive_price_id, condition)
);

CREATE TABLE IF NOT EXISTS financial_events (
    amazon_order_id text NOT NULL DEFAULT '',
    event_type      text NOT NULL,
    posted_date     timestamptz NOT NULL,
    seller_sku      text NOT NULL DEFAULT '',
    component_kind  text NOT NULL,
    component_type  text NOT NULL,
    amount          numeric NOT NULL,
    currency        text NOT NULL DEFAULT '',
    synced_at       timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (amazon_order_id, event_type, posted_date, seller_sku, component_kind, component_type)
);

CREATE TABLE IF NOT EXISTS catalog_items (
    asin           text PRIMARY KEY,
    marketplace_id text NOT NULL DEFAULT '',
    item_name      text NOT NULL DEFAULT '',
    brand          text NOT NULL DEFAULT '',
    manufacturer   text NOT NULL DEFAULT '',
    model_number   text NOT NULL DEFAULT '',
    product_type   text NOT NULL DEFAULT '',
    sales_rank     integer,
    rank_group     text NOT NULL DEFAULT '',
    synced_at      timestamptz NOT NULL DEFAULT now()
);
`

const upsertOrderSQL = `
INSERT INTO orders (
    amazon_order_id, purchase_date, last_update_date, order_status,
    fulfillment_channel, sales_channel, total_amount, total_currency,
    items_shipped, items_unshipped, marketplace_id, is_business, is_prime,
    synced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
ON CONFLICT (amazon_order_id) DO UPDATE SET
    purchase_date       = EXCLUDED.purchase_date,
    last_update_date    = EXCLUDED.last_update_date,
    order_status        = EXCLUDED.order_status,
    fulfillment_channel = EXCLUDED.fulfillment_channel,
    sales_channel       = EXCLUDED.sales_channel,
    total_amount        = EXCLUDED.total_amount,
    total_currency      = EXCLUDED.total_currency,
    items_shipped       = EXCLUDED.items_shipped,
    items_unshipped     = EXCLUDED.items_unshipped,
    marketplace_id      = EXCLUDED.marketplace_id,
    is_business         = EXCLUDED.is_business,
    is_prime            = EXCLUDED.is_prime,
    synced_at           = now()
`

const upsertOrderItemSQL = `
INSERT INTO order_items (
    amazon_order_id, order_item_id, asin, seller_sku, title,
    quantity_ordered, quantity_shipped, price_amount, price_currency,
    tax_amount, tax_currency, promo_amount, promo_currency, synced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
ON CONFLICT (amazon_order_id, order_item_id) DO UPDATE SET
    asin             = EXCLUDED.asin,
    seller_sku       = EXCLUDED.seller_sku,
    title            = EXCLUDED.title,
    quantity_ordered = EXCLUDED.quantity_ordered,
    quantity_shipped = EXCLUDED.quantity_shipped,
    price_amount     = EXCLUDED.price_amount,
    price_currency   = EXCLUDED.price_currency,
    tax_amount       = EXCLUDED.tax_amount,
    tax_currency     = EXCLUDED.tax_currency,
    promo_amount     = EXCLUDED.promo_amount,
    promo_currency   = EXCLUDED.promo_currency,
    synced_at        = now()
`

const markItemsSyncedSQL = `
UPDATE orders SET items_synced_at = now() WHERE amazon_order_id = $1
`

const upsertPricingSQL = `
INSERT INTO pricing (
    asin, competitive_price_id, condition, landed_amount, landed_currency,
    listing_amount, shipping_amount, belongs_to_requester, captured_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (asin, competitive_price_id, condition) DO UPDATE SET
    landed_amount        = EXCLUDED.landed_amount,
    landed_currency      = EXCLUDED.landed_currency,
    listing_amount       = EXCLUDED.listing_amount,
    shipping_amount      = EXCLUDED.shipping_amount,
    belongs_to_requester = EXCLUDED.belongs_to_requester,
    captured_at          = now()
`

const upsertFinancialEventSQL = `
INSERT INTO financial_events (
    amazon_order_id, event_type, posted_date, seller_sku,
    component_kind, component_type, amount, currency, synced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (amazon_order_id, event_type, posted_date, seller_sku, component_kind, component_type) DO UPDATE SET
    amount    = EXCLUDED.amount,
    currency  = EXCLUDED.currency,
    synced_at = now()
`

const upsertCatalogItemSQL = `
INSERT INTO catalog_items (
    asin, marketplace_id, item_name, brand, manufacturer, model_number,
    product_type, sales_rank, rank_group, synced_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
ON CONFLICT (asin) DO UPDATE SET
    marketplace_id = EXCLUDED.marketplace_id,
    item_name      = EXCLUDED.item_name,
    brand          = EXCLUDED.brand,
    manufacturer   = EXCLUDED.manufacturer,
    model_number   = EXCLUDED.model_number,
    product_type   = EXCLUDED.product_type,
    sales_rank     = EXCLUDED.sales_rank,
    rank_group     = EXCLUDED.rank_group,
    synced_at      = now()
`

// UpsertOrders writes orders keyed by their Amazon order id and returns
// the number of rows affected. The items_synced_at flag is left alone
// so re-upserting an order does not requeue its line items.
func (s *Store) UpsertOrders(ctx context.Context, orders []spapi.Order) (int, error) {
	written := 0
	for start := 0; start < len(orders); start += s.batchSize {
		end := min(start+s.batchSize, len(orders))

		b := &pgx.Batch{}
		for _, o := range orders[start:end] {
			amount, currency := moneyParams(o.OrderTotal)
			b.Queue(upsertOrderSQL,
				o.AmazonOrderID, o.PurchaseDate, o.LastUpdateDate, o.OrderStatus,
				o.FulfillmentChannel, o.SalesChannel, amount, currency,
				o.NumberOfItemsShipped, o.NumberOfItemsUnshipped,
				o.MarketplaceID, o.IsBusinessOrder, o.IsPrime,
			)
		}

		n, err := s.sendBatch(ctx, b, "orders")
		written += n
		if err != nil {
			return written, err
		}
	}

	s.logger.Debug().Int("rows", written).Msg("Orders upserted")
	return written, nil
}

// UpsertOrderItems writes the line items of one order, keyed by order
// id and line id.
func (s *Store) UpsertOrderItems(ctx context.Context, orderID string, items []spapi.OrderItem) (int, error) {
	written := 0
	for start := 0; start < len(items); start += s.batchSize {
		end := min(start+s.batchSize, len(items))

		b := &pgx.Batch{}
		for _, it := range items[start:end] {
			price, priceCur := moneyParams(it.ItemPrice)
			tax, taxCur := moneyParams(it.ItemTax)
			promo, promoCur := moneyParams(it.PromotionDiscount)
			b.Queue(upsertOrderItemSQL,
				orderID, it.OrderItemID, it.ASIN, it.SellerSKU, it.Title,
				it.QuantityOrdered, it.QuantityShipped,
				price, priceCur, tax, taxCur, promo, promoCur,
			)
		}

		n, err := s.sendBatch(ctx, b, "order-items")
		written += n
		if err != nil {
			return written, err
		}
	}

	s.logger.Debug().Str("order_id", orderID).Int("rows", written).Msg("Order items upserted")
	return written, nil
}

// MarkOrderItemsSynced records that an order's line items are stored,
// which removes the order from the items backlog. Called after
// UpsertOrderItems succeeds; if the process dies between the two the
// order is simply refetched next run.
func (s *Store) MarkOrderItemsSynced(ctx context.Context, orderID string) error {
	if _, err := s.pool.Exec(ctx, markItemsSyncedSQL, orderID); err != nil {
		return fmt.Errorf("%w: mark items synced for %s: %w", ErrSinkWrite, orderID, err)
	}
	return nil
}

// UpsertPricing flattens pricing results into one row per competitor
// price point. ASINs whose lookup did not succeed contribute no rows.
func (s *Store) UpsertPricing(ctx context.Context, results []spapi.PricingResult) (int, error) {
	type row struct {
		asin  string
		price spapi.CompetitivePrice
	}
	var rows []row
	for _, r := range results {
		for _, p := range r.Prices() {
			rows = append(rows, row{asin: r.ASIN, price: p})
		}
	}

	written := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))

		b := &pgx.Batch{}
		for _, r := range rows[start:end] {
			b.Queue(upsertPricingSQL,
				r.asin, r.price.CompetitivePriceID, r.price.Condition,
				r.price.Price.LandedPrice.Amount, r.price.Price.LandedPrice.CurrencyCode,
				r.price.Price.ListingPrice.Amount, r.price.Price.Shipping.Amount,
				r.price.BelongsToRequester,
			)
		}

		n, err := s.sendBatch(ctx, b, "pricing")
		written += n
		if err != nil {
			return written, err
		}
	}

	s.logger.Debug().Int("rows", written).Msg("Pricing upserted")
	return written, nil
}

// eventRow is one flattened financial event component.
type eventRow struct {
	orderID   string
	eventType string
	posted    time.Time
	sku       string
	kind      string
	component string
	amount    float64
	currency  string
}

// flattenEvents turns grouped financial events into rows keyed by
// order, event type, posted date, SKU, and component.
func flattenEvents(groups []spapi.FinancialEvents) []eventRow {
	var rows []eventRow

	for _, g := range groups {
		for _, ev := range g.ShipmentEvents {
			for _, item := range ev.ShipmentItems {
				for _, c := range item.ItemCharges {
					rows = append(rows, eventRow{
						orderID: ev.AmazonOrderID, eventType: "shipment", posted: ev.PostedDate,
						sku: item.SellerSKU, kind: "charge", component: c.ChargeType,
						amount: c.ChargeAmount.CurrencyAmount, currency: c.ChargeAmount.CurrencyCode,
					})
				}
				for _, f := range item.ItemFees {
					rows = append(rows, eventRow{
						orderID: ev.AmazonOrderID, eventType: "shipment", posted: ev.PostedDate,
						sku: item.SellerSKU, kind: "fee", component: f.FeeType,
						amount: f.FeeAmount.CurrencyAmount, currency: f.FeeAmount.CurrencyCode,
					})
				}
			}
		}

		for _, ev := range g.RefundEvents {
			for _, item := range ev.AdjustmentItems {
				for _, c := range item.ItemChargeAdjustments {
					rows = append(rows, eventRow{
						orderID: ev.AmazonOrderID, eventType: "refund", posted: ev.PostedDate,
						sku: item.SellerSKU, kind: "charge", component: c.ChargeType,
						amount: c.ChargeAmount.CurrencyAmount, currency: c.ChargeAmount.CurrencyCode,
					})
				}
				for _, f := range item.ItemFeeAdjustments {
					rows = append(rows, eventRow{
						orderID: ev.AmazonOrderID, eventType: "refund", posted: ev.PostedDate,
						sku: item.SellerSKU, kind: "fee", component: f.FeeType,
						amount: f.FeeAmount.CurrencyAmount, currency: f.FeeAmount.CurrencyCode,
					})
				}
			}
		}

		for _, ev := range g.ServiceFeeEvents {
			for _, f := range ev.Fees {
				rows = append(rows, eventRow{
					orderID: ev.AmazonOrderID, eventType: "service_fee",
					kind: "fee", component: f.FeeType,
					amount: f.FeeAmount.CurrencyAmount, currency: f.FeeAmount.CurrencyCode,
				})
			}
		}
	}

	return rows
}

// UpsertFinancialEvents flattens event groups into component rows and
// writes them keyed by their natural identity, so replaying a posted
// window converges instead of double counting.
func (s *Store) UpsertFinancialEvents(ctx context.Context, groups []spapi.FinancialEvents) (int, error) {
	rows := flattenEvents(groups)

	written := 0
	for start := 0; start < len(rows); start += s.batchSize {
		end := min(start+s.batchSize, len(rows))

		b := &pgx.Batch{}
		for _, r := range rows[start:end] {
			b.Queue(upsertFinancialEventSQL,
				r.orderID, r.eventType, r.posted, r.sku,
				r.kind, r.component, r.amount, r.currency,
			)
		}

		n, err := s.sendBatch(ctx, b, "financial-events")
		written += n
		if err != nil {
			return written, err
		}
	}

	s.logger.Debug().Int("rows", written).Msg("Financial events upserted")
	return written, nil
}

// UpsertCatalogItems writes catalog records keyed by ASIN. The facade
// scopes requests to one marketplace, so the first summary block is the
// one that was asked for.
func (s *Store) UpsertCatalogItems(ctx context.Context, items []spapi.CatalogItem) (int, error) {
	written := 0
	for start := 0; start < len(items); start += s.batchSize {
		end := min(start+s.batchSize, len(items))

		b := &pgx.Batch{}
		for _, c := range items[start:end] {
			var summary spapi.CatalogSummary
			if len(c.Summaries) > 0 {
				summary = c.Summaries[0]
			}

			productType := ""
			if len(c.ProductTypes) > 0 {
				productType = c.ProductTypes[0].ProductType
			}

			var rank any
			rankGroup := ""
			if len(c.SalesRanks) > 0 && len(c.SalesRanks[0].DisplayRanks) > 0 {
				rank = c.SalesRanks[0].DisplayRanks[0].Rank
				rankGroup = c.SalesRanks[0].DisplayRanks[0].Title
			}

			b.Queue(upsertCatalogItemSQL,
				c.ASIN, summary.MarketplaceID, summary.ItemName, summary.Brand,
				summary.Manufacturer, summary.ModelNumber, productType, rank, rankGroup,
			)
		}

		n, err := s.sendBatch(ctx, b, "catalog-items")
		written += n
		if err != nil {
			return written, err
		}
	}

	s.logger.Debug().Int("rows", written).Msg("Catalog items upserted")
	return written, nil
}

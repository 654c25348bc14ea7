package spapi

import (
	"time"

	"github.com/FridaySalami/spapi-sync/pkg/ratelimit"
)

// Resource classes. Every operation draws permits from exactly one
// class, and classes never share budgets.
const (
	ClassOrders     = "orders"
	ClassOrderItems = "order-items"
	ClassPricing    = "pricing"
	ClassFinances   = "finances"
	ClassCatalog    = "catalog"
)

// MaxPricingBatch is the largest number of ASINs one competitive
// pricing call accepts.
const MaxPricingBatch = 20

// Endpoint describes one partner API operation as data: the request
// path, the rate class it draws from, and how long a successful
// response may be served from cache. A zero CacheTTL means responses
// are never cached.
type Endpoint struct {
	Name     string
	Path     string
	Class    string
	CacheTTL time.Duration
}

// The operations this engine drives. Paths containing %s are completed
// per call with the order id or ASIN.
var (
	EndpointGetOrders = Endpoint{
		Name:  "getOrders",
		Path:  "/orders/v0/orders",
		Class: ClassOrders,
	}

	EndpointGetOrderItems = Endpoint{
		Name:  "getOrderItems",
		Path:  "/orders/v0/orders/%s/orderItems",
		Class: ClassOrderItems,
	}

	EndpointGetCompetitivePricing = Endpoint{
		Name:     "getCompetitivePricing",
		Path:     "/products/pricing/v0/competitivePrice",
		Class:    ClassPricing,
		CacheTTL: 5 * time.Minute,
	}

	EndpointListFinancialEvents = Endpoint{
		Name:  "listFinancialEvents",
		Path:  "/finances/v0/financialEvents",
		Class: ClassFinances,
	}

	EndpointGetCatalogItem = Endpoint{
		Name:     "getCatalogItem",
		Path:     "/catalog/2022-04-01/items/%s",
		Class:    ClassCatalog,
		CacheTTL: time.Hour,
	}
)

// DefaultBudgets returns the documented per-class request budgets.
// These are upper bounds; x-amzn-RateLimit-Limit headers observed at
// runtime may tighten a class, never loosen it.
func DefaultBudgets() map[string]ratelimit.Budget {
	return map[string]ratelimit.Budget{
		ClassOrders:     {RPS: 0.0167, Burst: 20},
		ClassOrderItems: {RPS: 0.5, Burst: 30},
		ClassPricing:    {RPS: 0.5, Burst: 1},
		ClassFinances:   {RPS: 0.5, Burst: 30},
		ClassCatalog:    {RPS: 2, Burst: 2},
	}
}

package spapi

import "time"

// Money is a currency-tagged amount as the orders API serializes it.
// The amount arrives as a decimal string and is kept that way so no
// precision is lost before it reaches the sink.
type Money struct {
	CurrencyCode string `json:"CurrencyCode"`
	Amount       string `json:"Amount"`
}

// Order is one marketplace order.
type Order struct {
	AmazonOrderID          string    `json:"AmazonOrderId"`
	PurchaseDate           time.Time `json:"PurchaseDate"`
	LastUpdateDate         time.Time `json:"LastUpdateDate"`
	OrderStatus            string    `json:"OrderStatus"`
	FulfillmentChannel     string    `json:"FulfillmentChannel"`
	SalesChannel           string    `json:"SalesChannel"`
	OrderTotal             *Money    `json:"OrderTotal"`
	NumberOfItemsShipped   int       `json:"NumberOfItemsShipped"`
	NumberOfItemsUnshipped int       `json:"NumberOfItemsUnshipped"`
	MarketplaceID          string    `json:"MarketplaceId"`
	IsBusinessOrder        bool      `json:"IsBusinessOrder"`
	IsPrime                bool      `json:"IsPrime"`
}

// OrderItem is one line of an order. The money fields are pointers
// because pending orders omit them.
type OrderItem struct {
	ASIN              string `json:"ASIN"`
	SellerSKU         string `json:"SellerSKU"`
	OrderItemID       string `json:"OrderItemId"`
	Title             string `json:"Title"`
	QuantityOrdered   int    `json:"QuantityOrdered"`
	QuantityShipped   int    `json:"QuantityShipped"`
	ItemPrice         *Money `json:"ItemPrice"`
	ItemTax           *Money `json:"ItemTax"`
	PromotionDiscount *Money `json:"PromotionDiscount"`
}

type ordersPayload struct {
	Orders    []Order `json:"Orders"`
	NextToken string  `json:"NextToken"`
}

type ordersResponse struct {
	Payload ordersPayload `json:"payload"`
}

type orderItemsPayload struct {
	AmazonOrderID string      `json:"AmazonOrderId"`
	OrderItems    []OrderItem `json:"OrderItems"`
	NextToken     string      `json:"NextToken"`
}

type orderItemsResponse struct {
	Payload orderItemsPayload `json:"payload"`
}

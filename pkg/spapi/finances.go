package spapi

import "time"

// EventMoney is a currency-tagged amount as the finances API
// serializes it. Amounts that debit the seller are negative.
type EventMoney struct {
	CurrencyCode   string  `json:"CurrencyCode"`
	CurrencyAmount float64 `json:"CurrencyAmount"`
}

// Charge is one charge component of a shipment item.
type Charge struct {
	ChargeType   string     `json:"ChargeType"`
	ChargeAmount EventMoney `json:"ChargeAmount"`
}

// Fee is one fee component of a shipment item.
type Fee struct {
	FeeType   string     `json:"FeeType"`
	FeeAmount EventMoney `json:"FeeAmount"`
}

// ShipmentItem is the per-SKU detail of a shipment event.
type ShipmentItem struct {
	SellerSKU       string   `json:"SellerSKU"`
	OrderItemID     string   `json:"OrderItemId"`
	QuantityShipped int      `json:"QuantityShipped"`
	ItemCharges     []Charge `json:"ItemChargeList"`
	ItemFees        []Fee    `json:"ItemFeeList"`
}

// ShipmentEvent is a shipment-level financial event.
type ShipmentEvent struct {
	AmazonOrderID string         `json:"AmazonOrderId"`
	PostedDate    time.Time      `json:"PostedDate"`
	ShipmentItems []ShipmentItem `json:"ShipmentItemList"`
}

// RefundItem is the per-SKU detail of a refund event. The adjustment
// amounts mirror the original charges and fees with reversed sign.
type RefundItem struct {
	SellerSKU             string   `json:"SellerSKU"`
	QuantityShipped       int      `json:"QuantityShipped"`
	ItemChargeAdjustments []Charge `json:"ItemChargeAdjustmentList"`
	ItemFeeAdjustments    []Fee    `json:"ItemFeeAdjustmentList"`
}

// RefundEvent is a refund-level financial event.
type RefundEvent struct {
	AmazonOrderID   string       `json:"AmazonOrderId"`
	PostedDate      time.Time    `json:"PostedDate"`
	AdjustmentItems []RefundItem `json:"ShipmentItemAdjustmentList"`
}

// ServiceFeeEvent is an order-independent fee event.
type ServiceFeeEvent struct {
	AmazonOrderID string `json:"AmazonOrderId"`
	FeeReason     string `json:"FeeReason"`
	Fees          []Fee  `json:"FeeList"`
}

// FinancialEvents is one page of grouped event lists. Groups the
// upstream API omits decode as nil slices.
type FinancialEvents struct {
	ShipmentEvents   []ShipmentEvent   `json:"ShipmentEventList"`
	RefundEvents     []RefundEvent     `json:"RefundEventList"`
	ServiceFeeEvents []ServiceFeeEvent `json:"ServiceFeeEventList"`
}

type financialEventsPayload struct {
	FinancialEvents FinancialEvents `json:"FinancialEvents"`
	NextToken       string          `json:"NextToken"`
}

type financialEventsResponse struct {
	Payload financialEventsPayload `json:"payload"`
}

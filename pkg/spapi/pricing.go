package spapi

// PriceMoney is a currency-tagged amount as the pricing API serializes
// it, with the amount as a JSON number.
type PriceMoney struct {
	CurrencyCode string  `json:"CurrencyCode"`
	Amount       float64 `json:"Amount"`
}

// PriceSet groups the component prices of one offer.
type PriceSet struct {
	LandedPrice  PriceMoney `json:"LandedPrice"`
	ListingPrice PriceMoney `json:"ListingPrice"`
	Shipping     PriceMoney `json:"Shipping"`
}

// CompetitivePrice is one competitor price point for an ASIN.
type CompetitivePrice struct {
	CompetitivePriceID string   `json:"CompetitivePriceId"`
	Price              PriceSet `json:"Price"`
	Condition          string   `json:"condition"`
	BelongsToRequester bool     `json:"belongsToRequester"`
}

// CompetitivePricing holds the competitor price list of one product.
type CompetitivePricing struct {
	CompetitivePrices []CompetitivePrice `json:"CompetitivePrices"`
}

// PricingProduct is the product block of a pricing result.
type PricingProduct struct {
	CompetitivePricing CompetitivePricing `json:"CompetitivePricing"`
}

// PricingResult is the per-ASIN outcome of a batch pricing request.
// Status is "Success" when the product block is present; any other
// value means the ASIN was not priced and Product may be nil.
type PricingResult struct {
	ASIN    string          `json:"ASIN"`
	Status  string          `json:"status"`
	Product *PricingProduct `json:"Product"`
}

// Prices returns the competitor price points, or nil when the request
// for this ASIN did not succeed.
func (r PricingResult) Prices() []CompetitivePrice {
	if r.Product == nil {
		return nil
	}
	return r.Product.CompetitivePricing.CompetitivePrices
}

type pricingResponse struct {
	Payload []PricingResult `json:"payload"`
}

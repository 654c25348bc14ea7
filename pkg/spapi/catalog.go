package spapi

// CatalogSummary is the per-marketplace summary block of a catalog
// item.
type CatalogSummary struct {
	MarketplaceID string `json:"marketplaceId"`
	ItemName      string `json:"itemName"`
	Brand         string `json:"brand"`
	Manufacturer  string `json:"manufacturer"`
	ModelNumber   string `json:"modelNumber"`
}

// ProductType names the product type an item carries in one
// marketplace.
type ProductType struct {
	MarketplaceID string `json:"marketplaceId"`
	ProductType   string `json:"productType"`
}

// SalesRank is one display-group rank entry.
type SalesRank struct {
	Title string `json:"title"`
	Rank  int    `json:"rank"`
}

// SalesRankGroup holds the sales ranks of an item in one marketplace.
type SalesRankGroup struct {
	MarketplaceID string      `json:"marketplaceId"`
	DisplayRanks  []SalesRank `json:"displayGroupRanks"`
}

// CatalogItem is a catalog record in the 2022-04-01 shape. Unlike the
// v0 operations, catalog responses arrive without a payload envelope.
type CatalogItem struct {
	ASIN         string           `json:"asin"`
	Summaries    []CatalogSummary `json:"summaries"`
	ProductTypes []ProductType    `json:"productTypes"`
	SalesRanks   []SalesRankGroup `json:"salesRanks"`
}

// Summary returns the summary block for the given marketplace.
func (c CatalogItem) Summary(marketplaceID string) (CatalogSummary, bool) {
	for _, s := range c.Summaries {
		if s.MarketplaceID == marketplaceID {
			return s, true
		}
	}
	return CatalogSummary{}, false
}

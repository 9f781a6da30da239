package api

// APIItem is an item as served by a shard. ID is chain-local ("contract:tokenId").
type APIItem struct {
	ID            string   `json:"id"`
	Collection    string   `json:"collection"`
	Creators      []string `json:"creators"`
	Supply        string   `json:"supply"`
	Deleted       bool     `json:"deleted"`
	LastUpdatedAt string   `json:"lastUpdatedAt"`
}

// APIOwnership is an ownership as served by a shard.
type APIOwnership struct {
	ID        string `json:"id"`
	ItemID    string `json:"itemId"`
	Owner     string `json:"owner"`
	Value     string `json:"value"`
	CreatedAt string `json:"createdAt"`
}

// APICollection is a collection as served by a shard.
type APICollection struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Owner         string `json:"owner"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

// APIActivity is an activity as served by a shard.
type APIActivity struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	ItemID   string `json:"itemId"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Price    string `json:"price"`
	Currency string `json:"currency"`
	Date     string `json:"date"`
	Reverted bool   `json:"reverted"`
}

// APIOrder is an order as served by a shard, on REST listings and on the stream.
type APIOrder struct {
	ID            string   `json:"id"`
	Platform      string   `json:"platform"`
	Side          string   `json:"side"`
	Status        string   `json:"status"`
	Maker         string   `json:"maker"`
	Taker         string   `json:"taker,omitempty"`
	ItemID        string   `json:"itemId,omitempty"`
	CollectionID  string   `json:"collectionId,omitempty"`
	Currency      string   `json:"currency"`
	Price         string   `json:"price"`
	MakeStock     string   `json:"makeStock"`
	Origins       []string `json:"origins,omitempty"`
	EndedAt       string   `json:"endedAt,omitempty"`
	CreatedAt     string   `json:"createdAt"`
	LastUpdatedAt string   `json:"lastUpdatedAt"`
}

// CurrenciesResponse from GET /v0.1/orders/currencies
type CurrenciesResponse struct {
	Currencies []string `json:"currencies"`
}

// OrdersRequest configures an order listing for one target.
type OrdersRequest struct {
	// Target is the chain-local item or collection id.
	Target string
	// Collection selects collection-level listings instead of item-level.
	Collection bool
	Currency   string
	Origin     string
	Maker      string
	Cursor     string
	Size       int
}

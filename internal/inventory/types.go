package inventory

import "time"

// Item is one product record in the inventory collection.
// Field names on the wire follow the seeded document shape, which is what
// the model sees inside tool results.
type Item struct {
	ItemID          string  `json:"item_id"`
	ItemName        string  `json:"item_name"`
	ItemDescription string  `json:"item_description"`
	Categories      string  `json:"categories,omitempty"`
	ProductURL      string  `json:"productUrl,omitempty"`
	ImageURL        string  `json:"imageUrl,omitempty"`
	Price           float64 `json:"price"`
	Stock           int     `json:"stock"`

	CreatedAt time.Time `json:"-"`
}

// Match pairs an item with its similarity score from vector search.
// Score is cosine similarity in [0, 1], higher is closer.
type Match struct {
	Item  Item    `json:"item"`
	Score float32 `json:"score"`
}

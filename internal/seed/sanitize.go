package seed

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Gemini wraps JSON in prose, markdown fences, and trailing commas
// often enough that parsing the raw completion fails on most runs.
// sanitize extracts the first JSON array and repairs the common
// defects before unmarshaling.

var (
	arrayRe         = regexp.MustCompile(`(?s)\[.*\]`)
	trailingCommaRe = regexp.MustCompile(`,(\s*[\]}])`)
)

func sanitize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\t", " ")
	text = trailingCommaRe.ReplaceAllString(text, "$1")
	if match := arrayRe.FindString(text); match != "" {
		text = match
	}
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "[") {
		text = "[" + text + "]"
	}
	return text
}

// enrichedItem is the record shape the enrichment prompt asks for.
// The URL fields are pointers because the model is told they may be
// null.
type enrichedItem struct {
	ItemID          string   `json:"item_id"`
	ItemName        string   `json:"item_name"`
	ItemDescription string   `json:"item_description"`
	Categories      string   `json:"categories"`
	ProductURL      *string  `json:"productUrl"`
	ImageURL        *string  `json:"imageUrl"`
	Price           *float64 `json:"price"`
	Stock           *int     `json:"stock"`
}

// parseItems decodes the sanitized completion and fills the gaps the
// model left: a missing item_id gets a fresh UUID, a missing
// description gets a placeholder, missing numbers become zero. Items
// without a name are unusable and dropped.
func parseItems(text string) ([]enrichedItem, error) {
	var items []enrichedItem
	if err := json.Unmarshal([]byte(sanitize(text)), &items); err != nil {
		return nil, fmt.Errorf("parsing enriched items: %w", err)
	}

	out := items[:0]
	for _, item := range items {
		if strings.TrimSpace(item.ItemName) == "" {
			continue
		}
		if strings.TrimSpace(item.ItemID) == "" {
			item.ItemID = uuid.NewString()
		}
		if strings.TrimSpace(item.ItemDescription) == "" {
			item.ItemDescription = "No description available"
		}
		out = append(out, item)
	}
	return out, nil
}

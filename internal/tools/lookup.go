// Package tools defines the model-facing tools for the shop assistant.
//
// Every tool handler reports failures inside its result payload rather
// than as Go errors: the model should see "no results" or "search
// failed" as data it can phrase an answer around, and a handler error
// would abort the whole conversation turn instead.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/spelhyllan/spelhyllan/internal/inventory"
)

// LookupName is the Genkit tool name for inventory retrieval.
const LookupName = "item_lookup"

// DefaultLookupLimit is used when the model omits n or sends a
// non-positive value.
const DefaultLookupLimit = 10

// Error codes surfaced to the model inside LookupResult.
const (
	ErrorEmptyInventory = "EmptyInventory"
	ErrorSearchFailed   = "SearchFailed"
)

// Search type tags so the model can tell how the results were found.
const (
	SearchTypeVector = "vector"
	SearchTypeText   = "text"
)

// LookupInput is the tool's input schema, exposed to the model via
// Genkit's generated JSON schema.
type LookupInput struct {
	Query string `json:"query" jsonschema_description:"Natural-language description of the products to find"`
	N     int    `json:"n,omitempty" jsonschema_description:"Maximum number of results to return (default 10)"`
}

// LookupResult is the tool's output. Exactly one of Results or Error is
// populated.
type LookupResult struct {
	Results    []inventory.Item `json:"results,omitempty"`
	SearchType string           `json:"searchType,omitempty"`
	Count      int              `json:"count"`
	Query      string           `json:"query"`
	Error      string           `json:"error,omitempty"`
	Details    string           `json:"details,omitempty"`
}

// Inventory is the subset of the inventory store the lookup tool needs.
type Inventory interface {
	Count(ctx context.Context) (int, error)
	VectorSearch(ctx context.Context, queryEmbedding []float32, limit int) ([]inventory.Match, error)
	KeywordSearch(ctx context.Context, query string, limit int) ([]inventory.Item, error)
}

// Embedder turns query text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// GenkitEmbedder adapts an ai.Embedder to the Embedder interface.
type GenkitEmbedder struct {
	embedder ai.Embedder
}

// NewGenkitEmbedder wraps a Genkit embedder for single-text queries.
func NewGenkitEmbedder(embedder ai.Embedder) *GenkitEmbedder {
	return &GenkitEmbedder{embedder: embedder}
}

// Embed returns the embedding for one text.
func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{ai.DocumentFromText(text, nil)},
	})
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return resp.Embeddings[0].Embedding, nil
}

// Lookup holds the dependencies of the item_lookup tool.
type Lookup struct {
	inventory Inventory
	embedder  Embedder
	logger    *slog.Logger
}

// NewLookup creates the lookup tool handler.
func NewLookup(inv Inventory, embedder Embedder, logger *slog.Logger) (*Lookup, error) {
	if inv == nil {
		return nil, fmt.Errorf("inventory is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{inventory: inv, embedder: embedder, logger: logger}, nil
}

// Register registers item_lookup with Genkit so the model sees its
// schema and can request it by name.
func Register(g *genkit.Genkit, l *Lookup) (ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if l == nil {
		return nil, fmt.Errorf("lookup handler is required")
	}
	tool := genkit.DefineTool(g, LookupName,
		"Search the shop's board game inventory. "+
			"Finds products matching a natural-language query by meaning, "+
			"falling back to keyword matching when nothing is semantically close. "+
			"Returns: product name, description, categories, price, stock, and URLs. "+
			"Use this before answering any question about what the shop sells.",
		func(tc *ai.ToolContext, input LookupInput) (LookupResult, error) {
			return l.Handle(tc.Context, input), nil
		})
	return tool, nil
}

// ParseInput decodes and validates raw tool-call arguments. The raw
// value arrives as whatever the model sent, so it is round-tripped
// through JSON into the typed input.
func ParseInput(raw any) (LookupInput, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return LookupInput{}, fmt.Errorf("encoding tool input: %w", err)
	}
	var input LookupInput
	if err := json.Unmarshal(data, &input); err != nil {
		return LookupInput{}, fmt.Errorf("decoding tool input: %w", err)
	}
	if strings.TrimSpace(input.Query) == "" {
		return LookupInput{}, fmt.Errorf("query must not be empty")
	}
	return input, nil
}

// Handle runs one inventory lookup. Failures come back inside the
// result, never as an error.
func (l *Lookup) Handle(ctx context.Context, input LookupInput) LookupResult {
	query := strings.TrimSpace(input.Query)
	limit := input.N
	if limit <= 0 {
		limit = DefaultLookupLimit
	}

	count, err := l.inventory.Count(ctx)
	if err != nil {
		l.logger.Error("inventory count failed", "error", err)
		return LookupResult{
			Error:   ErrorSearchFailed,
			Details: "the inventory could not be reached",
			Query:   query,
		}
	}
	if count == 0 {
		return LookupResult{
			Error:   ErrorEmptyInventory,
			Details: "the inventory has no items yet",
			Query:   query,
		}
	}

	if embedding, err := l.embedder.Embed(ctx, query); err != nil {
		l.logger.Warn("query embedding failed, using keyword search", "error", err)
	} else {
		matches, err := l.inventory.VectorSearch(ctx, embedding, limit)
		if err != nil {
			l.logger.Error("vector search failed", "query", query, "error", err)
			return LookupResult{
				Error:   ErrorSearchFailed,
				Details: "searching the inventory failed",
				Query:   query,
			}
		}
		if len(matches) > 0 {
			items := make([]inventory.Item, len(matches))
			for i, m := range matches {
				items[i] = m.Item
			}
			l.logger.Debug("lookup served by vector search", "query", query, "results", len(items))
			return LookupResult{
				Results:    items,
				SearchType: SearchTypeVector,
				Count:      len(items),
				Query:      query,
			}
		}
	}

	// One keyword pass when the vector path found nothing or the
	// embedding itself failed.
	items, err := l.inventory.KeywordSearch(ctx, query, limit)
	if err != nil {
		l.logger.Error("keyword search failed", "query", query, "error", err)
		return LookupResult{
			Error:   ErrorSearchFailed,
			Details: "searching the inventory failed",
			Query:   query,
		}
	}
	l.logger.Debug("lookup served by keyword search", "query", query, "results", len(items))
	return LookupResult{
		Results:    items,
		SearchType: SearchTypeText,
		Count:      len(items),
		Query:      query,
	}
}

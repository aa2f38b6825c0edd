// Package seed fills the inventory from a scrape of the category page.
//
// Pipeline: scrape product cards, ask the model to complete them into
// full item records, embed each record, insert. One bad record must
// never sink the batch, so failures are logged and skipped.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/spelhyllan/spelhyllan/internal/inventory"
	"github.com/spelhyllan/spelhyllan/internal/scrape"
)

const enrichPromptFormat = `You are a helpful assistant. Take the following scraped data and complete it into full item records:
%s

Each item must have fields: item_id, item_name, item_description, categories, productUrl, imageUrl, price, stock.
Ensure realistic values and maintain the original scraped info.
categories is a comma-separated list of fitting product categories.
Add a unique UUID for each item_id.
Return only a valid JSON array.`

// Scraper supplies raw product cards. Satisfied by *scrape.Scraper.
type Scraper interface {
	Scrape(ctx context.Context) ([]scrape.Product, error)
}

// TextGenerator runs one freeform completion. Satisfied by
// *GenkitGenerator.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Store receives the seeded items. Satisfied by *inventory.Store.
type Store interface {
	Clear(ctx context.Context) error
	Insert(ctx context.Context, item inventory.Item, embeddingText string, embedding []float32) error
}

// GenkitGenerator adapts genkit.Generate to the TextGenerator
// interface.
type GenkitGenerator struct {
	g         *genkit.Genkit
	modelName string
}

// NewGenkitGenerator creates a text generator bound to one model.
func NewGenkitGenerator(g *genkit.Genkit, modelName string) *GenkitGenerator {
	return &GenkitGenerator{g: g, modelName: modelName}
}

// GenerateText runs the prompt and returns the completion text.
func (gg *GenkitGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	// WithMessages instead of WithPrompt: the prompt embeds scraped
	// JSON that may contain % characters.
	resp, err := genkit.Generate(ctx, gg.g,
		ai.WithModelName(gg.modelName),
		ai.WithMessages(ai.NewUserMessage(ai.NewTextPart(prompt))),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return resp.Text(), nil
}

// Seeder wires the pipeline stages together.
type Seeder struct {
	scraper  Scraper
	llm      TextGenerator
	embedder Embedder
	store    Store
	logger   *slog.Logger
}

// New validates the dependencies and creates a Seeder.
func New(scraper Scraper, llm TextGenerator, embedder Embedder, store Store, logger *slog.Logger) (*Seeder, error) {
	if scraper == nil {
		return nil, fmt.Errorf("scraper is required")
	}
	if llm == nil {
		return nil, fmt.Errorf("text generator is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{scraper: scraper, llm: llm, embedder: embedder, store: store, logger: logger}, nil
}

// Run executes the full pipeline and returns how many items were
// inserted. The inventory is cleared only after the scrape produced
// data, so a dead category page cannot empty a working shop.
func (s *Seeder) Run(ctx context.Context) (int, error) {
	products, err := s.scraper.Scrape(ctx)
	if err != nil {
		return 0, fmt.Errorf("scraping products: %w", err)
	}
	if len(products) == 0 {
		return 0, fmt.Errorf("no products scraped")
	}
	s.logger.Info("scraped products", "count", len(products))

	items, err := s.enrich(ctx, products)
	if err != nil {
		return 0, err
	}
	if len(items) == 0 {
		return 0, fmt.Errorf("enrichment produced no usable items")
	}
	s.logger.Info("enriched items", "count", len(items))

	if err := s.store.Clear(ctx); err != nil {
		return 0, fmt.Errorf("clearing inventory: %w", err)
	}

	inserted := 0
	for _, item := range items {
		if err := s.insert(ctx, item); err != nil {
			if ctx.Err() != nil {
				return inserted, ctx.Err()
			}
			s.logger.Error("skipping item", "item_id", item.ItemID, "error", err)
			continue
		}
		inserted++
	}
	if inserted == 0 {
		return 0, fmt.Errorf("no items could be inserted")
	}

	s.logger.Info("seeding complete", "inserted", inserted, "skipped", len(items)-inserted)
	return inserted, nil
}

// enrich asks the model to complete the scraped records.
func (s *Seeder) enrich(ctx context.Context, products []scrape.Product) ([]enrichedItem, error) {
	scraped, err := json.Marshal(products)
	if err != nil {
		return nil, fmt.Errorf("encoding scraped products: %w", err)
	}

	completion, err := s.llm.GenerateText(ctx, fmt.Sprintf(enrichPromptFormat, scraped))
	if err != nil {
		return nil, fmt.Errorf("enriching products: %w", err)
	}

	items, err := parseItems(completion)
	if err != nil {
		s.logger.Error("could not parse model output", "error", err)
		return nil, err
	}
	return items, nil
}

// insert embeds one record and writes it. The description is what gets
// embedded, so semantic search matches on what the item is about.
func (s *Seeder) insert(ctx context.Context, item enrichedItem) error {
	embeddingText := item.ItemDescription
	embedding, err := s.embedder.Embed(ctx, embeddingText)
	if err != nil {
		return fmt.Errorf("embedding item: %w", err)
	}

	return s.store.Insert(ctx, inventory.Item{
		ItemID:          item.ItemID,
		ItemName:        item.ItemName,
		ItemDescription: item.ItemDescription,
		Categories:      item.Categories,
		ProductURL:      deref(item.ProductURL),
		ImageURL:        deref(item.ImageURL),
		Price:           derefFloat(item.Price),
		Stock:           derefInt(item.Stock),
	}, embeddingText, embedding)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefFloat(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func derefInt(i *int) int {
	if i == nil {
		return 0
	}
	return *i
}

// Package inventory wraps the product collection in PostgreSQL.
//
// It supports counting, sampling, case-insensitive keyword search, and
// pgvector similarity search. All read operations are side-effect-free;
// the write operations (Insert, Clear) exist for the seeder only.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// itemColumns is the scan list shared by every item query.
const itemColumns = "item_id, item_name, item_description, categories, product_url, image_url, price, stock, created_at"

// Store provides read and seed access to the items collection.
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over the given connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// Count returns the total number of items in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int64
	err := s.pool.QueryRow(ctx, "SELECT count(*) FROM items").Scan(&count)
	if err != nil {
		return 0, storeErr("counting items", err)
	}
	if count > math.MaxInt {
		return 0, fmt.Errorf("item count %d exceeds platform int capacity", count)
	}
	return int(count), nil
}

// Sample returns up to limit items in insertion order, used for
// diagnostics and smoke checks.
func (s *Store) Sample(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	rows, err := s.pool.Query(ctx,
		"SELECT "+itemColumns+" FROM items ORDER BY created_at LIMIT $1", limit)
	if err != nil {
		return nil, storeErr("sampling items", err)
	}
	return scanItems(rows, "sampling items")
}

// KeywordSearch performs a case-insensitive substring match over name,
// description, categories, and the embedding text, OR-combined.
func (s *Store) KeywordSearch(ctx context.Context, query string, limit int) ([]Item, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	pattern := "%" + escapeLike(query) + "%"
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM items
		 WHERE item_name ILIKE $1
		    OR item_description ILIKE $1
		    OR categories ILIKE $1
		    OR embedding_text ILIKE $1
		 LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, storeErr("keyword search", err)
	}
	items, err := scanItems(rows, "keyword search")
	if err != nil {
		return nil, err
	}
	s.logger.Debug("keyword search", "query", query, "results", len(items))
	return items, nil
}

// VectorSearch returns the limit nearest items to the query embedding,
// ordered by descending cosine similarity.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, limit int) ([]Match, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	vec := pgvector.NewVector(queryEmbedding)
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+`, 1 - (embedding <=> $1) AS similarity
		 FROM items
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1
		 LIMIT $2`, vec, limit)
	if err != nil {
		return nil, storeErr("vector search", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			item  Item
			score float32
		)
		if err := scanItemInto(rows, &item, &score); err != nil {
			return nil, fmt.Errorf("vector search: scanning row: %w", err)
		}
		matches = append(matches, Match{Item: item, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("vector search", err)
	}
	s.logger.Debug("vector search", "results", len(matches))
	return matches, nil
}

// Insert upserts an item and its embedding. Used by the seeder.
func (s *Store) Insert(ctx context.Context, item Item, embeddingText string, embedding []float32) error {
	var vec *pgvector.Vector
	if len(embedding) > 0 {
		v := pgvector.NewVector(embedding)
		vec = &v
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO items
		   (item_id, item_name, item_description, categories, product_url, image_url, price, stock, embedding_text, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (item_id) DO UPDATE SET
		   item_name = EXCLUDED.item_name,
		   item_description = EXCLUDED.item_description,
		   categories = EXCLUDED.categories,
		   product_url = EXCLUDED.product_url,
		   image_url = EXCLUDED.image_url,
		   price = EXCLUDED.price,
		   stock = EXCLUDED.stock,
		   embedding_text = EXCLUDED.embedding_text,
		   embedding = EXCLUDED.embedding`,
		item.ItemID, item.ItemName, item.ItemDescription, item.Categories,
		nullable(item.ProductURL), nullable(item.ImageURL),
		item.Price, item.Stock, embeddingText, vec)
	if err != nil {
		return storeErr(fmt.Sprintf("inserting item %q", item.ItemID), err)
	}
	s.logger.Debug("inserted item", "item_id", item.ItemID, "name", item.ItemName)
	return nil
}

// Clear removes all items. Used by the seeder before a fresh load.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "DELETE FROM items"); err != nil {
		return storeErr("clearing items", err)
	}
	return nil
}

// storeErr tags a store I/O failure with ErrUnavailable while preserving
// the underlying error chain.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

// escapeLike escapes LIKE/ILIKE metacharacters so user text matches
// literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// nullable maps an empty string to NULL for optional URL columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func scanItems(rows pgx.Rows, op string) ([]Item, error) {
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := scanItemInto(rows, &item, nil); err != nil {
			return nil, fmt.Errorf("%s: scanning row: %w", op, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return items, nil
}

// scanItemInto scans the itemColumns list, plus a trailing similarity
// column when score is non-nil.
func scanItemInto(rows pgx.Rows, item *Item, score *float32) error {
	var productURL, imageURL *string

	dest := []any{
		&item.ItemID, &item.ItemName, &item.ItemDescription, &item.Categories,
		&productURL, &imageURL, &item.Price, &item.Stock, &item.CreatedAt,
	}
	if score != nil {
		dest = append(dest, score)
	}
	if err := rows.Scan(dest...); err != nil {
		return err
	}

	if productURL != nil {
		item.ProductURL = *productURL
	}
	if imageURL != nil {
		item.ImageURL = *imageURL
	}
	return nil
}

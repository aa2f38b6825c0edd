package inventory

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

func TestEscapeLike(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain text", input: "catan", want: "catan"},
		{name: "percent", input: "100% cotton", want: `100\% cotton`},
		{name: "underscore", input: "board_game", want: `board\_game`},
		{name: "backslash", input: `a\b`, want: `a\\b`},
		{name: "combined", input: `50%_off\`, want: `50\%\_off\\`},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := escapeLike(tt.input); got != tt.want {
				t.Errorf("escapeLike(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNullable(t *testing.T) {
	t.Parallel()

	if got := nullable(""); got != nil {
		t.Errorf("nullable(\"\") = %v, want nil", got)
	}
	if got := nullable("https://example.com"); got == nil || *got != "https://example.com" {
		t.Errorf("nullable returned %v, want pointer to input", got)
	}
}

// testPool connects to the database named by SPELHYLLAN_TEST_DATABASE_URL,
// skipping the test when the variable is unset.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("SPELHYLLAN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("SPELHYLLAN_TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("pinging test database: %v", err)
	}
	return pool
}

func testEmbedding(fill float32) []float32 {
	vec := make([]float32, 768)
	for i := range vec {
		vec[i] = fill
	}
	return vec
}

func TestStoreRoundTrip(t *testing.T) {
	pool := testPool(t)
	store := New(pool, nil)
	ctx := context.Background()

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	items := []Item{
		{
			ItemID:          "item-1",
			ItemName:        "Catan",
			ItemDescription: "Trade and build on the island of Catan.",
			Categories:      "strategy, family",
			ProductURL:      "https://example.com/catan",
			ImageURL:        "https://example.com/catan.jpg",
			Price:           399,
			Stock:           12,
		},
		{
			ItemID:          "item-2",
			ItemName:        "Ticket to Ride",
			ItemDescription: "Claim railway routes across the map.",
			Categories:      "strategy, family",
			Price:           449,
			Stock:           5,
		},
	}
	embeddings := [][]float32{testEmbedding(0.1), testEmbedding(0.9)}

	for i, item := range items {
		text := item.ItemName + " " + item.ItemDescription
		if err := store.Insert(ctx, item, text, embeddings[i]); err != nil {
			t.Fatalf("Insert(%q): %v", item.ItemID, err)
		}
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != len(items) {
		t.Errorf("Count = %d, want %d", count, len(items))
	}

	t.Run("keyword search matches name", func(t *testing.T) {
		results, err := store.KeywordSearch(ctx, "catan", 10)
		if err != nil {
			t.Fatalf("KeywordSearch: %v", err)
		}
		if len(results) != 1 || results[0].ItemID != "item-1" {
			t.Errorf("KeywordSearch(catan) = %v, want only item-1", results)
		}
		if results[0].ProductURL != "https://example.com/catan" {
			t.Errorf("ProductURL = %q, want the inserted URL", results[0].ProductURL)
		}
	})

	t.Run("keyword search treats wildcards literally", func(t *testing.T) {
		results, err := store.KeywordSearch(ctx, "%", 10)
		if err != nil {
			t.Fatalf("KeywordSearch: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("KeywordSearch(%%) matched %d items, want 0", len(results))
		}
	})

	t.Run("vector search orders by similarity", func(t *testing.T) {
		matches, err := store.VectorSearch(ctx, testEmbedding(0.1), 10)
		if err != nil {
			t.Fatalf("VectorSearch: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("VectorSearch returned %d matches, want 2", len(matches))
		}
		if matches[0].Item.ItemID != "item-1" {
			t.Errorf("nearest match = %q, want item-1", matches[0].Item.ItemID)
		}
		if matches[0].Score < matches[1].Score {
			t.Errorf("scores not descending: %v then %v", matches[0].Score, matches[1].Score)
		}
	})

	t.Run("insert upserts on conflict", func(t *testing.T) {
		updated := items[0]
		updated.Stock = 3
		if err := store.Insert(ctx, updated, "updated", embeddings[0]); err != nil {
			t.Fatalf("Insert: %v", err)
		}
		count, err := store.Count(ctx)
		if err != nil {
			t.Fatalf("Count: %v", err)
		}
		if count != len(items) {
			t.Errorf("Count after upsert = %d, want %d", count, len(items))
		}
	})

	t.Run("sample respects limit", func(t *testing.T) {
		sample, err := store.Sample(ctx, 1)
		if err != nil {
			t.Fatalf("Sample: %v", err)
		}
		if len(sample) != 1 {
			t.Errorf("Sample(1) returned %d items", len(sample))
		}
	})

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	count, err = store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("Count after Clear = %d, want 0", count)
	}
}

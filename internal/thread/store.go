package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUnavailable marks failures caused by the database being unreachable
// or rejecting the operation.
var ErrUnavailable = errors.New("thread store unavailable")

// Store manages thread persistence. It is safe for concurrent use;
// appends to the same thread are serialized by a row lock so sequence
// numbers never collide.
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

// Load returns the messages of a thread ordered by sequence number.
// An unknown thread ID yields an empty history, not an error, so a new
// conversation can start against any ID.
func (s *Store) Load(ctx context.Context, threadID string) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT role, content, sequence_number
		 FROM thread_messages
		 WHERE thread_id = $1
		 ORDER BY sequence_number`, threadID)
	if err != nil {
		return nil, storeErr("loading thread", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var (
			role        string
			contentJSON []byte
			seq         int32
		)
		if err := rows.Scan(&role, &contentJSON, &seq); err != nil {
			return nil, fmt.Errorf("loading thread: scanning row: %w", err)
		}

		var content []*ai.Part
		if err := json.Unmarshal(contentJSON, &content); err != nil {
			s.logger.Warn("skipping malformed message",
				"thread_id", threadID, "sequence", seq, "error", err)
			continue
		}
		messages = append(messages, &Message{
			Role:           ai.Role(role),
			Content:        content,
			SequenceNumber: seq,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("loading thread", err)
	}

	s.logger.Debug("loaded thread", "thread_id", threadID, "messages", len(messages))
	return messages, nil
}

// Append adds messages to the end of a thread in one transaction.
// The thread row is created on first append. A SELECT ... FOR UPDATE on
// the thread row keeps concurrent appends from interleaving sequence
// numbers; either every message commits or none does.
func (s *Store) Append(ctx context.Context, threadID string, messages []*Message) error {
	if len(messages) == 0 {
		return nil
	}
	for i, msg := range messages {
		for j, part := range msg.Content {
			if part == nil {
				return fmt.Errorf("message %d has nil content at index %d", i, j)
			}
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return storeErr("beginning transaction", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			s.logger.Warn("transaction rollback failed", "thread_id", threadID, "error", err)
		}
	}()

	if _, err := tx.Exec(ctx,
		`INSERT INTO threads (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, threadID); err != nil {
		return storeErr("ensuring thread row", err)
	}

	// Lock the thread row so only one append computes sequence numbers
	// at a time.
	var lockedID string
	if err := tx.QueryRow(ctx,
		`SELECT id FROM threads WHERE id = $1 FOR UPDATE`, threadID).Scan(&lockedID); err != nil {
		return storeErr("locking thread", err)
	}

	var maxSeq int32
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(sequence_number), 0) FROM thread_messages WHERE thread_id = $1`,
		threadID).Scan(&maxSeq); err != nil {
		return storeErr("reading sequence number", err)
	}

	for i, msg := range messages {
		contentJSON, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("marshaling message %d content: %w", i, err)
		}
		seq := maxSeq + int32(i) + 1 // #nosec G115 -- i is a loop index bounded by slice length
		if _, err := tx.Exec(ctx,
			`INSERT INTO thread_messages (thread_id, role, content, sequence_number)
			 VALUES ($1, $2, $3, $4)`,
			threadID, string(msg.Role), contentJSON, seq); err != nil {
			return storeErr(fmt.Sprintf("inserting message %d", i), err)
		}
	}

	newCount := maxSeq + int32(len(messages)) // #nosec G115 -- len bounded by turn ceiling
	if _, err := tx.Exec(ctx,
		`UPDATE threads SET message_count = $1, updated_at = now() WHERE id = $2`,
		newCount, threadID); err != nil {
		return storeErr("updating thread metadata", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr("committing transaction", err)
	}

	s.logger.Debug("appended messages", "thread_id", threadID, "count", len(messages))
	return nil
}

// Get returns the metadata row for a thread. A missing thread keeps
// pgx.ErrNoRows in the chain without the ErrUnavailable tag, so
// callers can map it to a not-found response.
func (s *Store) Get(ctx context.Context, threadID string) (*Thread, error) {
	var t Thread
	err := s.pool.QueryRow(ctx,
		`SELECT id, created_at, updated_at, message_count FROM threads WHERE id = $1`,
		threadID).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt, &t.MessageCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("thread %q: %w", threadID, err)
	}
	if err != nil {
		return nil, storeErr("getting thread", err)
	}
	return &t, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrUnavailable, err))
}

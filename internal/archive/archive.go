package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neurolens/lucid/internal/conversation"
	"github.com/neurolens/lucid/internal/explain"
	"github.com/neurolens/lucid/internal/intent"
)

// Archive persists explanation records and conversation turns to Postgres.
// It is optional: the engine treats a nil *Archive as memory-only operation.
type Archive struct {
	pool *pgxpool.Pool
}

// New connects to the archive database and verifies the connection.
func New(ctx context.Context, databaseURL string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Archive{pool: pool}, nil
}

func (a *Archive) Close() {
	a.pool.Close()
}

// WriteExplanation archives a full explanation record. The payload column
// carries the record verbatim as JSON, so the archive never lags the
// in-memory shape.
func (a *Archive) WriteExplanation(ctx context.Context, exp *explain.Explanation) error {
	payload, err := json.Marshal(exp)
	if err != nil {
		return fmt.Errorf("marshal explanation: %w", err)
	}

	_, err = a.pool.Exec(ctx, `
		INSERT INTO explanations (id, session_id, model_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		exp.ID, exp.SessionID, exp.ModelID, payload, exp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert explanation: %w", err)
	}
	return nil
}

// WriteTurn archives one conversation turn.
func (a *Archive) WriteTurn(ctx context.Context, sessionID uuid.UUID, t conversation.Turn) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO conversation_turns (id, session_id, sequence_id, question, intent, answer, sources, matched_triggers, grounded, confidence_tag, asked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.New(), sessionID, t.SequenceID, t.Question, string(t.Intent), t.Answer, t.Sources, t.MatchedTriggers, t.Grounded, t.ConfidenceTag, t.AskedAt,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// ExplanationRow is an archived explanation with its record decoded.
type ExplanationRow struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	ModelID   string
	Record    explain.Explanation
	CreatedAt time.Time
}

// RecentExplanations returns the newest archived records, newest first.
func (a *Archive) RecentExplanations(ctx context.Context, limit int) ([]ExplanationRow, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, session_id, model_id, payload, created_at
		FROM explanations
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query explanations: %w", err)
	}
	defer rows.Close()

	var out []ExplanationRow
	for rows.Next() {
		var r ExplanationRow
		var payload []byte
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ModelID, &payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan explanation row: %w", err)
		}
		if err := json.Unmarshal(payload, &r.Record); err != nil {
			return nil, fmt.Errorf("decode explanation payload: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate explanations: %w", err)
	}
	return out, nil
}

// TurnsBySession returns a session's archived turns in ask order.
func (a *Archive) TurnsBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]conversation.Turn, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT sequence_id, question, intent, answer, sources, matched_triggers, grounded, confidence_tag, asked_at
		FROM conversation_turns
		WHERE session_id = $1
		ORDER BY sequence_id ASC
		LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []conversation.Turn
	for rows.Next() {
		var t conversation.Turn
		var in string
		if err := rows.Scan(&t.SequenceID, &t.Question, &in, &t.Answer, &t.Sources, &t.MatchedTriggers, &t.Grounded, &t.ConfidenceTag, &t.AskedAt); err != nil {
			return nil, fmt.Errorf("scan turn row: %w", err)
		}
		t.Intent = intent.Intent(in)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

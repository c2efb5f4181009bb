// Package postgres provides a PostgreSQL-backed storage driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/papercompute/fable/pkg/chat"
	"github.com/papercompute/fable/pkg/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS turns (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	seq             INTEGER NOT NULL,
	role            TEXT NOT NULL,
	speaker         TEXT NOT NULL DEFAULT '',
	text            TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_turns_conversation ON turns(conversation_id, seq);

CREATE TABLE IF NOT EXISTS memory_states (
	conversation_id        TEXT PRIMARY KEY,
	summary_text           TEXT NOT NULL DEFAULT '',
	plot_points            TEXT NOT NULL DEFAULT '[]',
	completed_turn_count   INTEGER NOT NULL DEFAULT 0,
	last_compacted_at_turn INTEGER NOT NULL DEFAULT 0
);
`

// Driver implements storage.Driver using PostgreSQL.
type Driver struct {
	db *sql.DB
}

// NewDriver creates a new PostgreSQL-backed driver from a connection string.
func NewDriver(ctx context.Context, connString string) (*Driver, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Driver{db: db}, nil
}

func (d *Driver) AppendTurn(ctx context.Context, turn *chat.Turn) (*chat.Turn, error) {
	if turn == nil {
		return nil, errors.New("cannot store nil turn")
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE conversation_id = $1`,
		turn.ConversationID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("next seq: %w", err)
	}

	stored := *turn
	stored.ID = uuid.NewString()
	stored.Seq = seq
	stored.CreatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, conversation_id, seq, role, speaker, text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		stored.ID, stored.ConversationID, stored.Seq, stored.Role, stored.Speaker, stored.Text, stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert turn: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}

	return &stored, nil
}

func (d *Driver) ListTurns(ctx context.Context, conversationID string, limit int) ([]*chat.Turn, error) {
	limit = storage.ClampLimit(limit)

	// Select the newest N, then flip back to chronological order.
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, speaker, text, created_at
		 FROM turns WHERE conversation_id = $1
		 ORDER BY seq DESC LIMIT $2`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (d *Driver) AssistantTurns(ctx context.Context, conversationID string, offset int) ([]*chat.Turn, error) {
	if offset < 0 {
		offset = 0
	}

	rows, err := d.db.QueryContext(ctx,
		`SELECT id, conversation_id, seq, role, speaker, text, created_at
		 FROM turns WHERE conversation_id = $1 AND role = $2
		 ORDER BY seq ASC OFFSET $3`,
		conversationID, chat.RoleAssistant, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("assistant turns: %w", err)
	}
	defer rows.Close()

	return scanTurns(rows)
}

func (d *Driver) DeleteTurn(ctx context.Context, conversationID, turnID string) (*chat.Turn, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	turn := &chat.Turn{}
	err = tx.QueryRowContext(ctx,
		`DELETE FROM turns WHERE conversation_id = $1 AND id = $2
		 RETURNING id, conversation_id, seq, role, speaker, text, created_at`,
		conversationID, turnID,
	).Scan(&turn.ID, &turn.ConversationID, &turn.Seq, &turn.Role, &turn.Speaker, &turn.Text, &turn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{TurnID: turnID}
	}
	if err != nil {
		return nil, fmt.Errorf("delete turn: %w", err)
	}

	if turn.Role == chat.RoleAssistant {
		_, err = tx.ExecContext(ctx,
			`UPDATE memory_states
			 SET completed_turn_count = GREATEST(completed_turn_count - 1, 0)
			 WHERE conversation_id = $1`,
			conversationID,
		)
		if err != nil {
			return nil, fmt.Errorf("decrement turn count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit delete: %w", err)
	}

	return turn, nil
}

func (d *Driver) Memory(ctx context.Context, conversationID string) (*chat.MemoryState, error) {
	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO memory_states (conversation_id) VALUES ($1)
		 ON CONFLICT (conversation_id) DO NOTHING`,
		conversationID,
	); err != nil {
		return nil, fmt.Errorf("ensure memory state: %w", err)
	}

	mem := chat.NewMemoryState()
	var plotPointsJSON string
	err := d.db.QueryRowContext(ctx,
		`SELECT summary_text, plot_points, completed_turn_count, last_compacted_at_turn
		 FROM memory_states WHERE conversation_id = $1`,
		conversationID,
	).Scan(&mem.SummaryText, &plotPointsJSON, &mem.CompletedTurnCount, &mem.LastCompactedAtTurn)
	if err != nil {
		return nil, fmt.Errorf("load memory state: %w", err)
	}

	if err := json.Unmarshal([]byte(plotPointsJSON), &mem.PlotPoints); err != nil {
		return nil, fmt.Errorf("decode plot points: %w", err)
	}
	return mem, nil
}

func (d *Driver) IncrementTurnCount(ctx context.Context, conversationID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`INSERT INTO memory_states (conversation_id, completed_turn_count)
		 VALUES ($1, 1)
		 ON CONFLICT (conversation_id) DO UPDATE SET
			completed_turn_count = memory_states.completed_turn_count + 1
		 RETURNING completed_turn_count`,
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("increment turn count: %w", err)
	}
	return count, nil
}

func (d *Driver) UpdateMemory(ctx context.Context, conversationID, summaryText string, plotPoints []string, lastCompactedAtTurn int) error {
	if plotPoints == nil {
		plotPoints = []string{}
	}
	encoded, err := json.Marshal(plotPoints)
	if err != nil {
		return fmt.Errorf("encode plot points: %w", err)
	}

	_, err = d.db.ExecContext(ctx,
		`INSERT INTO memory_states (conversation_id, summary_text, plot_points, last_compacted_at_turn)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (conversation_id) DO UPDATE SET
			summary_text = EXCLUDED.summary_text,
			plot_points = EXCLUDED.plot_points,
			last_compacted_at_turn = EXCLUDED.last_compacted_at_turn`,
		conversationID, summaryText, string(encoded), lastCompactedAtTurn,
	)
	if err != nil {
		return fmt.Errorf("update memory state: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (d *Driver) Close() error {
	return d.db.Close()
}

func scanTurns(rows *sql.Rows) ([]*chat.Turn, error) {
	var turns []*chat.Turn
	for rows.Next() {
		turn := &chat.Turn{}
		err := rows.Scan(&turn.ID, &turn.ConversationID, &turn.Seq, &turn.Role, &turn.Speaker, &turn.Text, &turn.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return turns, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/signalpilot/signalpilot/internal/action"
	"github.com/signalpilot/signalpilot/internal/state"
)

const resultColumns = `id, action_type, arguments, status, validity, payload, error_message, created_at`

// WorkingMemory is the SQLite-backed state.WorkingMemory. Results are
// returned in insertion order.
type WorkingMemory struct {
	db *DB
}

var _ state.WorkingMemory = (*WorkingMemory)(nil)

func NewWorkingMemory(db *DB) *WorkingMemory {
	return &WorkingMemory{db: db}
}

// Record persists res immediately. A result without an ID gets one.
func (m *WorkingMemory) Record(ctx context.Context, conversationID string, res action.Result) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	args, err := json.Marshal(res.Arguments)
	if err != nil {
		return fmt.Errorf("record result: marshal arguments: %w", err)
	}
	_, err = m.db.SQLDB().ExecContext(ctx,
		`INSERT INTO action_results (id, conversation_id, action_type, arguments, status, validity, payload, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, conversationID, res.ActionType, string(args), string(res.Status), string(res.Validity),
		res.Payload, res.ErrorMessage, res.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record result: %w", err)
	}
	return nil
}

func (m *WorkingMemory) Results(ctx context.Context, conversationID string) ([]action.Result, error) {
	rows, err := m.db.SQLDB().QueryContext(ctx,
		`SELECT `+resultColumns+` FROM action_results WHERE conversation_id = ? ORDER BY seq`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []action.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (m *WorkingMemory) Latest(ctx context.Context, conversationID, actionType string) (action.Result, error) {
	row := m.db.SQLDB().QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM action_results
		 WHERE conversation_id = ? AND action_type = ? ORDER BY seq DESC LIMIT 1`,
		conversationID, actionType)
	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return action.Result{}, state.ErrNotFound
	}
	return res, err
}

func (m *WorkingMemory) Clear(ctx context.Context, conversationID string) error {
	if _, err := m.db.SQLDB().ExecContext(ctx,
		`DELETE FROM action_results WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(s scanner) (action.Result, error) {
	var (
		res                              action.Result
		argsJSON, status, validity, when string
	)
	if err := s.Scan(&res.ID, &res.ActionType, &argsJSON, &status, &validity, &res.Payload, &res.ErrorMessage, &when); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return action.Result{}, err
		}
		return action.Result{}, fmt.Errorf("scan result: %w", err)
	}
	if argsJSON != "" && argsJSON != "null" {
		if err := json.Unmarshal([]byte(argsJSON), &res.Arguments); err != nil {
			return action.Result{}, fmt.Errorf("scan result %s: arguments: %w", res.ID, err)
		}
	}
	res.Status = action.Status(status)
	res.Validity = action.Validity(validity)
	res.CreatedAt, _ = time.Parse(time.RFC3339Nano, when)
	return res, nil
}

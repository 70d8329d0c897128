// Package session owns conversation persistence. A session is the unit of
// continuity for one logical page project; it exclusively owns its ordered
// turn list. Turns are append-only; once written they are never edited.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Turn roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Turn represents one conversational message. A turn under generation is
// accumulated in memory and persisted in a single write once finalized.
type Turn struct {
	ID          string          `json:"id,omitempty"`
	SessionID   string          `json:"session_id,omitempty"`
	TaskID      string          `json:"task_id,omitempty"`
	Role        string          `json:"role"` // user, assistant, system, tool
	Content     string          `json:"content,omitempty"`
	ToolCalls   json.RawMessage `json:"tool_calls,omitempty"`
	ToolResults json.RawMessage `json:"tool_results,omitempty"`
	CreatedAt   time.Time       `json:"created_at,omitempty"`
}

// ToolCall records one tool invocation requested by the model
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the structured payload returned by an external tool.
// Payload is an open bag of named fields of heterogeneous size; the
// redactor interprets it per tool category.
type ToolResult struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// Session is the conversation scope for one page project
type Session struct {
	ID         string    `json:"id"`
	SessionKey string    `json:"session_key"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ErrDatabaseRequired is returned when a manager is built without a database
var ErrDatabaseRequired = fmt.Errorf("session manager requires a database connection")

// Manager handles session and turn persistence
type Manager struct {
	db *sql.DB
}

// NewManager creates a session manager from a database connection
func NewManager(db *sql.DB) (*Manager, error) {
	if db == nil {
		return nil, ErrDatabaseRequired
	}
	return &Manager{db: db}, nil
}

// DB returns the underlying connection for sharing with other components
func (m *Manager) DB() *sql.DB {
	return m.db
}

// GetOrCreate returns an existing session by key or creates a new one
func (m *Manager) GetOrCreate(ctx context.Context, sessionKey string) (*Session, error) {
	var s Session
	var created, updated int64
	err := m.db.QueryRowContext(ctx,
		`SELECT id, session_key, created_at, updated_at FROM sessions WHERE session_key = ?`,
		sessionKey,
	).Scan(&s.ID, &s.SessionKey, &created, &updated)
	if err == nil {
		s.CreatedAt = time.Unix(created, 0)
		s.UpdatedAt = time.Unix(updated, 0)
		return &s, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now()
	s = Session{
		ID:         uuid.New().String(),
		SessionKey: sessionKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = m.db.ExecContext(ctx,
		`INSERT INTO sessions (id, session_key, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		s.ID, s.SessionKey, now.Unix(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &s, nil
}

// AppendTurn adds a turn to a session. The whole turn is written in one
// statement; a turn is either fully persisted or not persisted at all.
func (m *Manager) AppendTurn(ctx context.Context, sessionID string, turn Turn) (string, error) {
	// Truly empty turns create ghost records; skip them silently.
	if turn.Content == "" && len(turn.ToolCalls) == 0 && len(turn.ToolResults) == 0 {
		return "", nil
	}

	if turn.ID == "" {
		turn.ID = uuid.New().String()
	}
	var toolCalls, toolResults sql.NullString
	if len(turn.ToolCalls) > 0 {
		toolCalls = sql.NullString{String: string(turn.ToolCalls), Valid: true}
	}
	if len(turn.ToolResults) > 0 {
		toolResults = sql.NullString{String: string(turn.ToolResults), Valid: true}
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO turns (id, session_id, task_id, role, content, tool_calls, tool_results, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, turn.ID, sessionID, nullString(turn.TaskID), turn.Role, turn.Content, toolCalls, toolResults, time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("failed to append turn: %w", err)
	}

	_, _ = m.db.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`, time.Now().Unix(), sessionID)
	return turn.ID, nil
}

// Turns retrieves all turns for a session in creation order
func (m *Manager) Turns(ctx context.Context, sessionID string) ([]Turn, error) {
	return m.queryTurns(ctx,
		`SELECT id, task_id, role, content, tool_calls, tool_results, created_at
		 FROM turns WHERE session_id = ? ORDER BY seq`, sessionID)
}

// TurnsForTask retrieves the subset of a session's turns produced while the
// given task ran. The task never owns these rows, this is a filtered view.
func (m *Manager) TurnsForTask(ctx context.Context, sessionID, taskID string) ([]Turn, error) {
	return m.queryTurns(ctx,
		`SELECT id, task_id, role, content, tool_calls, tool_results, created_at
		 FROM turns WHERE session_id = ? AND task_id = ? ORDER BY seq`, sessionID, taskID)
}

func (m *Manager) queryTurns(ctx context.Context, query string, args ...any) ([]Turn, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var taskID, toolCalls, toolResults sql.NullString
		var created int64
		if err := rows.Scan(&t.ID, &taskID, &t.Role, &t.Content, &toolCalls, &toolResults, &created); err != nil {
			return nil, err
		}
		t.TaskID = taskID.String
		if toolCalls.Valid && toolCalls.String != "" {
			t.ToolCalls = json.RawMessage(toolCalls.String)
		}
		if toolResults.Valid && toolResults.String != "" {
			t.ToolResults = json.RawMessage(toolResults.String)
		}
		t.CreatedAt = time.Unix(created, 0)
		turns = append(turns, t)
	}
	return sanitizeTurns(turns), rows.Err()
}

// Delete removes a session and all its turns
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	_, err := m.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	return err
}

// sanitizeTurns strips orphaned tool results that have no matching tool call.
// These appear when a run died between persisting the assistant turn and its
// tool results; the completion endpoint rejects them.
func sanitizeTurns(turns []Turn) []Turn {
	if len(turns) == 0 {
		return turns
	}

	seenCallIDs := make(map[string]bool)
	result := make([]Turn, 0, len(turns))

	for _, t := range turns {
		if t.Role == "assistant" && len(t.ToolCalls) > 0 {
			var calls []ToolCall
			if err := json.Unmarshal(t.ToolCalls, &calls); err == nil {
				for _, c := range calls {
					seenCallIDs[c.ID] = true
				}
			}
			result = append(result, t)
			continue
		}

		if t.Role == "tool" && len(t.ToolResults) > 0 {
			var results []ToolResult
			if err := json.Unmarshal(t.ToolResults, &results); err == nil {
				valid := make([]ToolResult, 0, len(results))
				for _, r := range results {
					if seenCallIDs[r.ToolCallID] {
						valid = append(valid, r)
					}
				}
				if len(valid) == 0 {
					continue
				}
				if len(valid) < len(results) {
					if data, err := json.Marshal(valid); err == nil {
						t.ToolResults = data
					}
				}
			}
		}

		result = append(result, t)
	}

	return result
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

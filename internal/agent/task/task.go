// Package task tracks generation tasks through their lifecycle. A task is
// the unit of autonomous work against one target: pending when created,
// running while a generation stream is in flight, then completed or error.
// Terminal states are final; regeneration means a brand-new task.
package task

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/artifact"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/session"
)

// Status represents the lifecycle state of a task
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Terminal reports whether no further transition exists from the status
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Kind classifies what a task works on
type Kind string

const (
	KindContextAcquisition Kind = "context_acquisition"
	KindPageGeneration     Kind = "page_generation"
	KindPageAudit          Kind = "page_audit"
)

// TargetSiteContext is the sentinel target id for context-acquisition
// tasks, which work on the site as a whole rather than a single page.
const TargetSiteContext = "site-context"

// Phases returns the ordered work phases for a task kind. Phases are
// instruction text only: the model executes them inside one uninterrupted
// generation, and the state machine never tracks them individually.
func (k Kind) Phases() []string {
	switch k {
	case KindContextAcquisition:
		return []string{
			"Collect the site context: product, audience, tone and existing pages",
			"Research competitors ranking for the site's core topics",
			"Plan the pages the site should have, with type and target keyword for each",
		}
	case KindPageGeneration:
		return []string{
			"Read the page plan record and the site context",
			"Research the target query and verify supporting facts",
			"Write the page and render it to final HTML",
		}
	case KindPageAudit:
		return []string{
			"Fetch the published page and run the on-page audit",
			"Report findings grouped by severity",
		}
	default:
		return nil
	}
}

// Task is one tracked unit of generation work
type Task struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"session_id"`
	TargetID   string     `json:"target_id,omitempty"`
	Kind       Kind       `json:"kind"`
	Status     Status     `json:"status"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Result is what a completed task hands back to its caller. Artifact is
// the target record re-fetched after completion so the caller can render
// without a second round-trip; the re-fetch is best-effort, so a failed
// read leaves Artifact nil and Unavailable explaining why while the task
// still completes.
type Result struct {
	Task             *Task              `json:"task"`
	Artifact         *artifact.Artifact `json:"artifact,omitempty"`
	Unavailable      string             `json:"unavailable,omitempty"`
	AlreadyProcessed bool               `json:"-"`
}

var (
	// ErrTaskAlreadyRunning rejects dispatch while another task in the
	// same session is running.
	ErrTaskAlreadyRunning = errors.New("another task is already running in this session")

	// ErrInvalidTransition is returned for transitions the lifecycle
	// does not define, including any move out of a terminal state.
	ErrInvalidTransition = errors.New("invalid task state transition")

	// ErrTaskNotFound is returned when the task does not exist
	ErrTaskNotFound = errors.New("task not found")
)

// ResultID derives the stable identifier used to deduplicate completion
// notifications. The same result payload always yields the same id.
func ResultID(taskID, payload string) string {
	sum := sha256.Sum256([]byte(taskID + "\x00" + payload))
	return hex.EncodeToString(sum[:16])
}

// Manager persists tasks and enforces the lifecycle rules
type Manager struct {
	db       *sql.DB
	sessions *session.Manager
	store    *artifact.Store
}

// NewManager creates a task manager. The artifact store may be nil when
// no artifact re-fetch is wanted (results then report it unavailable).
func NewManager(db *sql.DB, sessions *session.Manager, store *artifact.Store) *Manager {
	return &Manager{db: db, sessions: sessions, store: store}
}

// Create persists a new pending task
func (m *Manager) Create(ctx context.Context, sessionID, targetID string, kind Kind) (*Task, error) {
	t := &Task{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		TargetID:  targetID,
		Kind:      kind,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if kind == KindContextAcquisition && t.TargetID == "" {
		t.TargetID = TargetSiteContext
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO tasks (id, session_id, target_id, kind, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, t.ID, t.SessionID, nullString(t.TargetID), string(t.Kind), string(t.Status), t.CreatedAt.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	return t, nil
}

// MarkRunning dispatches a pending task. The transition is rejected when
// the task is not pending or when another task in the session is already
// running; the guard and the flip happen in one statement so concurrent
// dispatches cannot both win.
func (m *Manager) MarkRunning(ctx context.Context, sessionID, taskID string) error {
	res, err := m.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'running', started_at = ?
		WHERE session_id = ? AND id = ? AND status = 'pending'
		  AND NOT EXISTS (
			SELECT 1 FROM tasks WHERE session_id = ? AND status = 'running'
		  )
	`, time.Now().Unix(), sessionID, taskID, sessionID)
	if err != nil {
		return fmt.Errorf("failed to mark task running: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	// Figure out which rule blocked the dispatch
	t, err := m.Get(ctx, sessionID, taskID)
	if err != nil {
		return err
	}
	if t.Status != StatusPending {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, taskID, t.Status)
	}
	return ErrTaskAlreadyRunning
}

// Discard removes a pending task that was never dispatched, so a rejected
// dispatch leaves no row behind. Running and terminal tasks are untouched.
func (m *Manager) Discard(ctx context.Context, sessionID, taskID string) error {
	_, err := m.db.ExecContext(ctx, `
		DELETE FROM tasks WHERE session_id = ? AND id = ? AND status = 'pending'
	`, sessionID, taskID)
	if err != nil {
		return fmt.Errorf("failed to discard task: %w", err)
	}
	return nil
}

// Complete finishes a running task. The completion notification is keyed
// by a stable result id; a redelivered notification is a no-op that
// reports AlreadyProcessed. On first delivery the target artifact is
// re-fetched best-effort and attached to the result.
func (m *Manager) Complete(ctx context.Context, sessionID, taskID, resultID string) (*Result, error) {
	t, err := m.Get(ctx, sessionID, taskID)
	if err != nil {
		return nil, err
	}

	// Dedupe before any write
	res, err := m.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO task_results (result_id, session_id, task_id, processed_at)
		VALUES (?, ?, ?, ?)
	`, resultID, sessionID, taskID, time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to record result id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		logging.Infof("[Task] Result %s already processed for task %s, skipping", resultID, taskID)
		return &Result{Task: t, AlreadyProcessed: true}, nil
	}

	upd, err := m.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'completed', finished_at = ?
		WHERE session_id = ? AND id = ? AND status = 'running'
	`, time.Now().Unix(), sessionID, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete task: %w", err)
	}
	if n, _ := upd.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("%w: task %s is %s", ErrInvalidTransition, taskID, t.Status)
	}
	t.Status = StatusCompleted
	now := time.Now()
	t.FinishedAt = &now

	return m.attachArtifact(ctx, t), nil
}

// attachArtifact re-fetches the task's target artifact. Failure never
// fails the result; final status is driven by the generation stream, not
// by this secondary read.
func (m *Manager) attachArtifact(ctx context.Context, t *Task) *Result {
	result := &Result{Task: t}
	if t.TargetID == "" || t.TargetID == TargetSiteContext {
		return result
	}
	if m.store == nil {
		result.Unavailable = "artifact store not configured"
		return result
	}

	art, err := m.store.Load(ctx, t.TargetID)
	switch {
	case err != nil:
		logging.Warnf("[Task] Artifact re-fetch failed for %s: %v", t.TargetID, err)
		result.Unavailable = "artifact fetch failed: " + err.Error()
	case art == nil:
		result.Unavailable = "artifact not found"
	default:
		result.Artifact = art
	}
	return result
}

// Fail moves a task to error. A synthetic assistant turn describing the
// failure is appended to the session before the status flips, so the
// transcript explains itself on reload. Failing an already-terminal task
// is a no-op: a redelivered error notification must not duplicate the
// synthetic turn.
func (m *Manager) Fail(ctx context.Context, sessionID, taskID, message string) error {
	t, err := m.Get(ctx, sessionID, taskID)
	if err != nil {
		return err
	}
	if t.Status.Terminal() {
		logging.Debugf("[Task] Task %s already %s, ignoring failure: %s", taskID, t.Status, message)
		return nil
	}

	if message == "" {
		message = "generation failed for an unknown reason"
	}
	errTurn := session.Turn{
		TaskID:  taskID,
		Role:    session.RoleAssistant,
		Content: "The request could not be completed: " + message + "\n\nYou can retry by starting a new generation.",
	}
	if _, err := m.sessions.AppendTurn(ctx, sessionID, errTurn); err != nil {
		// The transcript loses the explanation but the state machine
		// must still reflect the failure
		logging.Errorf("[Task] Failed to persist error turn for task %s: %v", taskID, err)
	}

	_, err = m.db.ExecContext(ctx, `
		UPDATE tasks SET status = 'error', last_error = ?, finished_at = ?
		WHERE session_id = ? AND id = ? AND status IN ('pending', 'running')
	`, message, time.Now().Unix(), sessionID, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task errored: %w", err)
	}
	return nil
}

// RecoverStale moves tasks left in running by an unclean shutdown to
// error, with the usual synthetic failure turn. Called once at startup,
// before any new work dispatches; without it a crashed run would hold the
// session's running slot forever. Returns the number of recovered tasks.
func (m *Manager) RecoverStale(ctx context.Context) (int, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT session_id, id FROM tasks WHERE status = 'running'`)
	if err != nil {
		return 0, fmt.Errorf("failed to list interrupted tasks: %w", err)
	}

	type staleTask struct{ sessionID, taskID string }
	var stale []staleTask
	for rows.Next() {
		var s staleTask
		if err := rows.Scan(&s.sessionID, &s.taskID); err != nil {
			rows.Close()
			return 0, err
		}
		stale = append(stale, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, s := range stale {
		if err := m.Fail(ctx, s.sessionID, s.taskID, "generation was interrupted by a service restart"); err != nil {
			return 0, fmt.Errorf("failed to recover task %s: %w", s.taskID, err)
		}
	}
	if len(stale) > 0 {
		logging.Infof("[Task] Recovered %d interrupted tasks", len(stale))
	}
	return len(stale), nil
}

// Get loads one task
func (m *Manager) Get(ctx context.Context, sessionID, taskID string) (*Task, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, session_id, target_id, kind, status, last_error,
		       created_at, started_at, finished_at
		FROM tasks WHERE session_id = ? AND id = ?
	`, sessionID, taskID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return t, err
}

// Running returns the session's running task, or nil when idle
func (m *Manager) Running(ctx context.Context, sessionID string) (*Task, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, session_id, target_id, kind, status, last_error,
		       created_at, started_at, finished_at
		FROM tasks WHERE session_id = ? AND status = 'running'
	`, sessionID)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

// List returns all of a session's tasks, oldest first
func (m *Manager) List(ctx context.Context, sessionID string) ([]*Task, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, session_id, target_id, kind, status, last_error,
		       created_at, started_at, finished_at
		FROM tasks WHERE session_id = ? ORDER BY created_at ASC, id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Turns returns the task's view into its session's turn list. The view is
// non-owning: the turns belong to the session.
func (m *Manager) Turns(ctx context.Context, sessionID, taskID string) ([]session.Turn, error) {
	return m.sessions.TurnsForTask(ctx, sessionID, taskID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	t := &Task{}
	var targetID, lastError sql.NullString
	var kind, status string
	var createdAt int64
	var startedAt, finishedAt sql.NullInt64

	err := row.Scan(&t.ID, &t.SessionID, &targetID, &kind, &status, &lastError,
		&createdAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	t.TargetID = targetID.String
	t.Kind = Kind(kind)
	t.Status = Status(status)
	t.LastError = lastError.String
	t.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		ts := time.Unix(startedAt.Int64, 0)
		t.StartedAt = &ts
	}
	if finishedAt.Valid {
		ts := time.Unix(finishedAt.Int64, 0)
		t.FinishedAt = &ts
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

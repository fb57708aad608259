// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package taskstore persists tasks and their execution logs in SQLite.
// Task records round-trip losslessly: subtasks are stored as a JSON
// column, log entries append-only in their own table.
// Implements: prd005-tasks (R4, R6); docs/ARCHITECTURE § Task Store.
package taskstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paperdex/pkg/types"
)

// ErrTaskNotFound is returned for lookups and updates of unknown task IDs.
var ErrTaskNotFound = errors.New("task not found")

// Store manages the task SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the task database at path, creating the schema
// if it does not exist.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT,
			input_text TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			papers TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			completed_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`,
		`CREATE TABLE IF NOT EXISTS task_logs (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			timestamp TEXT NOT NULL,
			stage TEXT NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL,
			data TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_logs_task_id ON task_logs(task_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Create inserts a new task.
func (s *Store) Create(ctx context.Context, task *types.Task) error {
	papersJSON, err := json.Marshal(task.Papers)
	if err != nil {
		return fmt.Errorf("marshaling subtasks: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, title, description, input_text, status, error, papers, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.InputText,
		string(task.Status), task.Error, string(papersJSON),
		formatTime(task.CreatedAt), formatTime(task.UpdatedAt), formatTimePtr(task.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting task %s: %w", task.ID, err)
	}
	return nil
}

// Get returns the task with the given ID, or ErrTaskNotFound.
func (s *Store) Get(ctx context.Context, id string) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, input_text, status, error, papers, created_at, updated_at, completed_at
		 FROM tasks WHERE id = ?`, id)

	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}
	return task, nil
}

// List returns all tasks, newest first.
func (s *Store) List(ctx context.Context) ([]types.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, description, input_text, status, error, papers, created_at, updated_at, completed_at
		 FROM tasks ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}

// Update rewrites the stored task. The whole record is replaced in one
// statement, so readers never observe a half-updated task (R6.2).
func (s *Store) Update(ctx context.Context, task *types.Task) error {
	papersJSON, err := json.Marshal(task.Papers)
	if err != nil {
		return fmt.Errorf("marshaling subtasks: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET title = ?, description = ?, input_text = ?, status = ?, error = ?,
			papers = ?, created_at = ?, updated_at = ?, completed_at = ?
		 WHERE id = ?`,
		task.Title, task.Description, task.InputText, string(task.Status), task.Error,
		string(papersJSON), formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
		formatTimePtr(task.CompletedAt), task.ID,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", task.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Delete removes a task and, via the foreign key cascade, its logs.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// AppendLog adds one log entry to a task's execution log.
func (s *Store) AppendLog(ctx context.Context, entry types.LogEntry) error {
	var dataJSON []byte
	if entry.Data != nil {
		var err error
		dataJSON, err = json.Marshal(entry.Data)
		if err != nil {
			return fmt.Errorf("marshaling log data: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO task_logs (task_id, timestamp, stage, level, message, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.TaskID, formatTime(entry.Timestamp), entry.Stage,
		string(entry.Level), entry.Message, nullableString(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("appending log for task %s: %w", entry.TaskID, err)
	}
	return nil
}

// Logs returns a task's log entries in append order.
func (s *Store) Logs(ctx context.Context, taskID string) ([]types.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, timestamp, stage, level, message, data
		 FROM task_logs WHERE task_id = ? ORDER BY rowid`, taskID)
	if err != nil {
		return nil, fmt.Errorf("loading logs for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var entries []types.LogEntry
	for rows.Next() {
		var e types.LogEntry
		var ts string
		var level string
		var data sql.NullString
		if err := rows.Scan(&e.TaskID, &ts, &e.Stage, &level, &e.Message, &data); err != nil {
			return nil, fmt.Errorf("scanning log entry: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		e.Level = types.LogLevel(level)
		if data.Valid && data.String != "" {
			if err := json.Unmarshal([]byte(data.String), &e.Data); err != nil {
				return nil, fmt.Errorf("parsing log data: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ResetInFlight rewinds work that was mid-flight when the process died:
// searching subtasks go back to pending, analyzing subtasks back to
// search_completed, and tasks stuck in formatting_input back to pending.
// Called once at startup before the scheduler runs (R6.3). Returns the
// number of tasks touched.
func (s *Store) ResetInFlight(ctx context.Context, now time.Time) (int, error) {
	tasks, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	reset := 0
	for i := range tasks {
		task := &tasks[i]
		changed := false

		if task.Status == types.TaskFormatting {
			task.Status = types.TaskPending
			changed = true
		}

		for j := range task.Papers {
			switch task.Papers[j].Status {
			case types.PaperSearching:
				task.Papers[j].Status = types.PaperPending
				task.Papers[j].UpdatedAt = now
				changed = true
			case types.PaperAnalyzing:
				task.Papers[j].Status = types.PaperSearchCompleted
				task.Papers[j].UpdatedAt = now
				changed = true
			}
		}

		if !changed {
			continue
		}
		task.RollUp(now)
		if err := s.Update(ctx, task); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*types.Task, error) {
	var task types.Task
	var status, papersJSON, createdAt, updatedAt string
	var description, taskErr sql.NullString
	var completedAt sql.NullString

	err := row.Scan(&task.ID, &task.Title, &description, &task.InputText,
		&status, &taskErr, &papersJSON, &createdAt, &updatedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	task.Description = description.String
	task.Error = taskErr.String
	task.Status = types.TaskStatus(status)
	if err := json.Unmarshal([]byte(papersJSON), &task.Papers); err != nil {
		return nil, fmt.Errorf("parsing subtasks: %w", err)
	}
	task.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	task.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if completedAt.Valid && completedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, completedAt.String)
		if err == nil {
			task.CompletedAt = &t
		}
	}
	return &task, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func nullableString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// TaskStatus is the coarse lifecycle state of a whole task.
// Per prd005-tasks R1.2. Except for the initial pending and
// formatting_input states it is always derived from the subtask
// statuses by DeriveTaskStatus; it is never set independently.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskFormatting TaskStatus = "formatting_input"
	TaskSearching  TaskStatus = "searching_papers"
	TaskAnalyzing  TaskStatus = "analyzing_papers"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is final.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// PaperStatus is the per-paper subtask state.
// Per prd005-tasks R2.1: pending → searching → search_completed →
// analyzing → completed, with failed reachable from any non-terminal state.
type PaperStatus string

const (
	PaperPending         PaperStatus = "pending"
	PaperSearching       PaperStatus = "searching"
	PaperSearchCompleted PaperStatus = "search_completed"
	PaperAnalyzing       PaperStatus = "analyzing"
	PaperCompleted       PaperStatus = "completed"
	PaperFailed          PaperStatus = "failed"
)

// Terminal reports whether the subtask status is final.
func (s PaperStatus) Terminal() bool {
	return s == PaperCompleted || s == PaperFailed
}

// InFlight reports whether a worker currently owns the subtask.
func (s PaperStatus) InFlight() bool {
	return s == PaperSearching || s == PaperAnalyzing
}

// PaperSubTask tracks one paper through the search and analysis stages.
type PaperSubTask struct {
	// Title is the requested paper title from the formatted input.
	Title string `json:"title"`

	// URL is a direct arXiv or PDF link from the input, or empty.
	URL string `json:"url,omitempty"`

	// Status is the subtask state.
	Status PaperStatus `json:"status"`

	// Error describes why the subtask failed; empty otherwise.
	Error string `json:"error,omitempty"`

	// PaperKey is the cache key of the resolved paper, set once search completes.
	PaperKey string `json:"paper_key,omitempty"`

	// Paper is the resolved metadata, set once search completes.
	Paper *ResolvedPaper `json:"paper,omitempty"`

	// UpdatedAt is the time of the last status change.
	UpdatedAt time.Time `json:"updated_at"`
}

// Task is one user request: raw input text fanned out into per-paper
// subtasks. Per prd005-tasks R1.1.
type Task struct {
	// ID is a UUID assigned at creation.
	ID string `json:"id"`

	// Title is the user-supplied task title.
	Title string `json:"title"`

	// Description is optional free text.
	Description string `json:"description,omitempty"`

	// InputText is the raw paper list handed to the input formatter.
	InputText string `json:"input_text"`

	// Status is the coarse lifecycle state.
	Status TaskStatus `json:"status"`

	// Error describes a task-level failure (formatting errors); empty otherwise.
	Error string `json:"error,omitempty"`

	// Papers holds the per-paper subtasks, populated by the formatting stage.
	Papers []PaperSubTask `json:"papers,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DeriveTaskStatus rolls subtask statuses up into a task status. The
// mapping is pure: same inputs always yield the same output (prd005-tasks
// R3.1). A task with any subtask still before search is searching_papers;
// a task with all subtasks past search but not all terminal is
// analyzing_papers; a fully terminal task is completed unless every
// subtask failed, in which case it is failed (R3.3).
//
// Callers must not invoke this before formatting has produced subtasks.
func DeriveTaskStatus(papers []PaperSubTask) TaskStatus {
	searching := 0
	analyzing := 0
	completed := 0
	for _, p := range papers {
		switch p.Status {
		case PaperPending, PaperSearching:
			searching++
		case PaperSearchCompleted, PaperAnalyzing:
			analyzing++
		case PaperCompleted:
			completed++
		}
	}

	if searching > 0 {
		return TaskSearching
	}
	if analyzing > 0 {
		return TaskAnalyzing
	}
	if completed > 0 {
		return TaskCompleted
	}
	return TaskFailed
}

// RollUp recomputes the task status from its subtasks and stamps
// CompletedAt on the transition into a terminal state. No-op for tasks
// that have not been formatted yet or already failed at the task level.
func (t *Task) RollUp(now time.Time) {
	if len(t.Papers) == 0 || t.Status.Terminal() {
		return
	}
	t.Status = DeriveTaskStatus(t.Papers)
	t.UpdatedAt = now
	if t.Status.Terminal() && t.CompletedAt == nil {
		done := now
		t.CompletedAt = &done
	}
}

// ProgressSummary is the per-task progress roll-up returned by the API.
type ProgressSummary struct {
	Total     int     `json:"total"`
	Completed int     `json:"completed"`
	Failed    int     `json:"failed"`
	Pending   int     `json:"pending"`
	Percent   float64 `json:"percent"`
}

// Progress counts subtasks by outcome. Percent is the share of subtasks
// in a terminal state, 0 for tasks with no subtasks yet.
func (t Task) Progress() ProgressSummary {
	p := ProgressSummary{Total: len(t.Papers)}
	for _, sub := range t.Papers {
		switch sub.Status {
		case PaperCompleted:
			p.Completed++
		case PaperFailed:
			p.Failed++
		default:
			p.Pending++
		}
	}
	if p.Total > 0 {
		p.Percent = float64(p.Completed+p.Failed) / float64(p.Total) * 100
	}
	return p
}

// LogLevel classifies a task log entry.
type LogLevel string

const (
	LogInfo    LogLevel = "info"
	LogWarning LogLevel = "warning"
	LogError   LogLevel = "error"
)

// LogEntry is one append-only record in a task's execution log.
// Per prd005-tasks R4.1.
type LogEntry struct {
	// TaskID is the owning task.
	TaskID string `json:"task_id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Stage names the pipeline stage that emitted the entry
	// (e.g. "FORMAT_INPUT", "SEARCH_PAPERS", "ANALYZE_PAPERS").
	Stage string `json:"stage"`

	// Level is the entry severity.
	Level LogLevel `json:"level"`

	// Message is the human-readable event description.
	Message string `json:"message"`

	// Data carries optional structured detail (paper title, key, error).
	Data map[string]any `json:"data,omitempty"`
}

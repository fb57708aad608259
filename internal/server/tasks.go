// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pdiddy/paperdex/internal/taskstore"
	"github.com/pdiddy/paperdex/pkg/types"
)

// createTaskRequest is the POST /api/tasks/ body.
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	InputText   string `json:"input_text"`
}

// taskResponse is a task plus its progress roll-up.
type taskResponse struct {
	types.Task
	Progress types.ProgressSummary `json:"progress"`
}

func newTaskResponse(task types.Task) taskResponse {
	return taskResponse{Task: task, Progress: task.Progress()}
}

// createTask stores a new pending task. The scheduler picks it up on
// its next tick; nothing runs inline with the request.
func (s *Server) createTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.abortError(c, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if strings.TrimSpace(req.InputText) == "" {
		s.abortError(c, http.StatusBadRequest, "input_text is required", nil)
		return
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = "Untitled task"
	}

	now := time.Now().UTC()
	task := types.Task{
		ID:          uuid.NewString(),
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		InputText:   req.InputText,
		Status:      types.TaskPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Create(c.Request.Context(), &task); err != nil {
		s.abortError(c, http.StatusInternalServerError, "creating task", err)
		return
	}

	if err := s.store.AppendLog(c.Request.Context(), types.LogEntry{
		TaskID:    task.ID,
		Timestamp: now,
		Stage:     "INIT",
		Level:     types.LogInfo,
		Message:   "task created",
	}); err != nil {
		s.log.Warn("appending creation log", zap.Error(err))
	}

	s.log.Info("task created", zap.String("task", task.ID), zap.String("title", title))
	c.JSON(http.StatusCreated, newTaskResponse(task))
}

// listTasks returns all tasks, newest first.
func (s *Server) listTasks(c *gin.Context) {
	tasks, err := s.store.List(c.Request.Context())
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, "listing tasks", err)
		return
	}

	responses := make([]taskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = newTaskResponse(task)
	}
	c.JSON(http.StatusOK, gin.H{"tasks": responses, "total": len(responses)})
}

// getTask returns one task by ID.
func (s *Server) getTask(c *gin.Context) {
	task, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskstore.ErrTaskNotFound) {
		s.abortError(c, http.StatusNotFound, "task not found", nil)
		return
	}
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, "loading task", err)
		return
	}
	c.JSON(http.StatusOK, newTaskResponse(*task))
}

// taskLogs returns a task's execution log in append order.
func (s *Server) taskLogs(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.store.Get(c.Request.Context(), id); err != nil {
		if errors.Is(err, taskstore.ErrTaskNotFound) {
			s.abortError(c, http.StatusNotFound, "task not found", nil)
			return
		}
		s.abortError(c, http.StatusInternalServerError, "loading task", err)
		return
	}

	logs, err := s.store.Logs(c.Request.Context(), id)
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, "loading task logs", err)
		return
	}
	if logs == nil {
		logs = []types.LogEntry{}
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "total": len(logs)})
}

// deleteTask removes a task and its logs. Results from any still-running
// stage work for this task are discarded by the scheduler.
func (s *Server) deleteTask(c *gin.Context) {
	err := s.store.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, taskstore.ErrTaskNotFound) {
		s.abortError(c, http.StatusNotFound, "task not found", nil)
		return
	}
	if err != nil {
		s.abortError(c, http.StatusInternalServerError, "deleting task", err)
		return
	}
	c.Status(http.StatusNoContent)
}

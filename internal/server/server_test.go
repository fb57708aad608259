// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperdex/internal/cache"
	"github.com/pdiddy/paperdex/internal/taskstore"
	"github.com/pdiddy/paperdex/pkg/types"
)

func newTestServer(t *testing.T) (*Server, *cache.Store, *taskstore.Store) {
	t.Helper()
	paperCache, err := cache.Open(filepath.Join(t.TempDir(), "papers.json"), nil)
	require.NoError(t, err)

	store, err := taskstore.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(types.ServerConfig{Host: "127.0.0.1", Port: 0}, paperCache, store, nil), paperCache, store
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func seedPaper(t *testing.T, paperCache *cache.Store, key, title, arxivID string, withSummary bool) types.CacheEntry {
	t.Helper()
	entry := types.CacheEntry{
		Key:         key,
		Paper:       types.ResolvedPaper{Title: title, ArxivID: arxivID, Source: "arxiv"},
		CollectedAt: time.Date(2026, 3, 5, 9, 30, 0, 0, time.UTC),
	}
	if withSummary {
		entry.Summary = &types.SummaryRecord{PaperKey: key, Markdown: "## Overview\nFine.", Model: "m"}
	}
	require.NoError(t, paperCache.Put(entry))
	got, ok := paperCache.Get(key)
	require.True(t, ok)
	return got
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListPapersOnlyComplete(t *testing.T) {
	s, paperCache, _ := newTestServer(t)
	seedPaper(t, paperCache, "2302.04761", "Toolformer", "2302.04761", true)
	seedPaper(t, paperCache, "2210.03629", "ReAct", "2210.03629", false)

	rec := doRequest(t, s, http.MethodGet, "/api/papers/", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Papers []paperItem `json:"papers"`
		Total  int         `json:"total"`
	}
	decode(t, rec, &resp)
	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "2302.04761", resp.Papers[0].Key)
	assert.Equal(t, "[2302.04761] Toolformer | 03/05 09:30", resp.Papers[0].DisplayTitle)
	assert.True(t, resp.Papers[0].HasSummary)
}

func TestListPapersKeywordFilter(t *testing.T) {
	s, paperCache, _ := newTestServer(t)
	seedPaper(t, paperCache, "2302.04761", "Toolformer", "2302.04761", true)
	seedPaper(t, paperCache, "2210.03629", "ReAct", "2210.03629", true)

	rec := doRequest(t, s, http.MethodGet, "/api/papers/?q=tool", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Papers []paperItem `json:"papers"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Papers, 1)
	assert.Equal(t, "Toolformer", resp.Papers[0].Title)
}

func TestGetPaperDetail(t *testing.T) {
	s, paperCache, _ := newTestServer(t)
	seedPaper(t, paperCache, "2302.04761", "Toolformer", "2302.04761", true)

	rec := doRequest(t, s, http.MethodGet, "/api/papers/2302.04761", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail paperDetail
	decode(t, rec, &detail)
	assert.Equal(t, "Toolformer", detail.Paper.Title)
	require.NotNil(t, detail.Summary)
	assert.Contains(t, detail.Summary.Markdown, "## Overview")
}

func TestGetPaperMissing(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/papers/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPaperByTitle(t *testing.T) {
	s, paperCache, _ := newTestServer(t)
	entry := seedPaper(t, paperCache, "2302.04761", "Toolformer", "2302.04761", true)

	rec := doRequest(t, s, http.MethodGet,
		"/api/papers/by-title?display_title="+url.QueryEscape(entry.DisplayTitle()), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var detail paperDetail
	decode(t, rec, &detail)
	assert.Equal(t, "2302.04761", detail.Key)

	rec = doRequest(t, s, http.MethodGet, "/api/papers/by-title?display_title=unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/papers/by-title", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshPapers(t *testing.T) {
	s, paperCache, _ := newTestServer(t)
	seedPaper(t, paperCache, "2302.04761", "Toolformer", "2302.04761", true)

	rec := doRequest(t, s, http.MethodGet, "/api/papers/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]int
	decode(t, rec, &resp)
	assert.Equal(t, 1, resp["papers"])
}

func TestCreateTask(t *testing.T) {
	s, _, store := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/tasks/", createTaskRequest{
		Title:     "meeting papers",
		InputText: "- Toolformer\n- ReAct",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp taskResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, types.TaskPending, resp.Status)
	assert.Equal(t, 0, resp.Progress.Total)

	stored, err := store.Get(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "meeting papers", stored.Title)

	logs, err := store.Logs(context.Background(), resp.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "INIT", logs[0].Stage)
}

func TestCreateTaskValidation(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/tasks/", createTaskRequest{Title: "empty"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/", bytes.NewReader([]byte("{not json")))
	rec2 := httptest.NewRecorder()
	s.Router().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusBadRequest, rec2.Code)
}

func TestGetTaskAndProgress(t *testing.T) {
	s, _, store := newTestServer(t)

	now := time.Now().UTC()
	task := types.Task{
		ID: uuid.NewString(), Title: "t", InputText: "x",
		Status: types.TaskAnalyzing,
		Papers: []types.PaperSubTask{
			{Title: "A", Status: types.PaperCompleted},
			{Title: "B", Status: types.PaperAnalyzing},
		},
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Create(context.Background(), &task))

	rec := doRequest(t, s, http.MethodGet, "/api/tasks/"+task.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp taskResponse
	decode(t, rec, &resp)
	assert.Equal(t, 2, resp.Progress.Total)
	assert.Equal(t, 1, resp.Progress.Completed)
	assert.InDelta(t, 50.0, resp.Progress.Percent, 1e-9)
}

func TestGetTaskMissing(t *testing.T) {
	s, _, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/tasks/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTaskLogs(t *testing.T) {
	s, _, store := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/tasks/", createTaskRequest{InputText: "- Toolformer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created taskResponse
	decode(t, rec, &created)

	require.NoError(t, store.AppendLog(context.Background(), types.LogEntry{
		TaskID: created.ID, Timestamp: time.Now(), Stage: "SEARCH_PAPERS",
		Level: types.LogInfo, Message: "searching for paper",
	}))

	rec = doRequest(t, s, http.MethodGet, "/api/tasks/"+created.ID+"/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Logs  []types.LogEntry `json:"logs"`
		Total int              `json:"total"`
	}
	decode(t, rec, &resp)
	require.Equal(t, 2, resp.Total)
	assert.Equal(t, "INIT", resp.Logs[0].Stage)
	assert.Equal(t, "SEARCH_PAPERS", resp.Logs[1].Stage)

	rec = doRequest(t, s, http.MethodGet, "/api/tasks/"+uuid.NewString()+"/logs", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTask(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/tasks/", createTaskRequest{InputText: "- Toolformer"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created taskResponse
	decode(t, rec, &created)

	rec = doRequest(t, s, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/tasks/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

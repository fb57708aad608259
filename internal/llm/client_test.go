// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperdex/internal/httputil"
	"github.com/pdiddy/paperdex/pkg/types"
)

func testProfile(baseURL string) types.LLMProfile {
	return types.LLMProfile{
		BaseURL:   baseURL,
		APIKey:    "test-key",
		Model:     "test/model-1",
		MaxTokens: 1024,
		Cost:      types.LLMCost{Input: 1.0, Output: 4.0},
	}
}

func TestCompleteSuccess(t *testing.T) {
	var gotReq chatRequest
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := chatResponse{
			Choices: []chatChoice{{Message: Message{Role: "assistant", Content: `{"ok":true}`}}},
			Usage:   Usage{PromptTokens: 120, CompletionTokens: 30},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(testProfile(server.URL), 5*time.Second)
	result, err := client.Complete(context.Background(), []Message{
		{Role: "system", Content: "be terse"},
		{Role: "user", Content: "hello"},
	}, true)

	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, result.Content)
	assert.Equal(t, 120, result.Usage.PromptTokens)
	assert.Equal(t, 30, result.Usage.CompletionTokens)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "test/model-1", gotReq.Model)
	assert.Len(t, gotReq.Messages, 2)
	require.NotNil(t, gotReq.ResponseFormat)
	assert.Equal(t, "json_object", gotReq.ResponseFormat.Type)
}

func TestCompleteOmitsResponseFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Nil(t, req.ResponseFormat)

		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: Message{Content: "plain text"}}},
		})
	}))
	defer server.Close()

	client := NewClient(testProfile(server.URL), 5*time.Second)
	result, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)

	require.NoError(t, err)
	assert.Equal(t, "plain text", result.Content)
}

func TestCompleteHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"model overloaded"}}`, http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(testProfile(server.URL), 5*time.Second)
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestCompleteRetriesOn429(t *testing.T) {
	old := httputil.RetryBaseDelay
	httputil.RetryBaseDelay = time.Millisecond
	defer func() { httputil.RetryBaseDelay = old }()

	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: Message{Content: "finally"}}},
		})
	}))
	defer server.Close()

	client := NewClient(testProfile(server.URL), 5*time.Second)
	result, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)

	require.NoError(t, err)
	assert.Equal(t, "finally", result.Content)
	assert.Equal(t, 3, attempts)
}

func TestCompleteEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(chatResponse{})
	}))
	defer server.Close()

	client := NewClient(testProfile(server.URL), 5*time.Second)
	_, err := client.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}, false)

	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no choices"))
}

func TestCostUSD(t *testing.T) {
	profile := types.LLMProfile{Cost: types.LLMCost{Input: 3.0, Output: 15.0}}
	got := CostUSD(profile, Usage{PromptTokens: 1_000_000, CompletionTokens: 200_000})
	assert.InDelta(t, 3.0+3.0, got, 1e-9)
}

func TestUsageTracker(t *testing.T) {
	tracker := NewUsageTracker()
	profile := types.LLMProfile{Model: "m1", Cost: types.LLMCost{Input: 1.0, Output: 2.0}}

	tracker.Record(profile, Usage{PromptTokens: 500_000, CompletionTokens: 250_000})
	tracker.Record(profile, Usage{PromptTokens: 500_000, CompletionTokens: 250_000})

	snap := tracker.Snapshot()
	require.Contains(t, snap, "m1")
	assert.Equal(t, 2, snap["m1"].Calls)
	assert.Equal(t, 1_000_000, snap["m1"].PromptTokens)
	assert.InDelta(t, 1.0+1.0, tracker.Total(), 1e-9)

	var b strings.Builder
	tracker.Report(&b)
	assert.Contains(t, b.String(), "m1")
	assert.Contains(t, b.String(), "Total:")
}

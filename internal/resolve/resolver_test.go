// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paperdex/internal/cache"
	"github.com/pdiddy/paperdex/internal/llm"
	"github.com/pdiddy/paperdex/internal/search"
	"github.com/pdiddy/paperdex/pkg/types"
)

type stubBackend struct {
	candidates []types.Candidate
	err        error
	calls      int
}

func (s *stubBackend) Name() string { return "stub" }

func (s *stubBackend) Search(_ context.Context, _ string, _ types.SearchConfig) ([]types.Candidate, error) {
	s.calls++
	return s.candidates, s.err
}

type fakeInvoker struct {
	reply string
	err   error
	calls int
}

func (f *fakeInvoker) Complete(_ context.Context, _ []llm.Message, _ bool) (llm.Result, error) {
	f.calls++
	if f.err != nil {
		return llm.Result{}, f.err
	}
	return llm.Result{Content: f.reply, Usage: llm.Usage{PromptTokens: 50, CompletionTokens: 5}}, nil
}

func newTestCache(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "papers.json"), nil)
	require.NoError(t, err)
	return s
}

func toolformerCandidates() []types.Candidate {
	return []types.Candidate{
		{Title: "Toolformer: Language Models Can Teach Themselves to Use Tools", ArxivID: "2302.04761", PDFURL: "https://arxiv.org/pdf/2302.04761", Source: "arxiv", RelevanceScore: 1.0},
		{Title: "Tool Learning Survey", Source: "openalex", RelevanceScore: 0.5},
	}
}

func TestResolveExactMatchSkipsLLM(t *testing.T) {
	backend := &stubBackend{candidates: toolformerCandidates()}
	inv := &fakeInvoker{}
	r := New([]search.Backend{backend}, types.SearchConfig{}, inv, newTestCache(t))

	paper, err := r.Resolve(context.Background(), types.PaperStub{Title: "Toolformer: Language Models Can Teach Themselves to Use Tools"})
	require.NoError(t, err)

	assert.Equal(t, "2302.04761", paper.ArxivID)
	assert.Equal(t, "https://arxiv.org/pdf/2302.04761", paper.PDFURL)
	assert.Equal(t, 0, inv.calls, "exact match must not call the model")
	assert.False(t, paper.ResolvedAt.IsZero())
}

func TestResolveLLMSelection(t *testing.T) {
	backend := &stubBackend{candidates: []types.Candidate{
		{Title: "Some Other Work", Source: "openalex"},
		{Title: "Toolformer (Schick et al.)", ArxivID: "2302.04761", PDFURL: "https://arxiv.org/pdf/2302.04761", Source: "arxiv"},
	}}
	inv := &fakeInvoker{reply: `{"best_match_index": 2}`}
	r := New([]search.Backend{backend}, types.SearchConfig{}, inv, newTestCache(t))

	paper, err := r.Resolve(context.Background(), types.PaperStub{Title: "Toolformer"})
	require.NoError(t, err)

	assert.Equal(t, 1, inv.calls)
	assert.Equal(t, "2302.04761", paper.ArxivID)
	assert.Equal(t, "Toolformer", paper.SourceTitle)
}

func TestResolveNoMatch(t *testing.T) {
	backend := &stubBackend{candidates: []types.Candidate{{Title: "Unrelated", Source: "arxiv"}}}
	inv := &fakeInvoker{reply: `{"best_match_index": 0}`}
	r := New([]search.Backend{backend}, types.SearchConfig{}, inv, newTestCache(t))

	_, err := r.Resolve(context.Background(), types.PaperStub{Title: "A Paper That Does Not Exist"})

	var nferr *NotFoundError
	require.ErrorAs(t, err, &nferr)
	assert.Equal(t, "A Paper That Does Not Exist", nferr.Title)
}

func TestResolveNoResults(t *testing.T) {
	r := New([]search.Backend{&stubBackend{}}, types.SearchConfig{}, &fakeInvoker{}, newTestCache(t))

	_, err := r.Resolve(context.Background(), types.PaperStub{Title: "Ghost Paper"})

	var nferr *NotFoundError
	assert.ErrorAs(t, err, &nferr)
}

func TestResolveTransientSearchFailure(t *testing.T) {
	backend := &stubBackend{err: errors.New("connection reset")}
	r := New([]search.Backend{backend}, types.SearchConfig{}, &fakeInvoker{}, newTestCache(t))

	_, err := r.Resolve(context.Background(), types.PaperStub{Title: "Any"})
	require.Error(t, err)

	var nferr *NotFoundError
	assert.False(t, errors.As(err, &nferr), "transient failure must not classify as not-found")
}

func TestResolveCacheHitSkipsSearch(t *testing.T) {
	store := newTestCache(t)
	paper := types.ResolvedPaper{Title: "Toolformer", ArxivID: "2302.04761", ResolvedAt: time.Now()}
	require.NoError(t, store.Put(types.CacheEntry{Key: "2302.04761", Paper: paper}, TitleKey("Toolformer")))

	backend := &stubBackend{candidates: toolformerCandidates()}
	inv := &fakeInvoker{}
	r := New([]search.Backend{backend}, types.SearchConfig{}, inv, store)

	got, err := r.Resolve(context.Background(), types.PaperStub{Title: "toolformer!!"})
	require.NoError(t, err)

	assert.Equal(t, "2302.04761", got.ArxivID)
	assert.Equal(t, 0, backend.calls, "cache hit must not search")
	assert.Equal(t, 0, inv.calls, "cache hit must not call the model")
}

func TestResolveFromURL(t *testing.T) {
	r := New(nil, types.SearchConfig{}, &fakeInvoker{}, nil)

	tests := []struct {
		name        string
		stub        types.PaperStub
		wantArxivID string
		wantPDFURL  string
	}{
		{
			name:        "arxiv abstract link",
			stub:        types.PaperStub{Title: "Toolformer", URL: "https://arxiv.org/abs/2302.04761v2"},
			wantArxivID: "2302.04761",
			wantPDFURL:  "https://arxiv.org/pdf/2302.04761",
		},
		{
			name:       "direct pdf link",
			stub:       types.PaperStub{Title: "Some Paper", URL: "https://proceedings.mlr.press/p.pdf"},
			wantPDFURL: "https://proceedings.mlr.press/p.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paper, err := r.Resolve(context.Background(), tt.stub)
			require.NoError(t, err)
			assert.Equal(t, tt.wantArxivID, paper.ArxivID)
			assert.Equal(t, tt.wantPDFURL, paper.PDFURL)
			assert.Equal(t, "url", paper.Source)
		})
	}
}

func TestResolveSelectionIndexOutOfRange(t *testing.T) {
	backend := &stubBackend{candidates: []types.Candidate{{Title: "Only One", Source: "arxiv"}}}
	inv := &fakeInvoker{reply: `{"best_match_index": 7}`}
	r := New([]search.Backend{backend}, types.SearchConfig{}, inv, newTestCache(t))

	_, err := r.Resolve(context.Background(), types.PaperStub{Title: "Only One Different"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}

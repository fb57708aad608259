// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scheduler drives tasks through the pipeline: formatting fans a
// task out into per-paper subtasks, search resolves each paper, analysis
// summarizes it. A timer fires Tick on an interval; each tick dispatches
// whatever work is ready, bounded by per-stage concurrency limits. Tick
// is safe to call directly, which is how tests drive the pipeline.
// Implements: prd005-tasks (R1-R6); docs/ARCHITECTURE § Scheduler.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/pdiddy/paperdex/internal/cache"
	"github.com/pdiddy/paperdex/internal/resolve"
	"github.com/pdiddy/paperdex/internal/taskstore"
	"github.com/pdiddy/paperdex/pkg/types"
)

// Log stage names recorded in task logs.
const (
	StageInit    = "INIT"
	StageFormat  = "FORMAT_INPUT"
	StageSearch  = "SEARCH_PAPERS"
	StageAnalyze = "ANALYZE_PAPERS"
)

// InputFormatter turns raw task input into paper stubs.
type InputFormatter interface {
	Format(ctx context.Context, raw string) ([]types.PaperStub, error)
}

// PaperResolver matches one stub to a concrete paper.
type PaperResolver interface {
	Resolve(ctx context.Context, stub types.PaperStub) (types.ResolvedPaper, error)
}

// SummaryGenerator produces and persists one paper summary.
type SummaryGenerator interface {
	Summarize(ctx context.Context, key string, paper types.ResolvedPaper) (types.SummaryRecord, error)
	WriteArtifact(paper types.ResolvedPaper, record types.SummaryRecord) (string, error)
}

// Scheduler owns all task mutations. The HTTP layer only creates,
// reads, and deletes tasks; every status change goes through here.
type Scheduler struct {
	store     *taskstore.Store
	cache     *cache.Store
	formatter InputFormatter
	resolver  PaperResolver
	generator SummaryGenerator
	cfg       types.SchedulerConfig
	log       *zap.Logger

	searchSem   *semaphore.Weighted
	analysisSem *semaphore.Weighted

	cron *cron.Cron
	wg   sync.WaitGroup

	// mu serializes task load-modify-store cycles.
	mu sync.Mutex

	// infMu guards inflight, the set of dispatched work units
	// (task ID for formatting, task ID + subtask index otherwise).
	infMu    sync.Mutex
	inflight map[string]bool

	// now is overridable for tests.
	now func() time.Time
}

// New builds a scheduler. All dependencies are required except log,
// which defaults to a no-op logger.
func New(store *taskstore.Store, paperCache *cache.Store, formatter InputFormatter, resolver PaperResolver, generator SummaryGenerator, cfg types.SchedulerConfig, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	maxSearch := int64(cfg.MaxSearch)
	if maxSearch <= 0 {
		maxSearch = 3
	}
	maxAnalysis := int64(cfg.MaxAnalysis)
	if maxAnalysis <= 0 {
		maxAnalysis = 2
	}
	return &Scheduler{
		store:       store,
		cache:       paperCache,
		formatter:   formatter,
		resolver:    resolver,
		generator:   generator,
		cfg:         cfg,
		log:         log,
		searchSem:   semaphore.NewWeighted(maxSearch),
		analysisSem: semaphore.NewWeighted(maxAnalysis),
		inflight:    make(map[string]bool),
		now:         time.Now,
	}
}

// Start rewinds work orphaned by a previous crash, then begins ticking
// on the configured interval (R6.3, R5.1).
func (s *Scheduler) Start(ctx context.Context) error {
	reset, err := s.store.ResetInFlight(ctx, s.now())
	if err != nil {
		return fmt.Errorf("resetting in-flight tasks: %w", err)
	}
	if reset > 0 {
		s.log.Info("recovered in-flight tasks", zap.Int("tasks", reset))
	}

	interval := s.cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	s.cron = cron.New()
	_, err = s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.Tick(context.Background())
	})
	if err != nil {
		return fmt.Errorf("registering tick: %w", err)
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.Duration("interval", interval))
	return nil
}

// Stop halts the timer and waits for dispatched work to drain, up to the
// context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight work: %w", ctx.Err())
	}
}

// Tick scans all tasks and dispatches whatever work is ready. Work
// already dispatched is never dispatched twice: a subtask in searching
// or analyzing state is owned by exactly one goroutine (R5.2).
func (s *Scheduler) Tick(ctx context.Context) {
	tasks, err := s.store.List(ctx)
	if err != nil {
		s.log.Error("listing tasks", zap.Error(err))
		return
	}

	for i := range tasks {
		task := &tasks[i]
		if task.Status.Terminal() {
			continue
		}

		switch {
		case task.Status == types.TaskPending:
			s.dispatchFormat(ctx, task)
		case len(task.Papers) > 0:
			s.dispatchPapers(ctx, task)
		}
	}
}

// dispatchFormat claims a pending task and starts the formatting stage.
func (s *Scheduler) dispatchFormat(ctx context.Context, task *types.Task) {
	if !s.claim(task.ID) {
		return
	}

	updated, err := s.transition(ctx, task.ID, func(t *types.Task) bool {
		if t.Status != types.TaskPending {
			return false
		}
		t.Status = types.TaskFormatting
		return true
	})
	if err != nil || updated.Status != types.TaskFormatting {
		s.release(task.ID)
		return
	}

	s.taskLog(ctx, task.ID, StageFormat, types.LogInfo, "formatting input text", nil)

	s.wg.Add(1)
	go s.runFormat(task.ID, updated.InputText)
}

// dispatchPapers walks a formatted task's subtasks and dispatches the
// ready ones, respecting the per-stage semaphores.
func (s *Scheduler) dispatchPapers(ctx context.Context, task *types.Task) {
	for idx := range task.Papers {
		sub := task.Papers[idx]
		switch sub.Status {
		case types.PaperPending:
			if s.resolveFromCache(ctx, task.ID, idx, sub) {
				continue
			}
			s.dispatchSearch(ctx, task.ID, idx, sub)
		case types.PaperSearchCompleted:
			if s.summaryFromCache(ctx, task.ID, idx, sub) {
				continue
			}
			s.dispatchAnalysis(ctx, task.ID, idx, sub)
		}
	}
}

// resolveFromCache completes a pending subtask straight from the cache
// when the title is already known. A full hit (paper plus summary) jumps
// directly to completed; a metadata-only hit skips just the search
// (R1.2, prd001-cache R2.1).
func (s *Scheduler) resolveFromCache(ctx context.Context, taskID string, idx int, sub types.PaperSubTask) bool {
	if s.cache == nil {
		return false
	}
	entry, ok := s.cache.Get(resolve.TitleKey(sub.Title))
	if !ok {
		return false
	}

	complete := entry.Complete()
	_, err := s.transition(ctx, taskID, func(t *types.Task) bool {
		if idx >= len(t.Papers) || t.Papers[idx].Status != types.PaperPending {
			return false
		}
		paper := entry.Paper
		t.Papers[idx].Paper = &paper
		t.Papers[idx].PaperKey = entry.Key
		if complete {
			t.Papers[idx].Status = types.PaperCompleted
		} else {
			t.Papers[idx].Status = types.PaperSearchCompleted
		}
		t.Papers[idx].UpdatedAt = s.now()
		return true
	})
	if err != nil {
		return false
	}

	msg := "cache hit: paper already resolved"
	if complete {
		msg = "cache hit: paper already summarized"
	}
	s.taskLog(ctx, taskID, StageSearch, types.LogInfo, msg, map[string]any{
		"title": sub.Title, "key": entry.Key,
	})
	return true
}

// summaryFromCache completes a search_completed subtask when another
// task already summarized the same paper.
func (s *Scheduler) summaryFromCache(ctx context.Context, taskID string, idx int, sub types.PaperSubTask) bool {
	if s.cache == nil || sub.PaperKey == "" {
		return false
	}
	entry, ok := s.cache.Get(sub.PaperKey)
	if !ok || !entry.Complete() {
		return false
	}

	_, err := s.transition(ctx, taskID, func(t *types.Task) bool {
		if idx >= len(t.Papers) || t.Papers[idx].Status != types.PaperSearchCompleted {
			return false
		}
		t.Papers[idx].Status = types.PaperCompleted
		t.Papers[idx].UpdatedAt = s.now()
		return true
	})
	if err != nil {
		return false
	}

	s.taskLog(ctx, taskID, StageAnalyze, types.LogInfo, "cache hit: summary already generated", map[string]any{
		"title": sub.Title, "key": sub.PaperKey,
	})
	return true
}

// dispatchSearch claims one pending subtask and starts resolution.
func (s *Scheduler) dispatchSearch(ctx context.Context, taskID string, idx int, sub types.PaperSubTask) {
	unit := subKey(taskID, idx)
	if !s.claim(unit) {
		return
	}
	if !s.searchSem.TryAcquire(1) {
		s.release(unit)
		return
	}

	claimed := s.markSubtask(ctx, taskID, idx, types.PaperPending, types.PaperSearching)
	if !claimed {
		s.searchSem.Release(1)
		s.release(unit)
		return
	}

	s.taskLog(ctx, taskID, StageSearch, types.LogInfo, "searching for paper", map[string]any{"title": sub.Title})

	s.wg.Add(1)
	go s.runSearch(taskID, idx, types.PaperStub{Title: sub.Title, URL: sub.URL})
}

// dispatchAnalysis claims one search_completed subtask and starts
// summary generation.
func (s *Scheduler) dispatchAnalysis(ctx context.Context, taskID string, idx int, sub types.PaperSubTask) {
	if sub.Paper == nil {
		return
	}
	unit := subKey(taskID, idx)
	if !s.claim(unit) {
		return
	}
	if !s.analysisSem.TryAcquire(1) {
		s.release(unit)
		return
	}

	claimed := s.markSubtask(ctx, taskID, idx, types.PaperSearchCompleted, types.PaperAnalyzing)
	if !claimed {
		s.analysisSem.Release(1)
		s.release(unit)
		return
	}

	s.taskLog(ctx, taskID, StageAnalyze, types.LogInfo, "generating summary", map[string]any{
		"title": sub.Paper.Title, "key": sub.PaperKey,
	})

	s.wg.Add(1)
	go s.runAnalysis(taskID, idx, sub.PaperKey, *sub.Paper)
}

// runFormat executes the formatting stage for one task.
func (s *Scheduler) runFormat(taskID, inputText string) {
	defer s.wg.Done()
	defer s.release(taskID)

	stage, cancel := s.stageContext()
	defer cancel()
	// Persistence outlives the stage deadline: a timed-out stage must
	// still land as a recorded failure (R2.4).
	ctx := context.WithoutCancel(stage)

	stubs, err := s.formatter.Format(stage, inputText)
	if err != nil {
		s.failTask(ctx, taskID, err)
		return
	}

	now := s.now()
	_, terr := s.transition(ctx, taskID, func(t *types.Task) bool {
		if t.Status != types.TaskFormatting {
			return false
		}
		t.Papers = make([]types.PaperSubTask, len(stubs))
		for i, stub := range stubs {
			t.Papers[i] = types.PaperSubTask{
				Title:     stub.Title,
				URL:       stub.URL,
				Status:    types.PaperPending,
				UpdatedAt: now,
			}
		}
		return true
	})
	if terr != nil {
		s.logDiscard(taskID, terr)
		return
	}

	s.taskLog(ctx, taskID, StageFormat, types.LogInfo,
		fmt.Sprintf("input formatted into %d papers", len(stubs)),
		map[string]any{"count": len(stubs)})
}

// runSearch executes resolution for one subtask.
func (s *Scheduler) runSearch(taskID string, idx int, stub types.PaperStub) {
	defer s.wg.Done()
	defer s.release(subKey(taskID, idx))
	defer s.searchSem.Release(1)

	stage, cancel := s.stageContext()
	defer cancel()
	ctx := context.WithoutCancel(stage)

	paper, err := s.resolver.Resolve(stage, stub)
	if err != nil {
		s.failSubtask(ctx, taskID, idx, StageSearch, err)
		return
	}

	key := resolve.PaperKey(paper)
	if s.cache != nil && !s.cache.Exists(key) {
		entry := types.CacheEntry{Key: key, Paper: paper, CollectedAt: s.now().UTC()}
		aliases := []string{resolve.TitleKey(stub.Title), resolve.TitleKey(paper.Title)}
		if err := s.cache.Put(entry, aliases...); err != nil {
			s.log.Error("caching resolved paper", zap.String("key", key), zap.Error(err))
		}
	}

	_, terr := s.transition(ctx, taskID, func(t *types.Task) bool {
		if idx >= len(t.Papers) || t.Papers[idx].Status != types.PaperSearching {
			return false
		}
		p := paper
		t.Papers[idx].Paper = &p
		t.Papers[idx].PaperKey = key
		t.Papers[idx].Status = types.PaperSearchCompleted
		t.Papers[idx].UpdatedAt = s.now()
		return true
	})
	if terr != nil {
		s.logDiscard(taskID, terr)
		return
	}

	s.taskLog(ctx, taskID, StageSearch, types.LogInfo, "paper resolved", map[string]any{
		"title": paper.Title, "key": key, "source": paper.Source,
	})
}

// runAnalysis executes summary generation for one subtask.
func (s *Scheduler) runAnalysis(taskID string, idx int, key string, paper types.ResolvedPaper) {
	defer s.wg.Done()
	defer s.release(subKey(taskID, idx))
	defer s.analysisSem.Release(1)

	stage, cancel := s.stageContext()
	defer cancel()
	ctx := context.WithoutCancel(stage)

	record, err := s.generator.Summarize(stage, key, paper)
	if err != nil {
		s.failSubtask(ctx, taskID, idx, StageAnalyze, err)
		return
	}

	if _, err := s.generator.WriteArtifact(paper, record); err != nil {
		s.log.Warn("writing summary artifact", zap.String("key", key), zap.Error(err))
		s.taskLog(ctx, taskID, StageAnalyze, types.LogWarning, "summary artifact not written", map[string]any{
			"key": key, "error": err.Error(),
		})
	}

	if s.cache != nil {
		entry := types.CacheEntry{Key: key, Paper: paper, Summary: &record, CollectedAt: s.now().UTC()}
		if err := s.cache.Put(entry, resolve.TitleKey(paper.Title)); err != nil {
			s.log.Error("caching summary", zap.String("key", key), zap.Error(err))
		}
	}

	_, terr := s.transition(ctx, taskID, func(t *types.Task) bool {
		if idx >= len(t.Papers) || t.Papers[idx].Status != types.PaperAnalyzing {
			return false
		}
		t.Papers[idx].Status = types.PaperCompleted
		t.Papers[idx].UpdatedAt = s.now()
		return true
	})
	if terr != nil {
		s.logDiscard(taskID, terr)
		return
	}

	s.taskLog(ctx, taskID, StageAnalyze, types.LogInfo, "summary generated", map[string]any{
		"title": paper.Title, "key": key, "cost_usd": record.CostUSD,
	})
}

// failTask marks a whole task failed (formatting failures only, R3.2).
func (s *Scheduler) failTask(ctx context.Context, taskID string, cause error) {
	_, terr := s.transition(ctx, taskID, func(t *types.Task) bool {
		if t.Status.Terminal() {
			return false
		}
		t.Status = types.TaskFailed
		t.Error = cause.Error()
		done := s.now()
		t.CompletedAt = &done
		return true
	})
	if terr != nil {
		s.logDiscard(taskID, terr)
		return
	}
	s.taskLog(ctx, taskID, StageFormat, types.LogError, "task failed", map[string]any{"error": cause.Error()})
}

// failSubtask marks one subtask failed; siblings keep running (R2.3).
func (s *Scheduler) failSubtask(ctx context.Context, taskID string, idx int, stage string, cause error) {
	var title string
	_, terr := s.transition(ctx, taskID, func(t *types.Task) bool {
		if idx >= len(t.Papers) || t.Papers[idx].Status.Terminal() {
			return false
		}
		title = t.Papers[idx].Title
		t.Papers[idx].Status = types.PaperFailed
		t.Papers[idx].Error = cause.Error()
		t.Papers[idx].UpdatedAt = s.now()
		return true
	})
	if terr != nil {
		s.logDiscard(taskID, terr)
		return
	}
	s.taskLog(ctx, taskID, stage, types.LogError, "paper failed", map[string]any{
		"title": title, "error": cause.Error(),
	})
}

// transition runs one load-modify-store cycle under the mutation lock.
// fn returns false to abort without writing. The task status is rolled
// up from the subtasks before every store.
func (s *Scheduler) transition(ctx context.Context, taskID string, fn func(*types.Task) bool) (*types.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, err := s.store.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !fn(task) {
		return task, nil
	}
	task.UpdatedAt = s.now()
	task.RollUp(s.now())
	if err := s.store.Update(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// markSubtask flips one subtask from to want, reporting whether the
// claim succeeded.
func (s *Scheduler) markSubtask(ctx context.Context, taskID string, idx int, from, want types.PaperStatus) bool {
	claimed := false
	_, err := s.transition(ctx, taskID, func(t *types.Task) bool {
		if idx >= len(t.Papers) || t.Papers[idx].Status != from {
			return false
		}
		t.Papers[idx].Status = want
		t.Papers[idx].UpdatedAt = s.now()
		claimed = true
		return true
	})
	return err == nil && claimed
}

// taskLog appends to the task's execution log; failures are process-log
// noise, not task failures.
func (s *Scheduler) taskLog(ctx context.Context, taskID, stage string, level types.LogLevel, message string, data map[string]any) {
	err := s.store.AppendLog(ctx, types.LogEntry{
		TaskID:    taskID,
		Timestamp: s.now().UTC(),
		Stage:     stage,
		Level:     level,
		Message:   message,
		Data:      data,
	})
	if err != nil {
		s.log.Warn("appending task log", zap.String("task", taskID), zap.Error(err))
	}
}

// logDiscard records a result thrown away because the task vanished
// mid-flight (deleted through the API).
func (s *Scheduler) logDiscard(taskID string, err error) {
	if errors.Is(err, taskstore.ErrTaskNotFound) {
		s.log.Debug("discarding result for deleted task", zap.String("task", taskID))
		return
	}
	s.log.Error("persisting task transition", zap.String("task", taskID), zap.Error(err))
}

// stageContext bounds one stage attempt.
func (s *Scheduler) stageContext() (context.Context, context.CancelFunc) {
	timeout := s.cfg.StageTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return context.WithTimeout(context.Background(), timeout)
}

// claim reserves a work unit, returning false if it is already owned.
func (s *Scheduler) claim(unit string) bool {
	s.infMu.Lock()
	defer s.infMu.Unlock()
	if s.inflight[unit] {
		return false
	}
	s.inflight[unit] = true
	return true
}

// release frees a work unit.
func (s *Scheduler) release(unit string) {
	s.infMu.Lock()
	defer s.infMu.Unlock()
	delete(s.inflight, unit)
}

func subKey(taskID string, idx int) string {
	return fmt.Sprintf("%s/%d", taskID, idx)
}

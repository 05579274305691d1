package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type confirmationRecorder struct {
	mu       sync.Mutex
	requests []ConfirmationRequest
}

func (r *confirmationRecorder) record(req ConfirmationRequest) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
}

func (r *confirmationRecorder) all() []ConfirmationRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConfirmationRequest(nil), r.requests...)
}

func TestDispatch_UnknownAndInvalidAreRejected(t *testing.T) {
	tools := mockTools{
		"generate_cad": &mockTool{validate: func(args map[string]any) error {
			if _, ok := args["prompt"]; !ok {
				return errors.New("prompt is required")
			}
			return nil
		}},
	}
	s, ch := newTestSession(t, Config{Tools: tools})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{
		{ID: "1", Name: "launch_rocket"},
		{ID: "2", Name: "generate_cad", Args: map[string]any{}},
	}}

	require.Eventually(t, func() bool { return len(ch.responses()) == 1 }, waitFor, tick)
	batch := ch.responses()[0]
	require.Len(t, batch, 2)

	assert.Equal(t, ToolRejected, batch[0].Status)
	assert.Equal(t, "unknown tool: launch_rocket", batch[0].Result)
	assert.Equal(t, ToolRejected, batch[1].Status)
	assert.Contains(t, batch[1].Result, "prompt is required")
	assert.Equal(t, StateRunning, s.State())
}

func TestDispatch_LaunchesWithoutGate(t *testing.T) {
	// No confirmation callback means no gate, even for tools that ask for one.
	tools := mockTools{"run_web_agent": &mockTool{confirm: true, ack: "Web Navigation started."}}
	s, ch := newTestSession(t, Config{Tools: tools})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{{ID: "w", Name: "run_web_agent"}}}

	require.Eventually(t, func() bool { return len(ch.responses()) == 1 }, waitFor, tick)
	assert.Equal(t, ToolResponse{ID: "w", Name: "run_web_agent", Status: ToolStarted, Result: "Web Navigation started."}, ch.responses()[0][0])
}

func TestDispatch_BatchAnsweredOnceInOrder(t *testing.T) {
	var s *Session
	tools := mockTools{
		"first":  &mockTool{},
		"second": &mockTool{confirm: true},
		"third":  &mockTool{},
	}
	s, ch := newTestSession(t, Config{
		Tools: tools,
		Callbacks: Callbacks{OnToolConfirmationRequest: func(req ConfirmationRequest) {
			// The entry must already be registered when the request goes out.
			assert.True(t, s.ResolveConfirmation(req.ID, false))
		}},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{
		{ID: "c1", Name: "first"},
		{ID: "c2", Name: "second"},
		{ID: "c3", Name: "third"},
	}}

	require.Eventually(t, func() bool { return len(ch.responses()) == 1 }, waitFor, tick)
	time.Sleep(20 * time.Millisecond)
	require.Len(t, ch.responses(), 1, "one response per batch")

	batch := ch.responses()[0]
	require.Len(t, batch, 3)
	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{batch[0].ID, batch[1].ID, batch[2].ID})
	assert.Equal(t, ToolStarted, batch[0].Status)
	assert.Equal(t, ToolDenied, batch[1].Status)
	assert.Equal(t, deniedResult, batch[1].Result)
	assert.Equal(t, ToolStarted, batch[2].Status)
	assert.Equal(t, 0, s.pendingConfirmations())
}

func TestDispatch_ConcurrentConfirmationsKeepCallOrder(t *testing.T) {
	var s *Session
	rec := &confirmationRecorder{}
	tools := mockTools{"a": &mockTool{confirm: true}, "b": &mockTool{confirm: true}}
	s, ch := newTestSession(t, Config{
		Tools:     tools,
		Callbacks: Callbacks{OnToolConfirmationRequest: rec.record},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{{ID: "1", Name: "a"}, {ID: "2", Name: "b"}}}

	// Both requests are outstanding at once.
	require.Eventually(t, func() bool { return len(rec.all()) == 2 }, waitFor, tick)
	assert.Equal(t, 2, s.pendingConfirmations())

	reqs := rec.all()
	byTool := map[string]string{reqs[0].Tool: reqs[0].ID, reqs[1].Tool: reqs[1].ID}
	assert.True(t, s.ResolveConfirmation(byTool["b"], true))
	assert.True(t, s.ResolveConfirmation(byTool["a"], false))

	require.Eventually(t, func() bool { return len(ch.responses()) == 1 }, waitFor, tick)
	batch := ch.responses()[0]
	assert.Equal(t, ToolDenied, batch[0].Status)
	assert.Equal(t, ToolStarted, batch[1].Status)
}

func TestConfirmation_DoubleResolveFirstWins(t *testing.T) {
	var s *Session
	rec := &confirmationRecorder{}
	s, ch := newTestSession(t, Config{
		Tools:     mockTools{"generate_cad": &mockTool{confirm: true}},
		Callbacks: Callbacks{OnToolConfirmationRequest: rec.record},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{{ID: "x", Name: "generate_cad", Args: map[string]any{"prompt": "a cube"}}}}
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, tick)

	req := rec.all()[0]
	assert.Equal(t, "generate_cad", req.Tool)
	assert.Equal(t, "a cube", req.Args["prompt"])

	assert.True(t, s.ResolveConfirmation(req.ID, true))
	assert.False(t, s.ResolveConfirmation(req.ID, false))
	assert.False(t, s.ResolveConfirmation("unknown-id", true))

	require.Eventually(t, func() bool { return len(ch.responses()) == 1 }, waitFor, tick)
	assert.Equal(t, ToolStarted, ch.responses()[0][0].Status)
}

func TestConfirmation_TimeoutDenies(t *testing.T) {
	rec := &confirmationRecorder{}
	status := &statusRecorder{}
	s, ch := newTestSession(t, Config{
		Tools:               mockTools{"generate_cad": &mockTool{confirm: true}},
		ConfirmationTimeout: 30 * time.Millisecond,
		Callbacks: Callbacks{
			OnToolConfirmationRequest: rec.record,
			OnStatus:                  status.record,
		},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	before := s.pendingConfirmations()

	ch.events <- ToolCallBatch{Calls: []ToolCall{{ID: "x", Name: "generate_cad"}}}

	require.Eventually(t, func() bool { return len(ch.responses()) == 1 }, waitFor, tick)
	resp := ch.responses()[0][0]
	assert.Equal(t, ToolDenied, resp.Status)
	assert.Equal(t, deniedResult, resp.Result)
	assert.Equal(t, before, s.pendingConfirmations())
	assert.True(t, status.has(StatusWarning, StateRunning))

	// Late answers are ignored.
	assert.False(t, s.ResolveConfirmation(rec.all()[0].ID, true))
}

func TestConfirmation_StopDeniesPending(t *testing.T) {
	rec := &confirmationRecorder{}
	s, ch := newTestSession(t, Config{
		Tools:     mockTools{"generate_cad": &mockTool{confirm: true}},
		Callbacks: Callbacks{OnToolConfirmationRequest: rec.record},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{{ID: "x", Name: "generate_cad"}}}
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, waitFor, tick)

	done := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("stop blocked on a pending confirmation")
	}
	assert.Equal(t, 0, s.pendingConfirmations())
	assert.False(t, s.ResolveConfirmation(rec.all()[0].ID, true))
}

func TestBackground_ReportsCompletionAsNewTurn(t *testing.T) {
	var mu sync.Mutex
	var results []BackgroundResult
	tool := &mockTool{
		completion: "System Notification: CAD generation is complete",
		run: func(ctx context.Context, args map[string]any, progress func(Progress)) (string, error) {
			progress(Progress{Log: "writing script"})
			return "cube.stl", nil
		},
	}
	s, ch := newTestSession(t, Config{
		Tools: mockTools{"generate_cad": tool},
		Callbacks: Callbacks{OnBackgroundResult: func(r BackgroundResult) {
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
		}},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{{ID: "x", Name: "generate_cad"}}}

	want := "System Notification: CAD generation is complete: cube.stl"
	require.Eventually(t, func() bool {
		texts := ch.sentTexts()
		return len(texts) == 1 && texts[0] == want
	}, waitFor, tick)
	assert.True(t, ch.sentFrames()[0].EndOfTurn)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 2)
	require.NotNil(t, results[0].Progress)
	assert.Equal(t, "writing script", results[0].Progress.Log)
	assert.True(t, results[1].Done)
	assert.Equal(t, "cube.stl", results[1].Result)
	assert.NoError(t, results[1].Err)
}

func TestBackground_FailureAndPanicAreContained(t *testing.T) {
	tools := mockTools{
		"fails": &mockTool{run: func(ctx context.Context, args map[string]any, progress func(Progress)) (string, error) {
			return "", errors.New("subsystem down")
		}},
		"panics": &mockTool{run: func(ctx context.Context, args map[string]any, progress func(Progress)) (string, error) {
			panic("boom")
		}},
	}
	s, ch := newTestSession(t, Config{Tools: tools})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{{ID: "1", Name: "fails"}, {ID: "2", Name: "panics"}}}

	require.Eventually(t, func() bool { return len(ch.sentTexts()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"failed", "failed"}, ch.sentTexts())
	assert.Equal(t, StateRunning, s.State())
}

func TestBackground_StopDoesNotWaitAndDropsLateReport(t *testing.T) {
	release := make(chan struct{})
	finished := make(chan struct{})
	var mu sync.Mutex
	var late []BackgroundResult

	tool := &mockTool{
		completion: "System Notification: Web Agent has finished",
		run: func(ctx context.Context, args map[string]any, progress func(Progress)) (string, error) {
			defer close(finished)
			<-release
			progress(Progress{Log: "after stop"})
			return "done", nil
		},
	}
	s, ch := newTestSession(t, Config{
		Tools: mockTools{"run_web_agent": tool},
		Callbacks: Callbacks{OnBackgroundResult: func(r BackgroundResult) {
			mu.Lock()
			late = append(late, r)
			mu.Unlock()
		}},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- ToolCallBatch{Calls: []ToolCall{{ID: "w", Name: "run_web_agent"}}}
	require.Eventually(t, func() bool { return len(ch.responses()) == 1 }, waitFor, tick)

	start := time.Now()
	require.NoError(t, s.Stop())
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, StateStopped, s.State())

	close(release)
	<-finished
	time.Sleep(20 * time.Millisecond)

	for _, text := range ch.sentTexts() {
		assert.False(t, strings.Contains(text, "Web Agent has finished"))
	}
	mu.Lock()
	assert.Empty(t, late)
	mu.Unlock()
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

const deniedResult = "User denied the request to use this tool."

// dispatchToolCalls answers every call of one batch, in call order. Calls that
// need confirmation are awaited concurrently; the batch returns once all of
// them are settled. Approved calls are launched in the background and
// acknowledged immediately.
func (s *Session) dispatchToolCalls(ctx context.Context, r *run, calls []ToolCall) []ToolResponse {
	responses := make([]ToolResponse, len(calls))
	var wg sync.WaitGroup

	for i, call := range calls {
		log := s.log.With("tool", call.Name, "call_id", call.ID)
		log.Info("🛠️ Tool call received", "args", call.Args)

		tool, ok := s.lookupTool(call.Name)
		if !ok {
			log.Warn("⚠️ Unknown tool requested")
			s.cfg.Metrics.ToolCall(call.Name, string(ToolRejected))
			responses[i] = rejected(call, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name).Error())
			continue
		}
		if err := tool.Validate(call.Args); err != nil {
			log.Warn("⚠️ Invalid tool arguments", "error", err)
			s.cfg.Metrics.ToolCall(call.Name, string(ToolRejected))
			responses[i] = rejected(call, fmt.Errorf("%w: %v", ErrInvalidArguments, err).Error())
			continue
		}

		if !s.confirmationGate(tool) {
			responses[i] = s.launch(r, call, tool)
			continue
		}

		wg.Add(1)
		go func(i int, call ToolCall, tool Tool) {
			defer wg.Done()
			approved := s.awaitConfirmation(ctx, r, call)
			if !approved {
				s.cfg.Metrics.ToolCall(call.Name, string(ToolDenied))
				responses[i] = ToolResponse{ID: call.ID, Name: call.Name, Status: ToolDenied, Result: deniedResult}
				return
			}
			responses[i] = s.launch(r, call, tool)
		}(i, call, tool)
	}

	wg.Wait()
	return responses
}

func (s *Session) lookupTool(name string) (Tool, bool) {
	if s.cfg.Tools == nil {
		return nil, false
	}
	return s.cfg.Tools.Lookup(name)
}

func (s *Session) confirmationGate(tool Tool) bool {
	return s.cfg.Callbacks.OnToolConfirmationRequest != nil && tool.RequiresConfirmation()
}

func rejected(call ToolCall, msg string) ToolResponse {
	return ToolResponse{ID: call.ID, Name: call.Name, Status: ToolRejected, Result: msg}
}

// awaitConfirmation registers the request before notifying the UI and removes
// it once settled, whatever the outcome.
func (s *Session) awaitConfirmation(ctx context.Context, r *run, call ToolCall) bool {
	id := uuid.NewString()
	pending := r.confirmations.register(id, call.Name, call.Args)
	defer r.confirmations.remove(id)

	s.log.Info("⏳ Awaiting user confirmation", "request_id", id, "tool", call.Name)
	s.cfg.Callbacks.OnToolConfirmationRequest(ConfirmationRequest{ID: id, Tool: call.Name, Args: call.Args})

	approved, err := pending.wait(ctx, s.cfg.ConfirmationTimeout)
	switch {
	case errors.Is(err, ErrConfirmationTimeout):
		s.log.Warn("⚠️ Confirmation timed out, treating as denied", "request_id", id, "tool", call.Name)
		s.cfg.Metrics.Confirmation("timeout")
		s.notify(StatusWarning, StateRunning, fmt.Sprintf("Confirmation for %s timed out", call.Name))
	case err != nil:
		s.log.Info("Confirmation abandoned", "request_id", id, "error", err)
		s.cfg.Metrics.Confirmation("abandoned")
	case approved:
		s.cfg.Metrics.Confirmation("approved")
	default:
		s.log.Info("🚫 Tool call denied by user", "request_id", id, "tool", call.Name)
		s.cfg.Metrics.Confirmation("denied")
	}
	return approved
}

// launch starts the tool as a background task and returns its acknowledgement.
// Background tasks are detached from the run's cancellation: teardown abandons
// them and anything they report afterwards is dropped.
func (s *Session) launch(r *run, call ToolCall, tool Tool) ToolResponse {
	s.cfg.Metrics.ToolCall(call.Name, string(ToolStarted))
	s.cfg.Metrics.BackgroundStarted()
	r.inflight.Add(1)

	go func() {
		defer r.inflight.Add(-1)
		defer s.cfg.Metrics.BackgroundFinished()
		s.runBackground(r, call, tool)
	}()

	return ToolResponse{ID: call.ID, Name: call.Name, Status: ToolStarted, Result: tool.Acknowledgement()}
}

func (s *Session) runBackground(r *run, call ToolCall, tool Tool) {
	log := s.log.With("tool", call.Name, "call_id", call.ID)
	log.Info("🚀 Background task started")

	progress := func(p Progress) {
		if r.ctx.Err() != nil {
			return
		}
		s.emitBackground(BackgroundResult{Tool: call.Name, Progress: &p})
	}

	result, err := s.safeRun(r.bgCtx, tool, call.Args, progress)
	if err != nil {
		log.Error("❌ Background task failed", "error", err)
	} else {
		log.Info("✅ Background task finished")
	}

	if r.ctx.Err() != nil {
		log.Info("Session gone, dropping background task report")
		return
	}

	s.emitBackground(BackgroundResult{Tool: call.Name, Done: true, Result: result, Err: err})

	msg := tool.CompletionMessage(result, err)
	if msg == "" {
		return
	}
	if sendErr := r.channel.Send(r.bgCtx, TextFrame(msg, true)); sendErr != nil {
		log.Warn("⚠️ Failed to report background task result", "error", sendErr)
	}
}

func (s *Session) safeRun(ctx context.Context, tool Tool, args map[string]any, progress func(Progress)) (result string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	return tool.Run(ctx, args, progress)
}

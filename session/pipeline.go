package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// captureLoop reads one device and feeds the outbound queue. A device that
// cannot be opened disables its modality for this run without failing the
// session. minInterval rate-limits video sources.
func (s *Session) captureLoop(ctx context.Context, r *run, h *deviceHandle, dev InputDevice, kind FrameKind, minInterval time.Duration) error {
	name := h.name
	log := s.log.With("device", name)

	if err := dev.Open(ctx); err != nil {
		log.Warn("⚠️ Device unavailable, continuing without it", "error", fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
		s.notify(StatusWarning, StateRunning, fmt.Sprintf("%s unavailable: %v", name, err))
		return nil
	}
	if !h.markOpen() {
		return nil
	}
	defer func() {
		if err := h.close(); err != nil {
			log.Debug("Device close failed", "error", err)
		}
	}()
	log.Info("🎙️ Capture started")

	var last time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}

		if s.paused.Load() {
			if !sleepCtx(ctx, s.cfg.PausePollInterval) {
				return nil
			}
			continue
		}

		if minInterval > 0 && !last.IsZero() {
			if wait := minInterval - time.Since(last); wait > 0 {
				if !sleepCtx(ctx, wait) {
					return nil
				}
			}
		}

		data, err := dev.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				log.Info("Capture ended", "error", err)
				return nil
			}
			log.Warn("⚠️ Device read failed", "error", err)
			if !sleepCtx(ctx, readRetryDelay) {
				return nil
			}
			continue
		}
		last = time.Now()
		if len(data) == 0 {
			continue
		}

		var f Frame
		switch kind {
		case FrameAudio:
			f = AudioFrame(data, dev.MIMEType())
		default:
			f = ImageFrame(data, dev.MIMEType())
		}

		select {
		case r.outbound <- f:
		case <-ctx.Done():
			return nil
		}
	}
}

// sendLoop drains the outbound queue into the channel in FIFO order.
func (s *Session) sendLoop(ctx context.Context, r *run) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-r.outbound:
			if err := r.channel.Send(ctx, f); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("send %s frame: %w", f.Kind, err)
			}
			s.cfg.Metrics.FrameSent(f.Kind.String())
		}
	}
}

// receiveLoop reads channel events until the channel ends. The end of the
// channel is fatal for the run.
func (s *Session) receiveLoop(ctx context.Context, r *run) error {
	for {
		ev, err := r.channel.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		if ev == nil {
			continue
		}
		s.dispatchEvent(ctx, r, ev)
	}
}

func (s *Session) dispatchEvent(ctx context.Context, r *run, ev InboundEvent) {
	switch e := ev.(type) {
	case AudioChunk:
		s.cfg.Metrics.InboundEvent("audio")
		if len(e.Data) > 0 {
			r.inbound.Put(e.Data)
		}
	case InputTranscript:
		s.cfg.Metrics.InboundEvent("input_transcript")
		s.emitTranscription(SenderUser, e.Text)
	case OutputTranscript:
		s.cfg.Metrics.InboundEvent("output_transcript")
		s.emitTranscription(SenderModel, e.Text)
	case ToolCallBatch:
		s.cfg.Metrics.InboundEvent("tool_call")
		responses := s.dispatchToolCalls(ctx, r, e.Calls)
		if len(responses) == 0 {
			return
		}
		if err := r.channel.SendToolResponse(ctx, responses); err != nil && ctx.Err() == nil {
			s.log.Error("❌ Failed to send tool responses", "error", err, "count", len(responses))
		}
	case Interrupted:
		s.cfg.Metrics.InboundEvent("interrupted")
		if n := r.inbound.Clear(); n > 0 {
			s.log.Debug("🔇 Interrupted, dropped queued playback", "chunks", n)
		}
	case TurnComplete:
		s.cfg.Metrics.InboundEvent("turn_complete")
		s.log.Debug("Turn complete")
	case GoAway:
		s.cfg.Metrics.InboundEvent("go_away")
		s.log.Warn("⚠️ Server will close the connection", "time_left", e.TimeLeft)
		s.notify(StatusWarning, StateRunning, fmt.Sprintf("Connection closing in %s", e.TimeLeft))
	default:
		s.log.Warn("⚠️ Unhandled inbound event", "type", fmt.Sprintf("%T", ev))
	}
	s.cfg.Metrics.QueueDepths(len(r.outbound), r.inbound.Len())
}

// playbackLoop renders queued model audio. Without a speaker, audio goes to
// OnAudioOut only.
func (s *Session) playbackLoop(ctx context.Context, r *run) error {
	speaker := s.cfg.Devices.Speaker
	if speaker != nil {
		if err := speaker.Open(ctx); err != nil {
			s.log.Warn("⚠️ Speaker unavailable, playback disabled", "error", err)
			s.notify(StatusWarning, StateRunning, fmt.Sprintf("speaker unavailable: %v", err))
			speaker = nil
		} else if !r.speaker.markOpen() {
			return nil
		} else {
			defer func() {
				if err := r.speaker.close(); err != nil {
					s.log.Debug("Speaker close failed", "error", err)
				}
			}()
		}
	}

	for {
		chunk, err := r.inbound.Get(ctx)
		if err != nil {
			return nil
		}
		if cb := s.cfg.Callbacks.OnAudioOut; cb != nil {
			cb(chunk)
		}
		if speaker == nil {
			continue
		}
		if err := speaker.Write(ctx, chunk); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.Warn("⚠️ Playback write failed", "error", err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newTestSession(t *testing.T, cfg Config) (*Session, *mockChannel) {
	t.Helper()
	ch := newMockChannel()
	if cfg.Connector == nil {
		cfg.Connector = &mockConnector{channel: ch}
	}
	if cfg.PausePollInterval == 0 {
		cfg.PausePollInterval = 5 * time.Millisecond
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = time.Second
	}
	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s, ch
}

func TestNew_RequiresConnector(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{Connector: &mockConnector{channel: newMockChannel()}})
	require.NoError(t, err)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, 10, s.cfg.OutboundQueueSize)
	assert.Equal(t, 15*time.Second, s.cfg.ConfirmationTimeout)
	assert.Equal(t, VideoNone, s.cfg.VideoMode)
}

func TestSession_StartIsIdempotent(t *testing.T) {
	conn := &mockConnector{channel: newMockChannel()}
	s, _ := newTestSession(t, Config{Connector: conn})

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	assert.Equal(t, int32(1), conn.calls.Load())
	assert.Equal(t, StateRunning, s.State())
}

func TestSession_StartConnectError(t *testing.T) {
	conn := &mockConnector{err: errors.New("dial failed")}
	s, _ := newTestSession(t, Config{Connector: conn})

	err := s.Start(context.Background(), StartOptions{})
	require.Error(t, err)
	assert.Equal(t, StateIdle, s.State())
}

func TestSession_StopWhenIdleIsNoop(t *testing.T) {
	s, _ := newTestSession(t, Config{})
	assert.NoError(t, s.Stop())
	assert.Equal(t, StateIdle, s.State())
	assert.ErrorIs(t, s.SendText(context.Background(), "hi"), ErrNotRunning)
}

func TestSession_StopClosesBlockedDevice(t *testing.T) {
	mic := newBlockingDevice()
	speaker := &mockSpeaker{}
	s, _ := newTestSession(t, Config{
		Devices:         Devices{Microphone: mic, Speaker: speaker},
		ShutdownTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	select {
	case <-mic.reading:
	case <-time.After(waitFor):
		t.Fatal("microphone was never read")
	}

	stopped := make(chan struct{})
	go func() {
		_ = s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}

	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, int32(1), mic.closes.Load())
	assert.Equal(t, int32(1), speaker.closes.Load())
}

func TestSession_StopAbortsDial(t *testing.T) {
	conn := &dialingConnector{dialing: make(chan struct{})}
	s, _ := newTestSession(t, Config{Connector: conn})

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start(context.Background(), StartOptions{}) }()
	<-conn.dialing

	assert.Equal(t, StateIdle, s.State())
	assert.False(t, s.ResolveConfirmation("nope", true))
	require.NoError(t, s.Stop())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("Start did not return after Stop")
	}
	assert.Equal(t, StateIdle, s.State())
}

func TestDeviceHandle_ClosesOnce(t *testing.T) {
	dev := &mockDevice{}
	h := newDeviceHandle("microphone", dev)
	require.NoError(t, h.close())
	assert.Equal(t, int32(0), dev.closes.Load(), "unopened device is not closed")

	h = newDeviceHandle("microphone", dev)
	require.True(t, h.markOpen())
	require.NoError(t, h.close())
	require.NoError(t, h.close())
	assert.Equal(t, int32(1), dev.closes.Load())

	late := &mockDevice{}
	h = newDeviceHandle("camera", late)
	require.NoError(t, h.close())
	assert.False(t, h.markOpen())
	assert.Equal(t, int32(1), late.closes.Load(), "device opened after teardown is closed at once")
}

func TestSession_RestartAfterStop(t *testing.T) {
	conn := &mockConnector{channel: newMockChannel()}
	s, _ := newTestSession(t, Config{Connector: conn})

	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.NoError(t, s.Stop())
	assert.Equal(t, StateStopped, s.State())

	conn.channel = newMockChannel()
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	assert.Equal(t, StateRunning, s.State())
	require.NoError(t, s.SendText(context.Background(), "again"))
	assert.Eventually(t, func() bool { return len(conn.channel.sentTexts()) == 1 }, waitFor, tick)
}

func TestSession_StartMessage(t *testing.T) {
	s, ch := newTestSession(t, Config{})

	require.NoError(t, s.Start(context.Background(), StartOptions{StartMessage: "System: Greet the user."}))

	frames := ch.sentFrames()
	require.Len(t, frames, 1)
	assert.Equal(t, FrameText, frames[0].Kind)
	assert.Equal(t, "System: Greet the user.", frames[0].Text)
	assert.True(t, frames[0].EndOfTurn)
}

func TestSession_OutboundPreservesEnqueueOrder(t *testing.T) {
	s, ch := newTestSession(t, Config{OutboundQueueSize: 2})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	var want []string
	for i := 0; i < 50; i++ {
		text := fmt.Sprintf("turn-%02d", i)
		want = append(want, text)
		require.NoError(t, s.SendText(context.Background(), text))
	}

	require.Eventually(t, func() bool { return len(ch.sentTexts()) == len(want) }, waitFor, tick)
	assert.Equal(t, want, ch.sentTexts())
}

func TestSession_CapturedAudioKeepsDeviceOrder(t *testing.T) {
	mic := &mockDevice{}
	s, ch := newTestSession(t, Config{Devices: Devices{Microphone: mic}})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	require.Eventually(t, func() bool { return len(ch.sentFrames()) >= 10 }, waitFor, tick)
	require.NoError(t, s.Stop())

	prev := 0
	for _, f := range ch.sentFrames() {
		require.Equal(t, FrameAudio, f.Kind)
		require.Len(t, f.Data, 1)
		assert.Greater(t, int(f.Data[0]), prev)
		prev = int(f.Data[0])
	}
}

func TestSession_PauseKeepsDeviceOpen(t *testing.T) {
	mic := &mockDevice{}
	s, _ := newTestSession(t, Config{Devices: Devices{Microphone: mic}})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	require.Eventually(t, func() bool { return mic.reads.Load() >= 3 }, waitFor, tick)

	s.SetPaused(true)
	assert.True(t, s.Paused())
	time.Sleep(30 * time.Millisecond)
	before := mic.reads.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, mic.reads.Load(), "no samples while paused")
	assert.Equal(t, int32(1), mic.opens.Load())
	assert.Equal(t, int32(0), mic.closes.Load())

	s.SetPaused(false)
	require.Eventually(t, func() bool { return mic.reads.Load() > before }, waitFor, tick)
	assert.Equal(t, int32(1), mic.opens.Load())

	require.NoError(t, s.Stop())
	assert.Equal(t, int32(1), mic.closes.Load())
}

func TestSession_StartPaused(t *testing.T) {
	mic := &mockDevice{}
	s, ch := newTestSession(t, Config{Devices: Devices{Microphone: mic}})
	require.NoError(t, s.Start(context.Background(), StartOptions{Paused: true}))

	require.Eventually(t, func() bool { return mic.opens.Load() == 1 }, waitFor, tick)
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, ch.sentFrames())
}

func TestSession_VideoModeSelectsDevice(t *testing.T) {
	camera := &mockDevice{mime: MIMEImageJPG}
	screen := &mockDevice{mime: MIMEImageJPG}
	s, ch := newTestSession(t, Config{
		Devices:            Devices{Camera: camera, Screen: screen},
		VideoFrameInterval: 20 * time.Millisecond,
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{Mode: VideoScreen}))

	require.Eventually(t, func() bool { return len(ch.sentFrames()) >= 2 }, waitFor, tick)
	assert.Equal(t, int32(0), camera.opens.Load())
	assert.Equal(t, int32(1), screen.opens.Load())
	for _, f := range ch.sentFrames() {
		assert.Equal(t, FrameImage, f.Kind)
		assert.Equal(t, MIMEImageJPG, f.MIMEType)
	}
}

func TestSession_VideoFrameRateIsBounded(t *testing.T) {
	camera := &mockDevice{mime: MIMEImageJPG}
	s, _ := newTestSession(t, Config{
		Devices:            Devices{Camera: camera},
		VideoMode:          VideoCamera,
		VideoFrameInterval: 100 * time.Millisecond,
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	time.Sleep(250 * time.Millisecond)
	require.NoError(t, s.Stop())
	assert.LessOrEqual(t, camera.reads.Load(), int32(4))
	assert.GreaterOrEqual(t, camera.reads.Load(), int32(1))
}

func TestSession_DeviceUnavailableDisablesModality(t *testing.T) {
	rec := &statusRecorder{}
	mic := &mockDevice{openErr: errors.New("permission denied")}
	s, ch := newTestSession(t, Config{
		Devices:   Devices{Microphone: mic},
		Callbacks: Callbacks{OnStatus: rec.record},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	require.Eventually(t, func() bool { return rec.has(StatusWarning, StateRunning) }, waitFor, tick)
	assert.Equal(t, StateRunning, s.State())

	require.NoError(t, s.SendText(context.Background(), "still here"))
	require.Eventually(t, func() bool { return len(ch.sentTexts()) == 1 }, waitFor, tick)
}

func TestSession_TransportFailureEndsSession(t *testing.T) {
	rec := &statusRecorder{}
	mic := &mockDevice{}
	speaker := &mockSpeaker{}
	s, ch := newTestSession(t, Config{
		Devices:   Devices{Microphone: mic, Speaker: speaker},
		Callbacks: Callbacks{OnStatus: rec.record},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.Eventually(t, func() bool { return mic.opens.Load() == 1 }, waitFor, tick)

	ch.recvErr <- errors.New("websocket: close 1011")

	select {
	case <-s.Done():
	case <-time.After(waitFor):
		t.Fatal("session did not stop after transport failure")
	}
	assert.Equal(t, StateStopped, s.State())
	assert.ErrorIs(t, s.Err(), ErrTransportClosed)
	assert.Equal(t, int32(1), mic.closes.Load())
	assert.Equal(t, int32(1), speaker.closes.Load())
	assert.True(t, rec.has(StatusError, StateStopped))
}

func TestSession_PlaybackAndAudioOut(t *testing.T) {
	speaker := &mockSpeaker{}
	var mu sync.Mutex
	var metered int
	s, ch := newTestSession(t, Config{
		Devices: Devices{Speaker: speaker},
		Callbacks: Callbacks{OnAudioOut: func(pcm []byte) {
			mu.Lock()
			metered++
			mu.Unlock()
		}},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- AudioChunk{Data: []byte{1, 2}}
	ch.events <- AudioChunk{Data: []byte{3, 4}}
	ch.events <- AudioChunk{}

	require.Eventually(t, func() bool { return speaker.count() == 2 }, waitFor, tick)
	mu.Lock()
	assert.Equal(t, 2, metered)
	mu.Unlock()
}

func TestDispatchEvent_InterruptedDropsQueuedPlayback(t *testing.T) {
	s, _ := newTestSession(t, Config{})
	r := &run{inbound: NewAudioQueue()}
	ctx := context.Background()

	s.dispatchEvent(ctx, r, AudioChunk{Data: []byte{1}})
	s.dispatchEvent(ctx, r, AudioChunk{Data: []byte{2}})
	s.dispatchEvent(ctx, r, AudioChunk{})
	assert.Equal(t, 2, r.inbound.Len())

	s.dispatchEvent(ctx, r, Interrupted{})
	assert.Equal(t, 0, r.inbound.Len())

	s.dispatchEvent(ctx, r, AudioChunk{Data: []byte{3}})
	assert.Equal(t, 1, r.inbound.Len())
}

func TestSession_Transcriptions(t *testing.T) {
	var mu sync.Mutex
	var got []Transcription
	s, ch := newTestSession(t, Config{
		Callbacks: Callbacks{OnTranscription: func(tr Transcription) {
			mu.Lock()
			got = append(got, tr)
			mu.Unlock()
		}},
	})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- InputTranscript{Text: "hello"}
	ch.events <- OutputTranscript{Text: ""}
	ch.events <- OutputTranscript{Text: "Good evening, Sir."}
	ch.events <- TurnComplete{}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, waitFor, tick)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, Transcription{Sender: SenderUser, Text: "hello"}, got[0])
	assert.Equal(t, Transcription{Sender: SenderModel, Text: "Good evening, Sir."}, got[1])
}

func TestSession_GoAwayIsReported(t *testing.T) {
	rec := &statusRecorder{}
	s, ch := newTestSession(t, Config{Callbacks: Callbacks{OnStatus: rec.record}})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	ch.events <- GoAway{TimeLeft: 10 * time.Second}

	require.Eventually(t, func() bool { return rec.has(StatusWarning, StateRunning) }, waitFor, tick)
	assert.Equal(t, StateRunning, s.State())
}

func TestTextFrame_RoundTrip(t *testing.T) {
	text := "Désolé, Sir. ✓ 3D model\nline two"
	f := TextFrame(text, true)
	assert.Equal(t, FrameText, f.Kind)
	assert.Equal(t, []byte(text), []byte(f.Text))
	assert.True(t, f.EndOfTurn)
	assert.False(t, TextFrame(text, false).EndOfTurn)

	s, ch := newTestSession(t, Config{})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))
	require.NoError(t, s.SendText(context.Background(), text))

	require.Eventually(t, func() bool { return len(ch.sentFrames()) == 1 }, waitFor, tick)
	assert.Equal(t, f, ch.sentFrames()[0])
}

func TestSession_SendFrameBase64(t *testing.T) {
	s, ch := newTestSession(t, Config{})
	require.NoError(t, s.Start(context.Background(), StartOptions{}))

	img := []byte{0xff, 0xd8, 0xff, 0xe0}
	encoded := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(img)
	require.NoError(t, s.SendFrameBase64(context.Background(), encoded))
	require.Error(t, s.SendFrameBase64(context.Background(), "not base64!"))

	require.Eventually(t, func() bool { return len(ch.sentFrames()) == 1 }, waitFor, tick)
	f := ch.sentFrames()[0]
	assert.Equal(t, FrameImage, f.Kind)
	assert.Equal(t, img, f.Data)
	assert.False(t, f.EndOfTurn)
}

func TestParseVideoMode(t *testing.T) {
	assert.Equal(t, VideoCamera, ParseVideoMode("camera"))
	assert.Equal(t, VideoScreen, ParseVideoMode("screen"))
	assert.Equal(t, VideoNone, ParseVideoMode("none"))
	assert.Equal(t, VideoNone, ParseVideoMode("webcam"))
}

package devices

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // screen grabs may arrive as PNG
	"os/exec"
	"runtime"
	"strings"

	"golang.org/x/image/draw"

	"github.com/room4-2/ada/logger"
)

const (
	// DefaultFFmpegPath is looked up on PATH
	DefaultFFmpegPath = "ffmpeg"
	// MaxFrameSize bounds both sides of a captured frame
	MaxFrameSize = 1024
	// FrameQuality is the JPEG quality of re-encoded frames
	FrameQuality = 80
)

// GrabFunc runs ffmpeg once and returns a single encoded frame.
type GrabFunc func(ctx context.Context, ffmpeg string, args []string) ([]byte, error)

// FrameGrabber captures single JPEG frames from a camera or the screen by
// invoking ffmpeg once per Read.
type FrameGrabber struct {
	name   string
	ffmpeg string
	input  []string
	grab   GrabFunc
}

// NewCamera grabs frames from the default camera.
func NewCamera(ffmpeg string) *FrameGrabber {
	return newGrabber("camera", ffmpeg, cameraInput(runtime.GOOS))
}

// NewScreen grabs frames from the primary display.
func NewScreen(ffmpeg string) *FrameGrabber {
	return newGrabber("screen", ffmpeg, screenInput(runtime.GOOS))
}

func newGrabber(name, ffmpeg string, input []string) *FrameGrabber {
	if ffmpeg == "" {
		ffmpeg = DefaultFFmpegPath
	}
	return &FrameGrabber{name: name, ffmpeg: ffmpeg, input: input, grab: runFFmpeg}
}

// Open checks that ffmpeg is available.
func (g *FrameGrabber) Open(ctx context.Context) error {
	path, err := exec.LookPath(g.ffmpeg)
	if err != nil {
		return fmt.Errorf("%s capture needs ffmpeg: %w", g.name, err)
	}
	g.ffmpeg = path
	logger.Info("📷 Video source ready", "source", g.name, "ffmpeg", path)
	return nil
}

// Read grabs one frame and scales it to fit MaxFrameSize.
func (g *FrameGrabber) Read(ctx context.Context) ([]byte, error) {
	args := append([]string{"-hide_banner", "-loglevel", "error"}, g.input...)
	args = append(args, "-frames:v", "1", "-f", "image2pipe", "-vcodec", "mjpeg", "-")

	raw, err := g.grab(ctx, g.ffmpeg, args)
	if err != nil {
		return nil, fmt.Errorf("%s grab failed: %w", g.name, err)
	}
	return Thumbnail(raw, MaxFrameSize, FrameQuality)
}

// MIMEType implements session.InputDevice.
func (g *FrameGrabber) MIMEType() string { return "image/jpeg" }

// Close implements session.InputDevice.
func (g *FrameGrabber) Close() error { return nil }

// Thumbnail decodes an image, shrinks it to fit a maxSize square keeping the
// aspect ratio and encodes it as JPEG. Smaller images are only re-encoded.
func Thumbnail(data []byte, maxSize, quality int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), maxSize)
	img := src
	if w != src.Bounds().Dx() || h != src.Bounds().Dy() {
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(w, h, maxSize int) (int, int) {
	if maxSize <= 0 || (w <= maxSize && h <= maxSize) {
		return w, h
	}
	if w >= h {
		h = h * maxSize / w
		w = maxSize
	} else {
		w = w * maxSize / h
		h = maxSize
	}
	return max(w, 1), max(h, 1)
}

func cameraInput(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"-f", "avfoundation", "-framerate", "30", "-i", "0"}
	case "windows":
		return []string{"-f", "dshow", "-i", "video=Integrated Camera"}
	default:
		return []string{"-f", "v4l2", "-i", "/dev/video0"}
	}
}

func screenInput(goos string) []string {
	switch goos {
	case "darwin":
		return []string{"-f", "avfoundation", "-i", "1:none"}
	case "windows":
		return []string{"-f", "gdigrab", "-i", "desktop"}
	default:
		return []string{"-f", "x11grab", "-i", ":0.0"}
	}
}

func runFFmpeg(ctx context.Context, ffmpeg string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, ffmpeg, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

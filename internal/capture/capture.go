package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"math"

	"github.com/kbinani/screenshot"
	"golang.org/x/image/draw"

	"screenagent/internal/clock"
	t "screenagent/internal/types"
)

const (
	DefaultMaxWidth  = 1280
	DefaultMaxHeight = 720
	DefaultQuality   = 70
	Format           = "JPEG"
)

var (
	ErrAcquireFailed = errors.New("screen acquire failed")
	ErrEncodeFailed  = errors.New("screen encode failed")
)

// Grabber returns a full-screen image.
type Grabber interface {
	Grab() (image.Image, error)
}

// ScreenGrabber grabs a display through kbinani/screenshot. A negative or
// out of range Display selects the primary display.
type ScreenGrabber struct {
	Display int
}

func (g ScreenGrabber) Grab() (image.Image, error) {
	num := screenshot.NumActiveDisplays()
	if num <= 0 {
		return nil, errors.New("no active displays")
	}
	bounds := primaryBounds(num)
	if g.Display >= 0 && g.Display < num {
		bounds = screenshot.GetDisplayBounds(g.Display)
	}
	return screenshot.CaptureRect(bounds)
}

// primaryBounds picks the display whose bounds start at the origin.
func primaryBounds(num int) image.Rectangle {
	for i := 0; i < num; i++ {
		b := screenshot.GetDisplayBounds(i)
		if b.Min.X == 0 && b.Min.Y == 0 {
			return b
		}
	}
	return screenshot.GetDisplayBounds(0)
}

// Options tunes the pipeline. Zero values select the defaults.
type Options struct {
	MaxWidth  int
	MaxHeight int
	Quality   int // 1-100
}

// Frame is one packaged capture.
type Frame struct {
	Image    string // base64 JPEG
	Metadata t.CaptureMetadata
}

// Pipeline turns a raw screen grab into a bounded-size JPEG frame.
type Pipeline struct {
	Grabber  Grabber
	Options  Options
	Platform string
	// Pointer, when set, reports the cursor position in screen coordinates
	// so a marker can be drawn into the capture.
	Pointer func() (x, y int)
	// Scaler resizes oversized captures. Nil means draw.CatmullRom.
	Scaler draw.Scaler
	Clock  clock.Clock
	Logger *slog.Logger
}

// CaptureAndEncode acquires, normalizes, encodes and packages one frame.
// Either a complete frame or an error wrapping ErrAcquireFailed or
// ErrEncodeFailed is returned.
func (p *Pipeline) CaptureAndEncode() (*Frame, error) {
	logger := p.logger()

	img, err := p.acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAcquireFailed, err)
	}
	orig := img.Bounds()

	if p.Pointer != nil {
		img = p.overlayCursor(img, orig)
	}

	maxW, maxH := p.envelope()
	out := p.normalize(img, maxW, maxH)
	if out.Bounds().Size() != orig.Size() {
		logger.Debug("resized capture", "from", orig.Size(), "to", out.Bounds().Size())
	}

	data, err := p.encode(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	c := p.Clock
	if c == nil {
		c = clock.Real()
	}
	frame := &Frame{
		Image: base64.StdEncoding.EncodeToString(data),
		Metadata: t.CaptureMetadata{
			Timestamp:          t.Timestamp(c.Now()),
			Platform:           p.Platform,
			Resolution:         t.Size{W: out.Bounds().Dx(), H: out.Bounds().Dy()},
			OriginalResolution: t.Size{W: orig.Dx(), H: orig.Dy()},
			FileSizeBytes:      len(data),
			FileSizeKB:         math.Round(float64(len(data))/1024*100) / 100,
			Format:             Format,
		},
	}
	logger.Info("screenshot encoded",
		"kb", frame.Metadata.FileSizeKB,
		"resolution", frame.Metadata.Resolution.String())
	return frame, nil
}

func (p *Pipeline) acquire() (img image.Image, err error) {
	if p.Grabber == nil {
		return nil, errors.New("no screen grabber")
	}
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("grabber panicked: %v", r)
		}
	}()
	img, err = p.Grabber.Grab()
	if err == nil && (img == nil || img.Bounds().Empty()) {
		err = errors.New("empty screen image")
	}
	return img, err
}

// normalize downsizes img to fit maxW x maxH. Resizing is best effort: on
// failure the unmodified image is returned.
func (p *Pipeline) normalize(img image.Image, maxW, maxH int) (out image.Image) {
	w, h, ok := FitSize(img.Bounds().Dx(), img.Bounds().Dy(), maxW, maxH)
	if !ok {
		return img
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger().Error("resize failed, sending original", "panic", r)
			out = img
		}
	}()
	scaler := p.Scaler
	if scaler == nil {
		scaler = draw.CatmullRom
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	scaler.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

// FitSize returns the largest size with the aspect ratio of w x h that fits
// inside maxW x maxH. ok is false when no downscale is needed.
func FitSize(w, h, maxW, maxH int) (nw, nh int, ok bool) {
	if w <= 0 || h <= 0 || (w <= maxW && h <= maxH) {
		return w, h, false
	}
	if w*maxH >= h*maxW {
		nw, nh = maxW, h*maxW/w
	} else {
		nw, nh = w*maxH/h, maxH
	}
	return max(nw, 1), max(nh, 1), true
}

func (p *Pipeline) encode(img image.Image) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("encoder panicked: %v", r)
		}
	}()
	q := p.Options.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Pipeline) envelope() (int, int) {
	w, h := p.Options.MaxWidth, p.Options.MaxHeight
	if w <= 0 {
		w = DefaultMaxWidth
	}
	if h <= 0 {
		h = DefaultMaxHeight
	}
	return w, h
}

// overlayCursor draws a small arrow at the pointer. Pointer coordinates are
// absolute, the image may be offset on multi-display layouts.
func (p *Pipeline) overlayCursor(img image.Image, bounds image.Rectangle) image.Image {
	x, y := p.Pointer()
	pt := image.Pt(x, y)
	if !pt.In(bounds) {
		return img
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		rgba = image.NewRGBA(bounds)
		draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)
	}
	drawArrow(rgba, pt)
	return rgba
}

const arrowSize = 16

func drawArrow(img *image.RGBA, tip image.Point) {
	black := color.RGBA{A: 0xff}
	white := color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	for dy := 0; dy < arrowSize; dy++ {
		for dx := 0; dx <= dy/2; dx++ {
			c := white
			if dx == 0 || dx == dy/2 || dy == arrowSize-1 {
				c = black
			}
			img.SetRGBA(tip.X+dx, tip.Y+dy, c)
		}
	}
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

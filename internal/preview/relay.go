// Package preview hands camera frames from the device's preview goroutine to
// a renderer and encodes snapshots.
package preview

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/image/bmp"

	"facegate/internal/device"
	"facegate/internal/logging"
)

// ErrNoFrame is returned before the first frame arrived.
var ErrNoFrame = errors.New("preview: no frame received")

// Relay keeps the most recent BGR24 frame. OnFrame and Render share one lock
// so a renderer never sees a partially copied or reallocated buffer.
type Relay struct {
	logger *slog.Logger

	mu     sync.Mutex
	width  int
	height int
	stride int
	buf    []byte
	frames uint64

	updates chan struct{}
}

// NewRelay returns an empty relay.
func NewRelay(logger *slog.Logger) *Relay {
	return &Relay{
		logger:  logging.NewComponentLogger(logger, "preview"),
		updates: make(chan struct{}, 1),
	}
}

// OnFrame copies frame into the shared buffer. Frames shorter than two rows
// are ignored.
func (r *Relay) OnFrame(frame device.Frame) {
	if frame.Height < 2 || frame.Width <= 0 {
		return
	}
	stride := frame.Stride
	if stride <= 0 {
		stride = frame.Width * 3
	}
	size := stride * frame.Height
	if len(frame.Data) < size || stride < frame.Width*3 {
		r.logger.Debug("dropping short preview frame",
			logging.Int("width", frame.Width),
			logging.Int("height", frame.Height),
			logging.Int("bytes", len(frame.Data)))
		return
	}

	r.mu.Lock()
	if r.width != frame.Width || r.height != frame.Height || r.stride != stride {
		r.logger.Debug("allocating preview buffer",
			logging.Int("width", frame.Width),
			logging.Int("height", frame.Height))
		r.buf = make([]byte, size)
		r.width, r.height, r.stride = frame.Width, frame.Height, stride
	}
	copy(r.buf, frame.Data[:size])
	r.frames++
	r.mu.Unlock()

	select {
	case r.updates <- struct{}{}:
	default:
	}
}

// Updates signals that a new frame is available. Signals coalesce.
func (r *Relay) Updates() <-chan struct{} {
	return r.updates
}

// Frames reports how many frames were accepted.
func (r *Relay) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Render calls fn with the current frame while holding the lock. fn must not
// retain buf. It returns false when no frame has arrived yet.
func (r *Relay) Render(fn func(width, height, stride int, buf []byte)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.buf == nil {
		return false
	}
	fn(r.width, r.height, r.stride, r.buf)
	return true
}

// Snapshot converts the current frame to an RGBA image.
func (r *Relay) Snapshot() (image.Image, error) {
	var img *image.RGBA
	ok := r.Render(func(width, height, stride int, buf []byte) {
		img = image.NewRGBA(image.Rect(0, 0, width, height))
		for y := range height {
			row := buf[y*stride:]
			for x := range width {
				b, g, rd := row[x*3], row[x*3+1], row[x*3+2]
				img.SetRGBA(x, y, color.RGBA{R: rd, G: g, B: b, A: 0xff})
			}
		}
	})
	if !ok {
		return nil, ErrNoFrame
	}
	return img, nil
}

// WriteBMP encodes the current frame as a bitmap.
func (r *Relay) WriteBMP(w io.Writer) error {
	img, err := r.Snapshot()
	if err != nil {
		return err
	}
	if err := bmp.Encode(w, img); err != nil {
		return fmt.Errorf("preview: encode bmp: %w", err)
	}
	return nil
}

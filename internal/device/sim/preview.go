package sim

import (
	"errors"
	"time"

	"facegate/internal/device"
)

const previewInterval = time.Second / 15

// StartPreview streams synthetic BGR24 frames until StopPreview or Disconnect.
// The first frame is delivered before StartPreview returns.
func (g *Gateway) StartPreview(_ int, onFrame func(device.Frame)) error {
	if onFrame == nil {
		return errors.New("sim: preview callback is required")
	}
	g.previewMu.Lock()
	defer g.previewMu.Unlock()
	if g.previewStop != nil {
		return errors.New("sim: preview already running")
	}

	script := g.snapshot()
	width, height := script.PreviewWidth, script.PreviewHeight
	if width <= 0 || height <= 0 {
		width, height = 320, 240
	}

	onFrame(syntheticFrame(width, height, 0))

	stop := make(chan struct{})
	done := make(chan struct{})
	g.previewStop, g.previewDone = stop, done
	go func() {
		defer close(done)
		ticker := time.NewTicker(previewInterval)
		defer ticker.Stop()
		for tick := 1; ; tick++ {
			select {
			case <-stop:
				return
			case <-ticker.C:
				onFrame(syntheticFrame(width, height, tick))
			}
		}
	}()
	return nil
}

// StopPreview stops the frame stream. It is a no-op when no preview runs.
func (g *Gateway) StopPreview() error {
	g.previewMu.Lock()
	stop, done := g.previewStop, g.previewDone
	g.previewStop, g.previewDone = nil, nil
	g.previewMu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// syntheticFrame draws a diagonal gradient that shifts with tick.
func syntheticFrame(width, height, tick int) device.Frame {
	stride := width * 3
	data := make([]byte, stride*height)
	for y := range height {
		row := data[y*stride:]
		for x := range width {
			v := byte((x + y + tick*4) & 0xff)
			row[x*3] = v
			row[x*3+1] = byte(y * 255 / height)
			row[x*3+2] = byte(x * 255 / width)
		}
	}
	return device.Frame{Width: width, Height: height, Stride: stride, Data: data}
}

package preview_test

import (
	"bytes"
	"errors"
	"image/color"
	"testing"

	"golang.org/x/image/bmp"

	"facegate/internal/device"
	"facegate/internal/preview"
)

func solidFrame(width, height int, b, g, r byte) device.Frame {
	stride := width * 3
	data := make([]byte, stride*height)
	for i := 0; i < len(data); i += 3 {
		data[i], data[i+1], data[i+2] = b, g, r
	}
	return device.Frame{Width: width, Height: height, Stride: stride, Data: data}
}

func TestRelayIgnoresDegenerateFrames(t *testing.T) {
	relay := preview.NewRelay(nil)
	relay.OnFrame(solidFrame(4, 1, 1, 2, 3))
	relay.OnFrame(device.Frame{Width: 4, Height: 4, Stride: 12, Data: make([]byte, 10)})
	if relay.Frames() != 0 {
		t.Fatalf("expected frames to be ignored, got %d", relay.Frames())
	}
	if _, err := relay.Snapshot(); !errors.Is(err, preview.ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
}

func TestRelayReallocatesOnSizeChange(t *testing.T) {
	relay := preview.NewRelay(nil)
	relay.OnFrame(solidFrame(4, 2, 0, 0, 0))
	relay.OnFrame(solidFrame(8, 6, 10, 20, 30))

	var gotW, gotH, gotLen int
	relay.Render(func(width, height, stride int, buf []byte) {
		gotW, gotH, gotLen = width, height, len(buf)
	})
	if gotW != 8 || gotH != 6 || gotLen != 8*3*6 {
		t.Fatalf("unexpected buffer %dx%d len %d", gotW, gotH, gotLen)
	}
	if relay.Frames() != 2 {
		t.Fatalf("expected 2 frames, got %d", relay.Frames())
	}
}

func TestRelaySignalsWithoutBlocking(t *testing.T) {
	relay := preview.NewRelay(nil)
	for range 5 {
		relay.OnFrame(solidFrame(2, 2, 0, 0, 0))
	}
	select {
	case <-relay.Updates():
	default:
		t.Fatal("expected a pending update signal")
	}
	select {
	case <-relay.Updates():
		t.Fatal("expected signals to coalesce")
	default:
	}
}

func TestSnapshotConvertsBGRToRGBA(t *testing.T) {
	relay := preview.NewRelay(nil)
	relay.OnFrame(solidFrame(3, 2, 10, 20, 30))

	img, err := relay.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got := color.RGBAModel.Convert(img.At(1, 1)).(color.RGBA); got != (color.RGBA{R: 30, G: 20, B: 10, A: 255}) {
		t.Fatalf("unexpected pixel %+v", got)
	}

	var buf bytes.Buffer
	if err := relay.WriteBMP(&buf); err != nil {
		t.Fatalf("WriteBMP: %v", err)
	}
	decoded, err := bmp.Decode(&buf)
	if err != nil {
		t.Fatalf("decode bmp: %v", err)
	}
	if decoded.Bounds().Dx() != 3 || decoded.Bounds().Dy() != 2 {
		t.Fatalf("unexpected bounds %v", decoded.Bounds())
	}
}

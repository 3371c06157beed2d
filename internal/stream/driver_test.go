// ABOUTME: Tests for the stream driver hot path
// ABOUTME: Exercises the realtime process callback without an audio daemon
package stream

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func floatAt(buf []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
}

func TestProcessFillsOutputBuffer(t *testing.T) {
	d := New(func(out []float32) (int, error) {
		for i := range out {
			out[i] = 0.5
		}
		return len(out), nil
	})
	d.channels = 1

	buf := make([]byte, 64*4)
	d.process(buf, 64)

	for i := 0; i < 64; i++ {
		if got := floatAt(buf, i); got != 0.5 {
			t.Fatalf("sample %d: expected 0.5, got %f", i, got)
		}
	}
}

func TestProcessClampsToBufferCapacity(t *testing.T) {
	filled := 0
	d := New(func(out []float32) (int, error) {
		filled = len(out)
		return len(out), nil
	})
	d.channels = 1

	// Daemon claims 64 frames but hands a 32-sample buffer
	buf := make([]byte, 32*4)
	d.process(buf, 64)

	if filled != 32 {
		t.Errorf("expected fill of 32 samples, got %d", filled)
	}
}

func TestProcessRecordsFirstFillError(t *testing.T) {
	first := errors.New("decode blew up")
	calls := 0
	d := New(func(out []float32) (int, error) {
		calls++
		for i := range out {
			out[i] = 0.9
		}
		return 0, first
	})
	d.channels = 1

	buf := make([]byte, 16*4)
	d.process(buf, 16)

	if !errors.Is(d.Err(), first) {
		t.Fatalf("expected recorded fill error, got %v", d.Err())
	}

	// Output must degrade to silence, not carry partial garbage
	for i := 0; i < 16; i++ {
		if got := floatAt(buf, i); got != 0 {
			t.Fatalf("sample %d: expected silence after error, got %f", i, got)
		}
	}

	// After a failure the callback stops invoking fill and emits silence
	d.process(buf, 16)
	if calls != 1 {
		t.Errorf("expected fill not to be called after failure, got %d calls", calls)
	}
	for i := 0; i < 16; i++ {
		if got := floatAt(buf, i); got != 0 {
			t.Fatalf("sample %d: expected silence, got %f", i, got)
		}
	}
}

func TestProcessEmptyBuffer(t *testing.T) {
	d := New(func(out []float32) (int, error) {
		t.Fatal("fill must not be called for an empty buffer")
		return 0, nil
	})
	d.channels = 1

	d.process(nil, 0)
}

func TestErrStartsNil(t *testing.T) {
	d := New(func(out []float32) (int, error) { return len(out), nil })
	if d.Err() != nil {
		t.Errorf("expected nil error on fresh driver, got %v", d.Err())
	}
}

// ABOUTME: Decoder pipeline and buffer-fill service
// ABOUTME: Decodes packets to mono float32 at the target rate and drains them on demand
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/virtualmic/virtmic-go/pkg/audio"
	"github.com/virtualmic/virtmic-go/pkg/audio/decode"
	"github.com/virtualmic/virtmic-go/pkg/audio/resample"
)

// Consecutive undecodable packets tolerated before the stream is declared dead
const maxPacketSkips = 16

type openFunc func(path string) (decode.FormatReader, error)

// Source describes the audio file feeding the virtual microphone
type Source struct {
	Path   string
	Loop   bool
	Volume float32
}

// ClampVolume limits the volume multiplier to the supported [0, 2] range
func ClampVolume(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 2 {
		return 2
	}
	return v
}

// Pipeline decodes a media source into a FIFO of mono float32 samples at the
// target rate and drains it into fixed-size output frames on demand.
//
// After Open the pipeline is owned by the realtime callback thread: Fill and
// everything it reaches run there exclusively, so no locking is needed.
type Pipeline struct {
	source     Source
	targetRate int

	open      openFunc
	reader    decode.FormatReader
	format    audio.Format
	resampler *resample.Resampler

	buffer []float32
	head   int

	log *slog.Logger
}

// New creates a pipeline for the given source. The volume multiplier is
// clamped to [0, 2].
func New(source Source, targetRate int) *Pipeline {
	source.Volume = ClampVolume(source.Volume)

	return &Pipeline{
		source:     source,
		targetRate: targetRate,
		open:       decode.Open,
		log:        slog.Default(),
	}
}

// Open probes the source and binds a decoder to its audio track. It is also
// invoked internally on every loop restart, re-capturing the track metadata.
func (p *Pipeline) Open() error {
	reader, err := p.open(p.source.Path)
	if err != nil {
		return err
	}

	if p.reader != nil {
		p.reader.Close()
	}
	p.reader = reader
	p.format = reader.Format()

	if p.format.SampleRate != p.targetRate {
		p.resampler = resample.New(p.format.SampleRate, p.targetRate, 1)
	} else {
		p.resampler = nil
	}

	p.log.Info("audio source opened",
		"rate", p.format.SampleRate,
		"channels", p.format.Channels)

	return nil
}

// Format returns the source track format captured at the last (re)open
func (p *Pipeline) Format() audio.Format {
	return p.format
}

// Fill drains buffered samples into out, decoding more as needed. It always
// fills exactly len(out) samples: at end-of-stream the remainder is zeroed.
// It errors only on fatal decode failure.
func (p *Pipeline) Fill(out []float32) (int, error) {
	filled := 0

	for filled < len(out) {
		if p.buffered() == 0 {
			more, err := p.decodeMore()
			if err != nil {
				return filled, err
			}
			if !more {
				for i := filled; i < len(out); i++ {
					out[i] = 0
				}
				return len(out), nil
			}
			continue
		}

		n := copy(out[filled:], p.buffer[p.head:])
		p.head += n
		filled += n
	}

	return filled, nil
}

// Close releases the underlying media source
func (p *Pipeline) Close() error {
	if p.reader == nil {
		return nil
	}
	err := p.reader.Close()
	p.reader = nil
	return err
}

func (p *Pipeline) buffered() int {
	return len(p.buffer) - p.head
}

// decodeMore pulls packets until one decodes, skipping recoverable packet
// failures. Returns false when the stream is exhausted and not looping.
func (p *Pipeline) decodeMore() (bool, error) {
	if p.reader == nil {
		return false, errors.New("pipeline not opened")
	}

	skips := 0
	for {
		block, err := p.reader.NextBlock()
		if err == nil {
			p.append(block)
			return true, nil
		}

		var pe *decode.PacketError
		if errors.As(err, &pe) {
			skips++
			p.log.Warn("skipping undecodable packet", "error", err)
			if skips >= maxPacketSkips {
				return false, fmt.Errorf("giving up after %d consecutive packet failures: %w", skips, err)
			}
			continue
		}

		if err == io.EOF {
			if p.source.Loop {
				p.log.Info("looping audio", "path", p.source.Path)
				if err := p.Open(); err != nil {
					return false, err
				}
				return true, nil
			}
			return false, nil
		}

		return false, err
	}
}

// append downmixes a decoded block to mono, applies the volume multiplier,
// resamples the new samples to the target rate and queues them.
func (p *Pipeline) append(block audio.Block) {
	channels := block.Format.Channels
	if channels <= 0 || len(block.Samples) == 0 {
		return
	}

	frames := len(block.Samples) / channels
	mono := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for ch := 0; ch < channels; ch++ {
			sum += block.Samples[i*channels+ch]
		}
		mono[i] = sum / float32(channels) * p.source.Volume
	}

	if p.resampler != nil {
		mono = p.resampler.Resample(mono)
	}

	// Reclaim the drained prefix before growing the buffer
	if p.head > 0 {
		p.buffer = p.buffer[:copy(p.buffer, p.buffer[p.head:])]
		p.head = 0
	}
	p.buffer = append(p.buffer, mono...)
}

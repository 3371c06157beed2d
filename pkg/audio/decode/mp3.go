// ABOUTME: MP3 codec backend
// ABOUTME: Decodes MPEG audio to float32 blocks via go-mp3
package decode

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
	"github.com/virtualmic/virtmic-go/pkg/audio"
)

// mp3Reader decodes MPEG audio. go-mp3 always emits 16-bit stereo PCM at the
// source sample rate.
type mp3Reader struct {
	file    *os.File
	decoder *mp3.Decoder
	format  audio.Format
	buf     []byte
}

func newMP3Reader(f *os.File) (FormatReader, error) {
	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	return &mp3Reader{
		file:    f,
		decoder: decoder,
		format:  audio.Format{SampleRate: decoder.SampleRate(), Channels: 2},
		buf:     make([]byte, 8192),
	}, nil
}

func (r *mp3Reader) Format() audio.Format {
	return r.format
}

func (r *mp3Reader) NextBlock() (audio.Block, error) {
	n, err := r.decoder.Read(r.buf)
	if n == 0 {
		if err == nil || err == io.EOF {
			return audio.Block{}, io.EOF
		}
		return audio.Block{}, fmt.Errorf("mp3 decode: %w", err)
	}

	numSamples := n / 2
	samples := make([]float32, numSamples)
	for i := 0; i < numSamples; i++ {
		sample16 := int16(binary.LittleEndian.Uint16(r.buf[i*2:]))
		samples[i] = audio.SampleFromInt16(sample16)
	}

	return audio.Block{Format: r.format, Samples: samples}, nil
}

func (r *mp3Reader) Close() error {
	return r.file.Close()
}

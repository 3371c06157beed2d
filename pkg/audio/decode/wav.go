// ABOUTME: WAV codec backend
// ABOUTME: Decodes RIFF/WAVE PCM to float32 blocks via go-audio/wav
package decode

import (
	"fmt"
	"io"
	"os"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/virtualmic/virtmic-go/pkg/audio"
)

// wavReader decodes PCM WAV files chunk by chunk
type wavReader struct {
	file    *os.File
	decoder *wav.Decoder
	format  audio.Format
	buf     *gaudio.IntBuffer
}

func newWAVReader(f *os.File) (FormatReader, error) {
	decoder := wav.NewDecoder(f)
	decoder.ReadInfo()

	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid RIFF/WAVE container", ErrUnsupportedFormat)
	}
	if decoder.NumChans == 0 || decoder.SampleRate == 0 {
		return nil, ErrNoAudioTrack
	}

	format := audio.Format{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
	}

	return &wavReader{
		file:    f,
		decoder: decoder,
		format:  format,
		buf: &gaudio.IntBuffer{
			Data: make([]int, 4096),
			Format: &gaudio.Format{
				NumChannels: format.Channels,
				SampleRate:  format.SampleRate,
			},
			SourceBitDepth: int(decoder.BitDepth),
		},
	}, nil
}

func (r *wavReader) Format() audio.Format {
	return r.format
}

func (r *wavReader) NextBlock() (audio.Block, error) {
	n, err := r.decoder.PCMBuffer(r.buf)
	if n == 0 {
		if err != nil && err != io.EOF {
			return audio.Block{}, fmt.Errorf("wav decode: %w", err)
		}
		return audio.Block{}, io.EOF
	}

	bitDepth := int(r.decoder.BitDepth)
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = audio.SampleFromInt(int32(r.buf.Data[i]), bitDepth)
	}

	return audio.Block{Format: r.format, Samples: samples}, nil
}

func (r *wavReader) Close() error {
	return r.file.Close()
}

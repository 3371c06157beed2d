// ABOUTME: FLAC codec backend
// ABOUTME: Decodes FLAC frames to float32 blocks via mewkiz/flac
package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
	"github.com/virtualmic/virtmic-go/pkg/audio"
)

// flacReader decodes FLAC one frame at a time. A frame is the packet unit:
// a corrupt frame surfaces as a recoverable PacketError.
type flacReader struct {
	file     *os.File
	stream   *flac.Stream
	format   audio.Format
	bitDepth int
}

func newFLACReader(f *os.File) (FormatReader, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	info := stream.Info
	if info.NChannels == 0 {
		return nil, ErrNoAudioTrack
	}

	return &flacReader{
		file:     f,
		stream:   stream,
		format:   audio.Format{SampleRate: int(info.SampleRate), Channels: int(info.NChannels)},
		bitDepth: int(info.BitsPerSample),
	}, nil
}

func (r *flacReader) Format() audio.Format {
	return r.format
}

func (r *flacReader) NextBlock() (audio.Block, error) {
	frame, err := r.stream.ParseNext()
	if err != nil {
		if err == io.EOF {
			return audio.Block{}, io.EOF
		}
		return audio.Block{}, &PacketError{Err: err}
	}

	channels := r.format.Channels
	frames := int(frame.BlockSize)
	samples := make([]float32, 0, frames*channels)

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			sub := frame.Subframes[ch].Samples
			if i >= len(sub) {
				samples = append(samples, 0)
				continue
			}
			samples = append(samples, audio.SampleFromInt(sub[i], r.bitDepth))
		}
	}

	return audio.Block{Format: r.format, Samples: samples}, nil
}

func (r *flacReader) Close() error {
	return r.file.Close()
}

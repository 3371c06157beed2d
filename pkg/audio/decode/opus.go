// ABOUTME: Ogg Opus codec backend
// ABOUTME: Decodes Ogg Opus files to float32 blocks via the opusfile stream API
package decode

import (
	"fmt"
	"io"
	"os"

	"github.com/virtualmic/virtmic-go/pkg/audio"
	opus "gopkg.in/hraban/opus.v2"
)

// Opus frames decode to at most 120ms of audio per channel at 48kHz
const opusMaxFrameSize = 5760

// opusReader decodes Ogg Opus streams. Opus always decodes at 48kHz; the
// channel count is read from the OpusHead page before the stream is opened,
// since the opusfile wrapper does not expose it.
type opusReader struct {
	file   *os.File
	stream *opus.Stream
	format audio.Format
	pcm    []int16
}

func newOpusReader(f *os.File) (FormatReader, error) {
	channels, err := parseOpusHead(f)
	if err != nil {
		return nil, err
	}

	if _, err := f.Seek(0, 0); err != nil {
		return nil, fmt.Errorf("failed to rewind media source: %w", err)
	}

	stream, err := opus.NewStream(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	return &opusReader{
		file:   f,
		stream: stream,
		format: audio.Format{SampleRate: 48000, Channels: channels},
		pcm:    make([]int16, opusMaxFrameSize*channels),
	}, nil
}

func (r *opusReader) Format() audio.Format {
	return r.format
}

func (r *opusReader) NextBlock() (audio.Block, error) {
	// Read returns the number of decoded samples per channel
	n, err := r.stream.Read(r.pcm)
	if n == 0 {
		if err == nil || err == io.EOF {
			return audio.Block{}, io.EOF
		}
		return audio.Block{}, fmt.Errorf("opus decode: %w", err)
	}

	total := n * r.format.Channels
	samples := make([]float32, total)
	for i := 0; i < total; i++ {
		samples[i] = audio.SampleFromInt16(r.pcm[i])
	}

	return audio.Block{Format: r.format, Samples: samples}, nil
}

func (r *opusReader) Close() error {
	r.stream.Close()
	return r.file.Close()
}

// parseOpusHead reads the channel count from the OpusHead payload of the
// first Ogg page. Layout: 27-byte page header, segment table, then the
// 19-byte OpusHead with the channel count at offset 9.
func parseOpusHead(f *os.File) (int, error) {
	header := make([]byte, 27)
	if _, err := io.ReadFull(io.NewSectionReader(f, 0, 27), header); err != nil {
		return 0, fmt.Errorf("%w: truncated ogg page", ErrUnsupportedFormat)
	}
	if string(header[:4]) != "OggS" {
		return 0, fmt.Errorf("%w: not an ogg stream", ErrUnsupportedFormat)
	}

	nsegs := int(header[26])
	payloadOffset := int64(27 + nsegs)

	head := make([]byte, 19)
	if _, err := io.ReadFull(io.NewSectionReader(f, payloadOffset, 19), head); err != nil {
		return 0, fmt.Errorf("%w: truncated ogg payload", ErrUnsupportedFormat)
	}
	if string(head[:8]) != "OpusHead" {
		return 0, fmt.Errorf("%w: ogg stream is not opus", ErrUnsupportedFormat)
	}

	channels := int(head[9])
	if channels == 0 {
		return 0, ErrNoAudioTrack
	}
	return channels, nil
}

// ABOUTME: Container probing and the FormatReader interface
// ABOUTME: Picks a codec backend from the extension hint plus content sniffing
package decode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/virtualmic/virtmic-go/pkg/audio"
)

var (
	// ErrUnsupportedFormat is returned when the container cannot be identified
	// or no codec backend handles it
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrNoAudioTrack is returned when the container holds no decodable audio
	ErrNoAudioTrack = errors.New("no audio track found")
)

// PacketError marks a recoverable per-packet decode failure. Callers may log
// it and pull the next packet instead of aborting the stream.
type PacketError struct {
	Err error
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("packet decode failed: %v", e.Err)
}

func (e *PacketError) Unwrap() error {
	return e.Err
}

// FormatReader decodes a probed media source packet by packet
type FormatReader interface {
	// Format returns the source sample rate and channel count
	Format() audio.Format

	// NextBlock decodes the next packet into interleaved float32 samples.
	// Returns io.EOF at end-of-stream and *PacketError for recoverable
	// per-packet failures.
	NextBlock() (audio.Block, error)

	// Close releases the underlying media source
	Close() error
}

// Open probes the file at path and binds a decoder to its audio track.
// The container is identified by sniffing leading magic bytes, falling back
// to the file extension when the content is inconclusive.
func Open(path string) (FormatReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open media source: %w", err)
	}

	header := make([]byte, 12)
	n, _ := f.ReadAt(header, 0)

	kind := sniffContainer(header[:n])
	if kind == "" {
		kind = kindFromExtension(path)
	}

	if _, err := f.Seek(0, 0); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to rewind media source: %w", err)
	}

	var reader FormatReader
	switch kind {
	case "mp3":
		reader, err = newMP3Reader(f)
	case "flac":
		reader, err = newFLACReader(f)
	case "wav":
		reader, err = newWAVReader(f)
	case "ogg":
		reader, err = newOpusReader(f)
	default:
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(path))
	}

	if err != nil {
		f.Close()
		return nil, err
	}
	return reader, nil
}

// sniffContainer identifies the container from leading magic bytes.
// Returns "" when the header is inconclusive.
func sniffContainer(header []byte) string {
	if len(header) < 4 {
		return ""
	}

	switch {
	case string(header[:4]) == "fLaC":
		return "flac"
	case string(header[:4]) == "OggS":
		return "ogg"
	case len(header) >= 12 && string(header[:4]) == "RIFF" && string(header[8:12]) == "WAVE":
		return "wav"
	case string(header[:3]) == "ID3":
		return "mp3"
	case header[0] == 0xFF && header[1]&0xE0 == 0xE0:
		// Bare MPEG audio frame sync
		return "mp3"
	}
	return ""
}

// kindFromExtension maps the file extension hint to a container kind
func kindFromExtension(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return "mp3"
	case ".flac":
		return "flac"
	case ".wav", ".wave":
		return "wav"
	case ".ogg", ".oga", ".opus":
		return "ogg"
	}
	return ""
}

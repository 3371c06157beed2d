// ABOUTME: Package documentation for decode
// ABOUTME: Describes the container probing and codec backend layout
// Package decode probes audio containers and decodes them packet by packet.
//
// Open identifies the container from leading magic bytes (with the file
// extension as a fallback hint) and binds one of the codec backends:
//   - MP3 (hajimehoshi/go-mp3)
//   - FLAC (mewkiz/flac)
//   - WAV (go-audio/wav)
//   - Ogg Opus (hraban/opus)
//
// All backends implement FormatReader, which yields interleaved float32
// blocks at the source sample rate and channel count. End-of-stream is
// reported as io.EOF; recoverable per-packet failures are wrapped in
// PacketError so callers can skip them.
package decode

// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Block types and PCM sample conversion functions
// Package audio provides fundamental audio types shared by the decoder
// pipeline and the stream driver.
//
// This package defines core types used throughout virtmic:
//   - Format: Describes a decoded stream (sample rate, channels)
//   - Block: One decoded packet's worth of interleaved float32 samples
//
// It also provides conversions from integer PCM of various bit depths to the
// float32 sample representation used internally:
//
//	format := audio.Format{
//	    SampleRate: 44100,
//	    Channels:   2,
//	}
//
//	// Convert a 16-bit sample to float32
//	f := audio.SampleFromInt16(sample16)
package audio

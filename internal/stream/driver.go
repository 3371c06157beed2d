// ABOUTME: Realtime stream driver feeding the virtual sink via miniaudio
// ABOUTME: Registers the buffer-fill service as the playback data callback
package stream

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"unsafe"

	"github.com/gen2brain/malgo"
)

// FillFunc produces exactly len(out) samples per invocation. It runs on the
// audio daemon's realtime thread and must complete within the buffer deadline.
type FillFunc func(out []float32) (int, error)

// Driver connects to the realtime audio daemon and plays the pipeline's
// output into the provisioned null sink.
type Driver struct {
	fill     FillFunc
	channels int
	log      *slog.Logger

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu      sync.Mutex
	fillErr error
}

// New creates a driver around the given fill callback
func New(fill FillFunc) *Driver {
	return &Driver{
		fill: fill,
		log:  slog.Default(),
	}
}

// Start connects to the daemon, negotiates float32 output at the given rate
// and channel count, targets the named sink and begins streaming.
func (d *Driver) Start(sinkName string, sampleRate, channels int) error {
	d.channels = channels

	ctx, err := malgo.InitContext(
		[]malgo.Backend{malgo.BackendPulseaudio, malgo.BackendAlsa},
		malgo.ContextConfig{},
		func(message string) {
			d.log.Debug("audio daemon", "message", strings.TrimSpace(message))
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to audio daemon: %w", err)
	}
	d.ctx = ctx

	infos, err := ctx.Devices(malgo.Playback)
	if err != nil {
		d.Close()
		return fmt.Errorf("failed to enumerate playback devices: %w", err)
	}

	target, ok := findSink(infos, sinkName)
	if !ok {
		d.Close()
		return fmt.Errorf("playback device %q not found", sinkName)
	}

	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatF32
	config.Playback.Channels = uint32(channels)
	config.SampleRate = uint32(sampleRate)
	config.Playback.DeviceID = target.ID.Pointer()
	config.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			d.process(pOutput, int(frameCount))
		},
		Stop: func() {
			d.log.Info("stream stopped")
		},
	}

	device, err := malgo.InitDevice(ctx.Context, config, callbacks)
	if err != nil {
		d.Close()
		return fmt.Errorf("failed to initialize stream: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		d.Close()
		return fmt.Errorf("failed to start stream: %w", err)
	}
	d.device = device

	d.log.Info("stream connected",
		"target", sinkName,
		"rate", sampleRate,
		"channels", channels)

	return nil
}

// process runs on the daemon's realtime thread. A fill failure is recorded
// once for the main loop to observe; the callback itself degrades to silence
// instead of aborting.
func (d *Driver) process(out []byte, frameCount int) {
	if len(out) == 0 {
		return
	}

	n := frameCount * d.channels
	if max := len(out) / 4; n > max {
		n = max
	}
	samples := unsafe.Slice((*float32)(unsafe.Pointer(&out[0])), n)

	if d.Err() != nil {
		zero(samples)
		return
	}

	if _, err := d.fill(samples); err != nil {
		d.mu.Lock()
		if d.fillErr == nil {
			d.fillErr = err
		}
		d.mu.Unlock()
		zero(samples)
	}
}

// Err returns the first fatal fill error observed on the realtime thread
func (d *Driver) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fillErr
}

// Close stops the stream and disconnects from the daemon
func (d *Driver) Close() {
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
}

func zero(samples []float32) {
	for i := range samples {
		samples[i] = 0
	}
}

// findSink locates the playback device backing the provisioned null sink.
// PulseAudio exposes the sink name as the device id and the description as
// the display name, so both are matched.
func findSink(infos []malgo.DeviceInfo, sinkName string) (malgo.DeviceInfo, bool) {
	for _, info := range infos {
		if id, err := hexToASCII(info.ID.String()); err == nil {
			if strings.Contains(strings.TrimRight(id, "\x00"), sinkName) {
				return info, true
			}
		}
		if strings.Contains(info.Name(), sinkName) {
			return info, true
		}
	}
	return malgo.DeviceInfo{}, false
}

// hexToASCII converts a hexadecimal device id to its ASCII form
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

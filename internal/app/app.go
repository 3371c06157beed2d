// ABOUTME: Main application orchestration
// ABOUTME: Wires provisioner, decoder pipeline and stream driver with guaranteed teardown
package app

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/virtualmic/virtmic-go/internal/device"
	"github.com/virtualmic/virtmic-go/internal/pipeline"
	"github.com/virtualmic/virtmic-go/internal/stream"
)

const (
	// TargetRate is the fixed output rate of the virtual microphone
	TargetRate = 48000

	// Channels is fixed to mono for microphone semantics
	Channels = 1

	// How often the main loop polls the cancellation flag and driver state
	pollInterval = 100 * time.Millisecond
)

// Config holds the runtime options of one virtual microphone session
type Config struct {
	File    string
	Loop    bool
	Name    string
	Volume  float32
	Monitor bool
}

// Run provisions the virtual device chain, starts the stream and blocks until
// cancellation or a fatal stream error. All provisioned modules are released
// on every exit path.
func Run(cfg Config) error {
	log := slog.Default()

	if _, err := os.Stat(cfg.File); err != nil {
		return fmt.Errorf("audio file not found: %s", cfg.File)
	}

	provisioner := device.NewProvisioner(TargetRate, Channels)
	handle, err := provisioner.Provision(cfg.Name, cfg.Monitor)
	if err != nil {
		return err
	}
	defer handle.Close()

	pipe := pipeline.New(pipeline.Source{
		Path:   cfg.File,
		Loop:   cfg.Loop,
		Volume: cfg.Volume,
	}, TargetRate)
	if err := pipe.Open(); err != nil {
		return err
	}
	defer pipe.Close()

	// From here on the pipeline is owned by the daemon's realtime thread
	driver := stream.New(pipe.Fill)
	if err := driver.Start(handle.SinkName(), TargetRate, Channels); err != nil {
		return err
	}
	defer driver.Close()

	log.Info("virtual microphone active",
		"source", handle.SourceName(),
		"file", cfg.File,
		"loop", cfg.Loop,
		"volume", cfg.Volume)
	log.Info("select the source as your microphone, press Ctrl+C to stop",
		"source", handle.SourceName())

	// Process-wide cancellation flag: written by the signal handler,
	// polled by the main loop.
	var cancelled atomic.Bool
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig := <-sigCh
		log.Info("shutting down", "signal", sig.String())
		cancelled.Store(true)
	}()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		if cancelled.Load() {
			return nil
		}
		if err := driver.Err(); err != nil {
			return fmt.Errorf("buffer fill failed: %w", err)
		}
	}

	return nil
}

// ABOUTME: Virtual device provisioner driving the pactl control utility
// ABOUTME: Creates the null-sink/remap-source/loopback chain with rollback and reverse teardown
package device

import (
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

var (
	// ErrSinkCreate is returned when the null sink cannot be loaded
	ErrSinkCreate = errors.New("failed to create null sink")

	// ErrSourceCreate is returned when the remap source cannot be loaded;
	// the already-created sink has been rolled back
	ErrSourceCreate = errors.New("failed to create remap source")
)

// Runner executes one daemon control command and returns its stdout.
// Tests substitute a recording fake; production shells out to pactl.
type Runner interface {
	Run(args ...string) ([]byte, error)
}

// execRunner invokes the pactl binary
type execRunner struct{}

func (execRunner) Run(args ...string) ([]byte, error) {
	out, err := exec.Command("pactl", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pactl %s: %s", args[0], strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("pactl %s: %w", args[0], err)
	}
	return out, nil
}

// Provisioner creates virtual microphone device chains
type Provisioner struct {
	runner   Runner
	rate     int
	channels int
	log      *slog.Logger
}

// NewProvisioner creates a provisioner using the system pactl utility
func NewProvisioner(rate, channels int) *Provisioner {
	return &Provisioner{
		runner:   execRunner{},
		rate:     rate,
		channels: channels,
		log:      slog.Default(),
	}
}

// Handle tracks the loaded modules of one virtual microphone. Sink and remap
// source are always both present; the loopback is optional. Close unloads in
// reverse order exactly once.
type Handle struct {
	runner Runner
	log    *slog.Logger

	sinkID      uint32
	sourceID    uint32
	loopbackID  uint32
	hasLoopback bool

	sinkName   string
	sourceName string

	teardown sync.Once
}

// Provision creates the virtual device chain for the given name:
// a null sink, a remap source exposing the sink's monitor as a capture
// device and, when monitor is requested, a loopback to the default output.
// The sink and remap source are all-or-nothing; loopback failure is non-fatal.
func (p *Provisioner) Provision(name string, monitor bool) (*Handle, error) {
	sinkName := name + "_sink"
	monitorName := sinkName + ".monitor"

	out, err := p.runner.Run(
		"load-module", "module-null-sink",
		"sink_name="+sinkName,
		fmt.Sprintf("sink_properties=device.description=%q", name+"_Output"),
		fmt.Sprintf("rate=%d", p.rate),
		fmt.Sprintf("channels=%d", p.channels),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkCreate, err)
	}
	sinkID, err := parseModuleID(out)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSinkCreate, err)
	}
	p.log.Info("created null sink", "module", sinkID, "sink", sinkName)

	out, err = p.runner.Run(
		"load-module", "module-remap-source",
		"source_name="+name,
		"master="+monitorName,
		fmt.Sprintf("source_properties=device.description=%q", name),
	)
	if err == nil {
		var parseErr error
		if _, parseErr = parseModuleID(out); parseErr != nil {
			err = parseErr
		}
	}
	if err != nil {
		// Roll back the sink; nothing may stay provisioned on failure
		if _, unloadErr := p.runner.Run("unload-module", strconv.FormatUint(uint64(sinkID), 10)); unloadErr != nil {
			p.log.Warn("sink rollback failed", "module", sinkID, "error", unloadErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrSourceCreate, err)
	}
	sourceID, _ := parseModuleID(out)
	p.log.Info("created remap source", "module", sourceID, "source", name)

	h := &Handle{
		runner:     p.runner,
		log:        p.log,
		sinkID:     sinkID,
		sourceID:   sourceID,
		sinkName:   sinkName,
		sourceName: name,
	}

	if monitor {
		out, err = p.runner.Run(
			"load-module", "module-loopback",
			"source="+monitorName,
			"latency_msec=1",
		)
		if err != nil {
			p.log.Warn("failed to create loopback, audio will not play through speakers", "error", err)
		} else if loopbackID, parseErr := parseModuleID(out); parseErr != nil {
			p.log.Warn("failed to parse loopback module id", "error", parseErr)
		} else {
			h.loopbackID = loopbackID
			h.hasLoopback = true
			p.log.Info("created loopback", "module", loopbackID)
		}
	}

	p.log.Info("virtual microphone created, select it in your application", "source", name)

	return h, nil
}

// SinkName returns the name of the null sink the stream driver should target
func (h *Handle) SinkName() string {
	return h.sinkName
}

// SourceName returns the capture device name applications see
func (h *Handle) SourceName() string {
	return h.sourceName
}

// Close unloads the provisioned modules in reverse order: loopback, remap
// source, then sink. Each unload is best-effort; Close runs at most once.
func (h *Handle) Close() {
	h.teardown.Do(func() {
		if h.hasLoopback {
			h.unload("loopback", h.loopbackID)
		}
		h.unload("remap source", h.sourceID)
		h.unload("null sink", h.sinkID)
	})
}

func (h *Handle) unload(what string, id uint32) {
	h.log.Info("cleaning up "+what, "module", id)
	if _, err := h.runner.Run("unload-module", strconv.FormatUint(uint64(id), 10)); err != nil {
		h.log.Warn("failed to unload "+what, "module", id, "error", err)
	}
}

// parseModuleID extracts the numeric module id pactl prints on success
func parseModuleID(out []byte) (uint32, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(string(out)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse module id from %q", strings.TrimSpace(string(out)))
	}
	return uint32(id), nil
}

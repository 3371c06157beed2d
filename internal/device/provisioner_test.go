// ABOUTME: Tests for the virtual device provisioner
// ABOUTME: Uses a recording fake control utility to verify rollback and teardown order
package device

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeRunner records every control command and serves scripted responses
type fakeRunner struct {
	calls  [][]string
	nextID uint32
	failOn map[string]error // keyed by module name or "unload-module"
	badOut map[string]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		nextID: 100,
		failOn: make(map[string]error),
		badOut: make(map[string]string),
	}
}

func (r *fakeRunner) Run(args ...string) ([]byte, error) {
	call := make([]string, len(args))
	copy(call, args)
	r.calls = append(r.calls, call)

	key := args[0]
	if key == "load-module" {
		key = args[1]
	}

	if err, ok := r.failOn[key]; ok {
		return nil, err
	}
	if out, ok := r.badOut[key]; ok {
		return []byte(out), nil
	}
	if args[0] == "unload-module" {
		return nil, nil
	}

	r.nextID++
	return []byte(fmt.Sprintf("%d\n", r.nextID)), nil
}

// loadedModules replays the call log and returns the ids still loaded
func (r *fakeRunner) loadedModules() []string {
	loaded := make(map[string]bool)
	next := 100
	for _, call := range r.calls {
		switch call[0] {
		case "load-module":
			if _, failed := r.failOn[call[1]]; failed {
				continue
			}
			next++
			loaded[fmt.Sprintf("%d", next)] = true
		case "unload-module":
			delete(loaded, call[1])
		}
	}
	var ids []string
	for id := range loaded {
		ids = append(ids, id)
	}
	return ids
}

func newTestProvisioner(r Runner) *Provisioner {
	p := NewProvisioner(48000, 1)
	p.runner = r
	return p
}

func TestProvisionCreatesSinkAndSource(t *testing.T) {
	runner := newFakeRunner()
	p := newTestProvisioner(runner)

	h, err := p.Provision("VirtualMic", false)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	if h.SinkName() != "VirtualMic_sink" {
		t.Errorf("expected sink name VirtualMic_sink, got %s", h.SinkName())
	}
	if h.SourceName() != "VirtualMic" {
		t.Errorf("expected source name VirtualMic, got %s", h.SourceName())
	}
	if h.hasLoopback {
		t.Error("expected no loopback without monitor mode")
	}

	if len(runner.calls) != 2 {
		t.Fatalf("expected 2 control calls, got %d: %v", len(runner.calls), runner.calls)
	}

	sink := strings.Join(runner.calls[0], " ")
	if !strings.Contains(sink, "module-null-sink") ||
		!strings.Contains(sink, "sink_name=VirtualMic_sink") ||
		!strings.Contains(sink, "rate=48000") ||
		!strings.Contains(sink, "channels=1") {
		t.Errorf("unexpected sink load call: %s", sink)
	}

	source := strings.Join(runner.calls[1], " ")
	if !strings.Contains(source, "module-remap-source") ||
		!strings.Contains(source, "source_name=VirtualMic") ||
		!strings.Contains(source, "master=VirtualMic_sink.monitor") {
		t.Errorf("unexpected source load call: %s", source)
	}
}

func TestProvisionSinkFailureRollsBackNothing(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn["module-null-sink"] = errors.New("daemon not running")
	p := newTestProvisioner(runner)

	_, err := p.Provision("VirtualMic", false)
	if !errors.Is(err, ErrSinkCreate) {
		t.Fatalf("expected ErrSinkCreate, got %v", err)
	}

	for _, call := range runner.calls {
		if call[0] == "unload-module" {
			t.Errorf("unexpected unload call after sink failure: %v", call)
		}
	}
}

func TestProvisionAtomicityOnSourceFailure(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn["module-remap-source"] = errors.New("no such master")
	p := newTestProvisioner(runner)

	_, err := p.Provision("VirtualMic", false)
	if !errors.Is(err, ErrSourceCreate) {
		t.Fatalf("expected ErrSourceCreate, got %v", err)
	}

	if loaded := runner.loadedModules(); len(loaded) != 0 {
		t.Errorf("expected no modules left loaded, found %v", loaded)
	}
}

func TestProvisionUnparsableSourceOutputRollsBackSink(t *testing.T) {
	runner := newFakeRunner()
	runner.badOut["module-remap-source"] = "not a module id"
	p := newTestProvisioner(runner)

	_, err := p.Provision("VirtualMic", false)
	if !errors.Is(err, ErrSourceCreate) {
		t.Fatalf("expected ErrSourceCreate, got %v", err)
	}

	last := runner.calls[len(runner.calls)-1]
	if last[0] != "unload-module" || last[1] != "101" {
		t.Errorf("expected sink 101 rollback, got %v", last)
	}
}

func TestProvisionLoopbackFailureIsNonFatal(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn["module-loopback"] = errors.New("no default output")
	p := newTestProvisioner(runner)

	h, err := p.Provision("VirtualMic", true)
	if err != nil {
		t.Fatalf("expected loopback failure to be non-fatal, got %v", err)
	}

	if h.hasLoopback {
		t.Error("expected loopback id to be absent after failure")
	}
	if h.sinkID == 0 || h.sourceID == 0 {
		t.Error("expected valid sink and source ids")
	}

	// Sink and source must survive a failed loopback
	h.Close()
	if loaded := runner.loadedModules(); len(loaded) != 0 {
		t.Errorf("expected clean teardown, found %v", loaded)
	}
}

func TestTeardownReverseOrder(t *testing.T) {
	runner := newFakeRunner()
	p := newTestProvisioner(runner)

	h, err := p.Provision("VirtualMic", true)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	// Loads were sink=101, source=102, loopback=103
	h.Close()

	var unloads []string
	for _, call := range runner.calls {
		if call[0] == "unload-module" {
			unloads = append(unloads, call[1])
		}
	}

	expected := []string{"103", "102", "101"}
	if len(unloads) != len(expected) {
		t.Fatalf("expected %d unloads, got %v", len(expected), unloads)
	}
	for i := range expected {
		if unloads[i] != expected[i] {
			t.Errorf("unload %d: expected module %s, got %s", i, expected[i], unloads[i])
		}
	}
}

func TestTeardownRunsExactlyOnce(t *testing.T) {
	runner := newFakeRunner()
	p := newTestProvisioner(runner)

	h, err := p.Provision("VirtualMic", false)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	h.Close()
	h.Close()
	h.Close()

	unloads := 0
	for _, call := range runner.calls {
		if call[0] == "unload-module" {
			unloads++
		}
	}
	if unloads != 2 {
		t.Errorf("expected exactly 2 unloads across repeated Close calls, got %d", unloads)
	}
}

func TestTeardownContinuesPastUnloadFailures(t *testing.T) {
	runner := newFakeRunner()
	runner.failOn["unload-module"] = errors.New("module gone already")
	p := newTestProvisioner(runner)

	h, err := p.Provision("VirtualMic", true)
	if err != nil {
		t.Fatalf("provision failed: %v", err)
	}

	// Must not panic or stop early; all three unloads attempted
	h.Close()

	unloads := 0
	for _, call := range runner.calls {
		if call[0] == "unload-module" {
			unloads++
		}
	}
	if unloads != 3 {
		t.Errorf("expected all 3 unloads attempted despite failures, got %d", unloads)
	}
}

func TestParseModuleID(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		id      uint32
		wantErr bool
	}{
		{"plain", "42", 42, false},
		{"trailing newline", "536\n", 536, false},
		{"padded", "  17  ", 17, false},
		{"garbage", "Failure: no such module", 0, true},
		{"empty", "", 0, true},
		{"negative", "-5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := parseModuleID([]byte(tt.out))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id != tt.id {
				t.Errorf("expected %d, got %d", tt.id, id)
			}
		})
	}
}

package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// pushRecorder records push invocations per type.
type pushRecorder struct {
	mu    sync.Mutex
	calls map[string]int
}

func newPushRecorder() *pushRecorder {
	return &pushRecorder{calls: make(map[string]int)}
}

func (r *pushRecorder) push(_ context.Context, typeName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls[typeName]++
	return nil
}

func (r *pushRecorder) count(typeName string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[typeName]
}

// startTestDaemon creates the type directories and a running daemon with
// a short debounce window.
func startTestDaemon(t *testing.T, types ...string) (string, *pushRecorder, *Daemon) {
	t.Helper()

	dir := t.TempDir()
	for _, typeName := range types {
		if err := os.MkdirAll(filepath.Join(dir, typeName), 0755); err != nil {
			t.Fatal(err)
		}
	}

	recorder := newPushRecorder()
	d, err := New(Config{Dir: dir, Types: types, Debounce: 50 * time.Millisecond}, recorder.push, nil)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("failed to start daemon: %v", err)
	}
	t.Cleanup(func() { d.Stop() })

	return dir, recorder, d
}

// waitFor polls until cond holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestBurstOfWritesCoalescesIntoOnePush(t *testing.T) {
	dir, recorder, _ := startTestDaemon(t, "types")

	for i := 0; i < 5; i++ {
		name := filepath.Join(dir, "types", "item"+string(rune('a'+i))+".json")
		if err := os.WriteFile(name, []byte("{}"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if !waitFor(t, func() bool { return recorder.count("types") >= 1 }) {
		t.Fatal("push never triggered")
	}
	// Allow a full extra window to catch spurious additional pushes.
	time.Sleep(150 * time.Millisecond)
	if got := recorder.count("types"); got != 1 {
		t.Errorf("burst triggered %d pushes, want 1", got)
	}
}

func TestChangesInDifferentTypesPushSeparately(t *testing.T) {
	dir, recorder, _ := startTestDaemon(t, "types", "layouts")

	if err := os.WriteFile(filepath.Join(dir, "types", "a.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "layouts", "b.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	ok := waitFor(t, func() bool {
		return recorder.count("types") >= 1 && recorder.count("layouts") >= 1
	})
	if !ok {
		t.Errorf("pushes: types=%d layouts=%d, want one each",
			recorder.count("types"), recorder.count("layouts"))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	_, _, d := startTestDaemon(t, "types")

	if !d.IsRunning() {
		t.Fatal("daemon should be running after Start")
	}
	if err := d.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if d.IsRunning() {
		t.Error("daemon still running after Stop")
	}
	if err := d.Stop(); err != nil {
		t.Errorf("second Stop should be a no-op, got %v", err)
	}
}

func TestStartRequiresWatchableDirectory(t *testing.T) {
	recorder := newPushRecorder()
	d, err := New(Config{Dir: t.TempDir(), Types: []string{"types"}}, recorder.push, nil)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}
	if err := d.Start(context.Background()); err == nil {
		d.Stop()
		t.Error("Start should fail when no type directory exists")
	}
}

func TestNewRequiresPushFunc(t *testing.T) {
	if _, err := New(Config{Dir: t.TempDir()}, nil, nil); err == nil {
		t.Error("New should reject a nil push function")
	}
}

package telemetry

import (
	"os"
	"sync"
)

// DefaultDir is where events.jsonl is written unless Configure says otherwise.
const DefaultDir = ".agent"

var (
	mu             sync.RWMutex
	observeEnabled bool
	eventsDir      = DefaultDir
)

func init() {
	// Read once at process start; Configure overrides it.
	observeEnabled = os.Getenv("AGT_OBSERVE_JSON") == "1"
}

// Configure sets whether events are written and the directory that holds events.jsonl.
// An empty dir keeps the current one.
func Configure(observe bool, dir string) {
	mu.Lock()
	defer mu.Unlock()
	observeEnabled = observe
	if dir != "" {
		eventsDir = dir
	}
}

// ObserveEnabled reports whether JSONL emission is on.
func ObserveEnabled() bool {
	// Allow tests to enable mid-run via env override.
	if os.Getenv("AGT_OBSERVE_JSON") == "1" {
		return true
	}
	mu.RLock()
	defer mu.RUnlock()
	return observeEnabled
}

// Dir returns the events directory.
func Dir() string {
	mu.RLock()
	defer mu.RUnlock()
	return eventsDir
}

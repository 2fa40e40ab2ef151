package app

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/vk/burstgraph/internal/apps"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// SetupAppTest creates a new app instance for system testing. Logs are
// captured at debug level in text format and printed when BURSTGRAPH_TEST_LOGS
// is "true".
func SetupAppTest(t *testing.T, cfg *Config, registry *apps.Registry) (*App, *SafeBuffer) {
	t.Helper()

	logBuffer := &SafeBuffer{}
	cfg.LogLevel = "debug"
	cfg.LogFormat = "text"
	testApp := NewApp(logBuffer, cfg, registry)

	t.Cleanup(func() {
		if os.Getenv("BURSTGRAPH_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}

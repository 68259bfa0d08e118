package app

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/componentry/internal/registry"
	"github.com/vk/componentry/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Set
// COMPONENTRY_TEST_LOGS=true to print the captured log on cleanup.
func SetupAppTest(t *testing.T, appConfig *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	appConfig.LogLevel = "debug"
	testApp, err := NewApp(logBuffer, appConfig, modules...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = testApp.Close()
		if os.Getenv("COMPONENTRY_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}

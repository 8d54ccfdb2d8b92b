package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reloadResult struct {
	cfg *Config
	err error
}

func startWatcher(t *testing.T, loader *Loader) <-chan reloadResult {
	t.Helper()
	results := make(chan reloadResult, 8)
	w, err := NewWatcher(WatcherConfig{
		Loader:   loader,
		Debounce: 100 * time.Millisecond,
		OnReload: func(cfg *Config, err error) {
			results <- reloadResult{cfg, err}
		},
	})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)
	return results
}

func waitReload(t *testing.T, results <-chan reloadResult) reloadResult {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
		return reloadResult{}
	}
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	env := validEnv()
	env[EnvServerName] = "From Environment"
	path := writeEnvFile(t, "MCP_SERVER_NAME=First\n")
	results := startWatcher(t, newTestLoader(env, path))

	require.NoError(t, os.WriteFile(path, []byte("MCP_SERVER_NAME=Second\n"), 0o600))

	r := waitReload(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, "Second", r.cfg.Server.Name)
}

func TestWatcher_PicksUpCreatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	results := startWatcher(t, newTestLoader(validEnv(), path))

	require.NoError(t, os.WriteFile(path, []byte("MCP_SERVER_PORT=9100\n"), 0o600))

	r := waitReload(t, results)
	require.NoError(t, r.err)
	assert.Equal(t, 9100, r.cfg.Server.Port)
}

func TestWatcher_ReportsInvalidReload(t *testing.T) {
	path := writeEnvFile(t, "MCP_SERVER_PORT=8000\n")
	results := startWatcher(t, newTestLoader(validEnv(), path))

	require.NoError(t, os.WriteFile(path, []byte("MCP_SERVER_PORT=99999\n"), 0o600))

	r := waitReload(t, results)
	assert.Nil(t, r.cfg)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, r.err, &cfgErr)
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	path := writeEnvFile(t, "MCP_SERVER_NAME=First\n")
	results := startWatcher(t, newTestLoader(validEnv(), path))

	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), "notes.txt"), []byte("x"), 0o600))

	select {
	case r := <-results:
		t.Fatalf("unexpected reload: %+v", r)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestNewWatcher_Validation(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{})
	assert.Error(t, err)

	_, err = NewWatcher(WatcherConfig{Loader: newTestLoader(validEnv())})
	assert.Error(t, err)
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w, err := NewWatcher(WatcherConfig{Loader: newTestLoader(validEnv(), writeEnvFile(t, ""))})
	require.NoError(t, err)
	require.NoError(t, w.Start())
	w.Stop()
	w.Stop()
}

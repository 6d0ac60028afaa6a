package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.Pretty)
	assert.Equal(t, 1, cfg.Exec.MaxQueue)
	assert.Equal(t, uint64(1), cfg.Exec.MainQueueMask)
	require.Len(t, cfg.Exec.Workers, 1)
	assert.Equal(t, "worker-0", cfg.Exec.Workers[0].Name)
	assert.Equal(t, uint64(2), cfg.Exec.Workers[0].AllowedQueues)
	assert.Equal(t, uint32(64), cfg.Exec.Workers[0].IdleSpinBudget)
	assert.False(t, cfg.Exec.Workers[0].PinOSThread)
}

func TestLoadWithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/config.yaml"

	configContent := `
loglevel: "warn"
pretty: true

exec:
  maxqueue: 2
  mainqueuemask: 1
  workers:
    - name: "io"
      allowedqueues: 2
      idlespinbudget: 32
    - name: "cpu"
      allowedqueues: 4
      idlespinbudget: 128
`
	require.NoError(t, os.WriteFile(configPath, []byte(configContent), 0644))

	originalDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.Pretty)
	assert.Equal(t, 2, cfg.Exec.MaxQueue)
	require.Len(t, cfg.Exec.Workers, 2)
	assert.Equal(t, "io", cfg.Exec.Workers[0].Name)
	assert.Equal(t, "cpu", cfg.Exec.Workers[1].Name)
	assert.Equal(t, uint32(128), cfg.Exec.Workers[1].IdleSpinBudget)
}

func TestWorkerConfigFields(t *testing.T) {
	cfg := WorkerConfig{
		Name:           "worker-1",
		AllowedQueues:  2,
		IdleSpinBudget: 64,
		PinOSThread:    true,
	}

	assert.Equal(t, "worker-1", cfg.Name)
	assert.Equal(t, uint64(2), cfg.AllowedQueues)
	assert.True(t, cfg.PinOSThread)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	elerrors "github.com/arthur-debert/elevlink/pkg/errors"
)

func TestLoad(t *testing.T) {
	t.Run("loads_defaults", func(t *testing.T) {
		t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "", cfg.Worker.Executable)
		assert.Equal(t, []string{"sudo", "-n"}, cfg.Worker.ElevateCommand)
		assert.Equal(t, 30*time.Second, cfg.Worker.InitTimeout)
		assert.Equal(t, filepath.Join("/run/user/1000", "elevlink"), cfg.IPC.SocketDir)
		assert.Equal(t, []string{"windows"}, cfg.Platform.ElevatedPlatforms)
		assert.Contains(t, cfg.Platform.IncompatibleGames, "skyrimse")
		assert.Len(t, cfg.Platform.IncompatibleGames, 5)
	})

	t.Run("file_overrides_defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "elevlink.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
[worker]
elevate_command = ["pkexec"]
init_timeout = "5s"

[ipc]
socket_dir = "/tmp/sockets"
`), 0644))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, []string{"pkexec"}, cfg.Worker.ElevateCommand)
		assert.Equal(t, 5*time.Second, cfg.Worker.InitTimeout)
		assert.Equal(t, "/tmp/sockets", cfg.IPC.SocketDir)
		// untouched sections keep their defaults
		assert.Equal(t, []string{"windows"}, cfg.Platform.ElevatedPlatforms)
	})

	t.Run("env_overrides_file", func(t *testing.T) {
		t.Setenv("ELEVLINK_WORKER_INIT_TIMEOUT", "2m")
		t.Setenv("ELEVLINK_WORKER_EXECUTABLE", "/opt/elevlink/worker")
		t.Setenv("ELEVLINK_PLATFORM_ELEVATED_PLATFORMS", "windows,linux")

		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, 2*time.Minute, cfg.Worker.InitTimeout)
		assert.Equal(t, "/opt/elevlink/worker", cfg.Worker.Executable)
		assert.Equal(t, []string{"windows", "linux"}, cfg.Platform.ElevatedPlatforms)
	})

	t.Run("missing_file_is_an_error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
		require.Error(t, err)
		assert.True(t, elerrors.IsErrorCode(err, elerrors.ErrConfigLoad))
	})

	t.Run("non_positive_timeout_rejected", func(t *testing.T) {
		t.Setenv("ELEVLINK_WORKER_INIT_TIMEOUT", "0s")

		_, err := Load("")
		require.Error(t, err)
		assert.True(t, elerrors.IsErrorCode(err, elerrors.ErrConfigValid))
	})
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "worker.init_timeout", envKey("ELEVLINK_WORKER_INIT_TIMEOUT"))
	assert.Equal(t, "ipc.socket_dir", envKey("ELEVLINK_IPC_SOCKET_DIR"))
}

func TestDump(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")

	cfg, err := Load("")
	require.NoError(t, err)

	out, err := Dump(cfg)
	require.NoError(t, err)
	assert.Contains(t, string(out), "init_timeout")
	assert.Contains(t, string(out), "30s")
	assert.Contains(t, string(out), "/run/user/1000/elevlink")

	_, err = Dump(&Config{})
	assert.Error(t, err)
}

func TestDumpMarshalFailureIsCoded(t *testing.T) {
	_, err := Dump(&Config{Raw: map[string]interface{}{"broken": make(chan int)}})
	require.Error(t, err)
	assert.True(t, elerrors.IsErrorCode(err, elerrors.ErrInternal))
}

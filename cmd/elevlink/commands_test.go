package elevlink

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/elevlink/pkg/config"
	"github.com/arthur-debert/elevlink/pkg/elevation"
	"github.com/arthur-debert/elevlink/pkg/errors"
	"github.com/arthur-debert/elevlink/pkg/testutil"
	"github.com/arthur-debert/elevlink/pkg/ui"
	"github.com/arthur-debert/elevlink/pkg/worker"
)

// inProcessLauncher runs the worker as a goroutine of the test binary
type inProcessLauncher struct {
	mu       sync.Mutex
	launches int
}

type inProcess struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func (p *inProcess) PID() int              { return os.Getpid() }
func (p *inProcess) Done() <-chan struct{} { return p.done }
func (p *inProcess) Err() error            { return p.err }
func (p *inProcess) Kill() error           { p.cancel(); return nil }

func (l *inProcessLauncher) Launch(b elevation.Bootstrap) (elevation.Process, error) {
	l.mu.Lock()
	l.launches++
	l.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	p := &inProcess{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.err = worker.Run(ctx, worker.Options{Address: b.Address, ChannelID: b.ChannelID, LogLevel: b.LogLevel})
	}()
	return p, nil
}

func (l *inProcessLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

// setupEnv isolates config, logs and sockets
func setupEnv(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	t.Setenv("ELEVLINK_IPC_SOCKET_DIR", testutil.SocketDir(t))
	t.Setenv("ELEVLINK_WORKER_INIT_TIMEOUT", "10s")
}

func run(t *testing.T, launcher *inProcessLauncher, args ...string) (string, error) {
	t.Helper()
	factory := func(*config.Config) elevation.Launcher { return launcher }
	cmd := newRootCmd(factory)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDeployCmd(t *testing.T) {
	setupEnv(t)
	root := t.TempDir()
	install := filepath.Join(root, "mods")
	data := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(filepath.Join(install, "a"), 0755))
	require.NoError(t, os.MkdirAll(data, 0755))
	testutil.CreateSymlink(t, "/mods/old.esp", filepath.Join(data, "old.esp"))
	testutil.CreateSymlink(t, filepath.Join(install, "a", "done.esp"), filepath.Join(data, "done.esp"))

	manifest := filepath.Join(root, "deploy.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte(strings.Join([]string{
		"install_path: " + install,
		"data_path: " + data,
		"links:",
		"  - source: " + filepath.Join(install, "a", "a.esp"),
		"    destination: " + filepath.Join(data, "a.esp"),
		"  - source: " + filepath.Join(install, "a", "b.nif"),
		"    destination: " + filepath.Join(data, "meshes", "b.nif"),
		"  - source: " + filepath.Join(install, "a", "done.esp"),
		"    destination: " + filepath.Join(data, "done.esp"),
		"remove:",
		"  - " + filepath.Join(data, "old.esp"),
		"",
	}, "\n")), 0644))

	launcher := &inProcessLauncher{}
	metricsFile := filepath.Join(root, "elevlink.prom")
	out, err := run(t, launcher, "--format", "json", "--metrics-file", metricsFile, "deploy", manifest)
	require.NoError(t, err)
	assert.Equal(t, 1, launcher.count())

	var report ui.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.OK)
	assert.Equal(t, []ui.Field{
		{Name: "linked", Value: "2"},
		{Name: "already linked", Value: "1"},
		{Name: "removed", Value: "1"},
	}, report.Fields)

	// finalize waited for the worker, so the links exist now
	testutil.AssertSymlink(t, filepath.Join(data, "a.esp"), filepath.Join(install, "a", "a.esp"))
	testutil.AssertSymlink(t, filepath.Join(data, "meshes", "b.nif"), filepath.Join(install, "a", "b.nif"))
	testutil.AssertNoPath(t, filepath.Join(data, "old.esp"))

	prom, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "elevlink_")
}

func TestPurgeCmd(t *testing.T) {
	setupEnv(t)
	root := t.TempDir()
	install := filepath.Join(root, "mods")
	data := filepath.Join(root, "data")
	require.NoError(t, os.MkdirAll(data, 0755))
	ours := filepath.Join(data, "ours.esp")
	theirs := filepath.Join(data, "theirs.esp")
	require.NoError(t, os.Symlink(filepath.Join(install, "ours.esp"), ours))
	require.NoError(t, os.Symlink("/elsewhere/theirs.esp", theirs))

	out, err := run(t, &inProcessLauncher{}, "--format", "text", "purge", install, data)
	require.NoError(t, err)
	assert.Contains(t, out, "[ok] Purge complete")

	testutil.AssertNoPath(t, ours)
	testutil.AssertSymlink(t, theirs, "/elsewhere/theirs.esp")
}

func TestCheckCmd(t *testing.T) {
	setupEnv(t)
	dir := t.TempDir()
	link := filepath.Join(dir, "a.esp")
	require.NoError(t, os.Symlink("/mods/a.esp", link))
	launcher := &inProcessLauncher{}

	out, err := run(t, launcher, "--format", "text", "check", link, "/mods/a.esp")
	require.NoError(t, err)
	assert.Contains(t, out, "[ok] "+MsgLinked)

	out, err = run(t, launcher, "--format", "text", "check", filepath.Join(dir, "missing"), "/mods/a.esp")
	require.NoError(t, err)
	assert.Contains(t, out, "[no] "+MsgNotLinked)

	assert.Equal(t, 0, launcher.count(), "checking never starts a worker")
}

func TestSupportedCmd(t *testing.T) {
	setupEnv(t)

	out, err := run(t, &inProcessLauncher{}, "--format", "text", "supported", "--platform", "windows", "--game", "skyrimse")
	require.NoError(t, err)
	assert.Contains(t, out, MsgNotSupported)
	assert.Contains(t, out, "skyrimse")

	out, err = run(t, &inProcessLauncher{}, "--format", "text", "supported", "--platform", "linux")
	require.NoError(t, err)
	assert.Contains(t, out, "Not required on linux")

	out, err = run(t, &inProcessLauncher{}, "--format", "text", "supported", "--platform", "windows", "--game", "witcher3")
	require.NoError(t, err)
	assert.Contains(t, out, "[ok] "+MsgSupported)
}

func TestConfigCmd(t *testing.T) {
	setupEnv(t)

	out, err := run(t, &inProcessLauncher{}, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "init_timeout")
	assert.Contains(t, out, "10s")
}

func TestConfigCmdMissingFile(t *testing.T) {
	setupEnv(t)

	_, err := run(t, &inProcessLauncher{}, "--config", filepath.Join(t.TempDir(), "none.toml"), "config")
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrConfigLoad))
	assert.Equal(t, 2, ExitCode(err))
}

func TestVersionCmd(t *testing.T) {
	setupEnv(t)
	out, err := run(t, &inProcessLauncher{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "elevlink version dev")
}

func TestDeployCmdBadManifest(t *testing.T) {
	setupEnv(t)
	manifest := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(manifest, []byte("links: []\n"), 0644))
	launcher := &inProcessLauncher{}

	_, err := run(t, launcher, "deploy", manifest)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrInvalidInput))
	assert.Equal(t, 0, launcher.count())
}

func TestErrorsRenderInSelectedFormat(t *testing.T) {
	setupEnv(t)
	missing := filepath.Join(t.TempDir(), "none.yaml")

	tests := []struct {
		name   string
		format string
		want   string
	}{
		{"text", "text", "Error: "},
		{"json", "json", `"error":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd(func(*config.Config) elevation.Launcher { return &inProcessLauncher{} })
			var stdout, stderr bytes.Buffer
			cmd.SetOut(&stdout)
			cmd.SetErr(&stderr)
			cmd.SetArgs([]string{"--format", tt.format, "deploy", missing})

			err := executeRoot(context.Background(), cmd)
			require.Error(t, err)
			assert.Contains(t, stderr.String(), tt.want)
			assert.Contains(t, stderr.String(), "none.yaml")
			assert.Empty(t, stdout.String())
		})
	}
}

func TestErrorRenderingSurvivesBadFormat(t *testing.T) {
	setupEnv(t)
	cmd := newRootCmd(func(*config.Config) elevation.Launcher { return &inProcessLauncher{} })
	var stderr bytes.Buffer
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--format", "yaml", "supported"})

	err := executeRoot(context.Background(), cmd)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "Error: ")
	assert.Contains(t, stderr.String(), "unknown format")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 2, ExitCode(errors.New(errors.ErrInvalidInput, "x")))
	assert.Equal(t, 3, ExitCode(errors.Wrap(errors.New(errors.ErrElevation, "spawn"), errors.ErrDeploy, "deploy")))
	assert.Equal(t, 1, ExitCode(errors.New(errors.ErrAbandoned, "x")))
}

func TestCompletionCmd(t *testing.T) {
	setupEnv(t)
	out, err := run(t, &inProcessLauncher{}, "completion", "bash")
	require.NoError(t, err)
	assert.Contains(t, out, "elevlink")

	_, err = run(t, &inProcessLauncher{}, "completion", "tcsh")
	assert.Error(t, err)
}

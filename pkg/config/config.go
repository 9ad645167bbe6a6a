package config

import (
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	gotoml "github.com/pelletier/go-toml/v2"

	elerrors "github.com/arthur-debert/elevlink/pkg/errors"
)

// EnvPrefix is the prefix of environment variables overriding configuration.
// ELEVLINK_WORKER_INIT_TIMEOUT maps to worker.init_timeout.
const EnvPrefix = "ELEVLINK_"

//go:embed embedded/defaults.toml
var defaultConfig []byte

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}

// Config is the effective elevlink configuration
type Config struct {
	Worker   Worker   `koanf:"worker"`
	IPC      IPC      `koanf:"ipc"`
	Platform Platform `koanf:"platform"`

	// Raw holds the merged key/value tree, used for dumping
	Raw map[string]interface{} `koanf:"-"`
}

// Worker configures how the elevated worker is launched
type Worker struct {
	Executable     string        `koanf:"executable"`
	ElevateCommand []string      `koanf:"elevate_command"`
	InitTimeout    time.Duration `koanf:"init_timeout"`
}

// IPC configures the orchestrator/worker channel
type IPC struct {
	SocketDir string `koanf:"socket_dir"`
}

// Platform holds the data used to decide whether elevated linking applies
type Platform struct {
	ElevatedPlatforms []string `koanf:"elevated_platforms"`
	IncompatibleGames []string `koanf:"incompatible_games"`
}

// Load builds the configuration from defaults, the optional file at path and
// the environment. A non-empty path that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// 1. System defaults
	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, toml.Parser()); err != nil {
		return nil, elerrors.Wrap(err, elerrors.ErrConfigLoad, "failed to load defaults")
	}

	// 2. User config file
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, elerrors.Wrapf(err, elerrors.ErrConfigLoad, "config file %s", path)
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, elerrors.Wrapf(err, elerrors.ErrConfigLoad, "failed to load config from %s", path)
		}
	}

	// 3. Environment
	err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil)
	if err != nil {
		return nil, elerrors.Wrap(err, elerrors.ErrConfigLoad, "failed to load env vars")
	}

	// 4. Unmarshal
	var cfg Config
	unmarshalConf := koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}
	if err := k.UnmarshalWithConf("", &cfg, unmarshalConf); err != nil {
		return nil, elerrors.Wrap(err, elerrors.ErrConfigLoad, "failed to unmarshal configuration")
	}
	cfg.Raw = k.Raw()

	// 5. Post-process
	if err := postProcess(&cfg); err != nil {
		return nil, err
	}
	if ipc, ok := cfg.Raw["ipc"].(map[string]interface{}); ok {
		ipc["socket_dir"] = cfg.IPC.SocketDir
	}

	return &cfg, nil
}

// envKey maps ELEVLINK_SECTION_SOME_KEY to section.some_key. Only the first
// underscore separates the section so keys may contain underscores.
func envKey(s string) string {
	return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
}

func postProcess(cfg *Config) error {
	if cfg.Worker.InitTimeout <= 0 {
		return elerrors.Newf(elerrors.ErrConfigValid,
			"worker.init_timeout must be positive, got %s", cfg.Worker.InitTimeout)
	}
	if cfg.IPC.SocketDir == "" {
		cfg.IPC.SocketDir = defaultSocketDir()
	}
	return nil
}

// defaultSocketDir prefers the per-user runtime directory, which is private
// to the user and cleaned on logout.
func defaultSocketDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "elevlink")
	}
	if xdg.RuntimeDir != "" {
		return filepath.Join(xdg.RuntimeDir, "elevlink")
	}
	return filepath.Join(os.TempDir(), "elevlink")
}

// Dump renders the effective configuration as TOML
func Dump(cfg *Config) ([]byte, error) {
	if cfg == nil || cfg.Raw == nil {
		return nil, elerrors.New(elerrors.ErrInternal, "configuration has not been loaded")
	}
	out, err := gotoml.Marshal(cfg.Raw)
	if err != nil {
		return nil, elerrors.Wrap(err, elerrors.ErrInternal, "failed to render configuration")
	}
	return out, nil
}

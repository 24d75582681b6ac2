// Package config defines ra-lsp configuration.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fhs/ra-lsp/internal/lsp/install"
	"github.com/fhs/ra-lsp/internal/lsp/rustanalyzer"
	"github.com/fhs/ra-lsp/internal/lsp/session"
	"github.com/joeshaw/envdecode"
	"github.com/pkg/errors"
)

// File represents the user configuration file.
type File struct {
	// Command that speaks LSP on stdin/stdout. If empty, rust-analyzer
	// is installed into InstallDirectory and run from there.
	Command []string

	// Directory where rust-analyzer is installed.
	// If it's not an absolute path, it'll become relative to the cache directory.
	InstallDirectory string

	// rust-analyzer release tag to install.
	ServerTag string

	// Root directory of the Cargo workspace. If empty, it's the
	// workspace containing the current directory.
	RootDirectory string

	// Write stderr of Command to this file.
	// If it's not an absolute path, it'll become relative to the cache directory.
	StderrFile string

	// Print to stderr the full rpc trace.
	RPCTrace bool

	// Largest message accepted from or sent to the server, in bytes.
	MaxFrameSize int64

	InitializeTimeout Duration
	RequestTimeout    Duration
	ShutdownTimeout   Duration

	// How long the watch command waits after a Cargo.toml or Cargo.lock
	// change before reloading the workspace.
	WatchDebounce Duration

	// rust-analyzer settings, passed as-is to the server in the
	// initialize request and in answers to workspace/configuration.
	InitializationOptions interface{}
}

// Config configures ra-lsp.
type Config struct {
	File

	// Show current configuration and exit
	ShowConfig bool

	// Print more messages to stderr
	Verbose bool
}

// Duration is a time.Duration written as a string such as "10s".
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Env holds the configuration overrides read from the environment.
type Env struct {
	Server     string `env:"RA_LSP_SERVER"`
	Root       string `env:"RA_LSP_ROOT"`
	Trace      bool   `env:"RA_LSP_TRACE"`
	InstallDir string `env:"RA_LSP_INSTALL_DIR"`
}

// Default returns the default Config.
func Default() *Config {
	return &Config{
		File: File{
			InstallDirectory:  "rust-analyzer",
			ServerTag:         install.DefaultTag,
			InitializeTimeout: Duration(session.DefaultInitializeTimeout),
			ShutdownTimeout:   Duration(session.DefaultShutdownTimeout),
			WatchDebounce:     Duration(rustanalyzer.DefaultDebounce),
		},
	}
}

func userConfigFilename() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ra-lsp", "config.toml"), nil
}

// Load loads Config from file system, falling back to a default if it
// doesn't exist. Environment variables override the file.
func Load() (*Config, error) {
	filename, err := userConfigFilename()
	if err != nil {
		return nil, err
	}
	return LoadFile(filename)
}

// LoadFile is like Load but reads the named configuration file.
func LoadFile(filename string) (*Config, error) {
	def := Default()

	cfg := def
	_, err := os.Stat(filename)
	if err == nil {
		cfg, err = load(filename)
		if err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	var env Env
	if err := envdecode.Decode(&env); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, errors.Wrap(err, "invalid environment")
	}
	cfg.applyEnv(&env)

	if cfg.ServerTag == "" {
		cfg.ServerTag = def.ServerTag
	}
	if cfg.InstallDirectory == "" {
		cfg.InstallDirectory = def.InstallDirectory
	}
	if cfg.InitializeTimeout == 0 {
		cfg.InitializeTimeout = def.InitializeTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	if cfg.WatchDebounce == 0 {
		cfg.WatchDebounce = def.WatchDebounce
	}
	if cfg.MaxFrameSize < 0 {
		return nil, errors.Errorf("negative MaxFrameSize %v", cfg.MaxFrameSize)
	}
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, err
	}
	cacheDir = filepath.Join(cacheDir, "ra-lsp")
	if !filepath.IsAbs(cfg.InstallDirectory) {
		cfg.InstallDirectory = filepath.Join(cacheDir, cfg.InstallDirectory)
	}
	if cfg.StderrFile != "" && !filepath.IsAbs(cfg.StderrFile) {
		err = os.MkdirAll(cacheDir, 0700)
		if err != nil {
			return nil, err
		}
		cfg.StderrFile = filepath.Join(cacheDir, cfg.StderrFile)
	}
	return cfg, nil
}

func load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var f File
	err = toml.Unmarshal(b, &f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse %v", filename)
	}
	return &Config{File: f}, nil
}

func (cfg *Config) applyEnv(env *Env) {
	if env.Server != "" {
		cfg.Command = strings.Fields(env.Server)
	}
	if env.Root != "" {
		cfg.RootDirectory = env.Root
	}
	if env.Trace {
		cfg.RPCTrace = true
	}
	if env.InstallDir != "" {
		cfg.InstallDirectory = env.InstallDir
	}
}

// Write writes Config to writer w.
func Write(w io.Writer, cfg *Config) error {
	filename, err := userConfigFilename()
	if err == nil {
		fmt.Fprintf(w, "# Configuration file location: %v\n\n", filename)
	} else {
		fmt.Fprintf(w, "# Could not find configuration file location: %v\n\n", err)
	}
	return toml.NewEncoder(w).Encode(cfg.File)
}

// ParseFlags parses command line flags and updates Config.
func (cfg *Config) ParseFlags(f *flag.FlagSet, arguments []string) error {
	var (
		server  string
		timeout time.Duration
	)

	f.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Verbose output")
	f.BoolVar(&cfg.ShowConfig, "showconfig", false, "show configuration values and exit")
	f.StringVar(&server, "server", "", "language server command (default: install rust-analyzer)")
	f.StringVar(&cfg.RootDirectory, "rootdir", cfg.RootDirectory, "root directory of the Cargo workspace")
	f.StringVar(&cfg.InstallDirectory, "installdir", cfg.InstallDirectory, "directory where rust-analyzer is installed")
	f.BoolVar(&cfg.RPCTrace, "rpc.trace", cfg.RPCTrace, "print the full rpc trace")
	f.DurationVar(&timeout, "timeout", time.Duration(cfg.RequestTimeout), "timeout for each request to the server")
	if err := f.Parse(arguments); err != nil {
		return err
	}
	if server != "" {
		cfg.Command = strings.Fields(server)
	}
	cfg.RequestTimeout = Duration(timeout)
	return nil
}

// SessionOptions returns the session options described by cfg.
func (cfg *Config) SessionOptions() *session.Options {
	return &session.Options{
		Verbose:           cfg.Verbose,
		Trace:             cfg.RPCTrace,
		InitializeTimeout: time.Duration(cfg.InitializeTimeout),
		ShutdownTimeout:   time.Duration(cfg.ShutdownTimeout),
		RequestTimeout:    time.Duration(cfg.RequestTimeout),
		Settings:          cfg.InitializationOptions,
	}
}

// Installer returns the installer for the configured release.
func (cfg *Config) Installer() *install.Installer {
	return &install.Installer{
		Dir: cfg.InstallDirectory,
		Tag: cfg.ServerTag,
	}
}

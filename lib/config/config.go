// Copyright 2026 The Camdelegate Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local work: background starts allowed,
	// verbose defaults.
	Development Environment = "development"
	// Production is for installed deployments.
	Production Environment = "production"
)

// EnvConfigPath names the environment variable holding the config
// file path.
const EnvConfigPath = "CAMDELEGATE_CONFIG"

// Config is the configuration shared by the server and client
// binaries. Each binary reads its own section.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Paths configures directory locations.
	Paths PathsConfig `yaml:"paths"`

	// Server configures camdelegate-server.
	Server ServerConfig `yaml:"server"`

	// Client configures camdelegate-client.
	Client ClientConfig `yaml:"client"`

	// Per-environment overrides. A section holds any subset of the
	// paths, server and client keys and is applied over the base
	// values when Environment matches.
	Development yaml.Node `yaml:"development,omitempty"`
	Production  yaml.Node `yaml:"production,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Runtime holds the sockets. Default: $XDG_RUNTIME_DIR/camdelegate,
	// or a directory under the system temp dir.
	Runtime string `yaml:"runtime"`

	// State holds persistent data (the grant file).
	// Default: ~/.local/state/camdelegate
	State string `yaml:"state"`
}

// ServerConfig configures the capability server.
type ServerConfig struct {
	// SocketPath is the capability service socket.
	// Default: ${CAMDELEGATE_RUNTIME}/capability.sock
	SocketPath string `yaml:"socket_path"`

	// PlatformLevel is reported in status. Default: 34
	PlatformLevel int `yaml:"platform_level"`

	// HandleTTL bounds how long a minted request handle stays usable.
	// Default: 5m
	HandleTTL Duration `yaml:"handle_ttl"`

	// GrantsFile persists permission decisions. Empty keeps them in
	// memory only. Default: ${CAMDELEGATE_STATE}/grants.cbor
	GrantsFile string `yaml:"grants_file"`

	// PolicyFile, when set, answers prompts from a JSONC policy
	// instead of the terminal.
	PolicyFile string `yaml:"policy_file"`

	// FPS is the capture frame rate. Default: 15
	FPS int `yaml:"fps"`

	// Compression is the frame codec: none, lz4 or zstd. Default: lz4
	Compression string `yaml:"compression"`

	// MaxFrames ends each capture session after this many frames.
	// Zero streams until the target goes away.
	MaxFrames uint64 `yaml:"max_frames"`

	// PromptOnStart asks for the camera permission at launch.
	PromptOnStart bool `yaml:"prompt_on_start"`

	// Preview streams the camera to a local surface at launch.
	Preview bool `yaml:"preview"`

	// PreviewSocket is the local preview surface's socket.
	// Default: ${CAMDELEGATE_RUNTIME}/preview.sock
	PreviewSocket string `yaml:"preview_socket"`
}

// ClientConfig configures the client application.
type ClientConfig struct {
	// CapabilitySocket is the server's socket. Default: the server's
	// default socket path.
	CapabilitySocket string `yaml:"capability_socket"`

	// CallbackSocket receives completion signals.
	// Default: ${CAMDELEGATE_RUNTIME}/callback-${PID}.sock
	CallbackSocket string `yaml:"callback_socket"`

	// SurfaceSocket is the render target's socket.
	// Default: ${CAMDELEGATE_RUNTIME}/surface-${PID}.sock
	SurfaceSocket string `yaml:"surface_socket"`

	// PlatformLevel selects the permission policy. Default: 34
	PlatformLevel int `yaml:"platform_level"`

	// CallTimeout bounds each remote call. Default: 10s
	CallTimeout Duration `yaml:"call_timeout"`

	// AllowBackgroundStart lets the server's prompt come to the
	// front while the client is not. Default: true (development),
	// false (production)
	AllowBackgroundStart bool `yaml:"allow_background_start"`
}

// Duration is a time.Duration written as a Go duration string
// ("30s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var text string
	if err := node.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the default configuration, before variable
// expansion.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	runtime := filepath.Join(os.TempDir(), fmt.Sprintf("camdelegate-%d", os.Getuid()))
	if xdg := os.Getenv("XDG_RUNTIME_DIR"); xdg != "" {
		runtime = filepath.Join(xdg, "camdelegate")
	}

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Runtime: runtime,
			State:   filepath.Join(homeDir, ".local", "state", "camdelegate"),
		},
		Server: ServerConfig{
			SocketPath:    "${CAMDELEGATE_RUNTIME}/capability.sock",
			PlatformLevel: 34,
			HandleTTL:     Duration(5 * time.Minute),
			GrantsFile:    "${CAMDELEGATE_STATE}/grants.cbor",
			FPS:           15,
			Compression:   "lz4",
			PreviewSocket: "${CAMDELEGATE_RUNTIME}/preview.sock",
		},
		Client: ClientConfig{
			CapabilitySocket:     "${CAMDELEGATE_RUNTIME}/capability.sock",
			CallbackSocket:       "${CAMDELEGATE_RUNTIME}/callback-${PID}.sock",
			SurfaceSocket:        "${CAMDELEGATE_RUNTIME}/surface-${PID}.sock",
			PlatformLevel:        34,
			CallTimeout:          Duration(10 * time.Second),
			AllowBackgroundStart: true,
		},
	}
}

// Load loads configuration from the path in CAMDELEGATE_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfigPath)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your camdelegate.yaml, or use --config", EnvConfigPath)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := cfg.applyEnvironmentOverrides(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg.expandVariables()
	return cfg, nil
}

// Resolve picks the configuration for a binary: the --config path when
// given, then CAMDELEGATE_CONFIG, then the defaults.
func Resolve(flagPath string) (*Config, error) {
	if flagPath != "" {
		return LoadFile(flagPath)
	}
	if os.Getenv(EnvConfigPath) != "" {
		return Load()
	}
	cfg := Default()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// applyEnvironmentOverrides decodes the matching environment section
// over the base values. Keys absent from the section keep their base
// value.
func (c *Config) applyEnvironmentOverrides() error {
	var section *yaml.Node
	switch c.Environment {
	case Development:
		section = &c.Development
	case Production:
		section = &c.Production
		if section.Kind == 0 {
			// Production without its own section still refuses
			// background starts.
			c.Client.AllowBackgroundStart = false
			return nil
		}
	}
	if section == nil || section.Kind == 0 {
		return nil
	}

	target := struct {
		Paths  *PathsConfig  `yaml:"paths"`
		Server *ServerConfig `yaml:"server"`
		Client *ClientConfig `yaml:"client"`
	}{&c.Paths, &c.Server, &c.Client}
	if err := section.Decode(&target); err != nil {
		return fmt.Errorf("%s overrides: %w", c.Environment, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
		"PID":  fmt.Sprint(os.Getpid()),
	}

	c.Paths.Runtime = expandVars(c.Paths.Runtime, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["CAMDELEGATE_RUNTIME"] = c.Paths.Runtime
	vars["CAMDELEGATE_STATE"] = c.Paths.State

	c.Server.SocketPath = expandVars(c.Server.SocketPath, vars)
	c.Server.GrantsFile = expandVars(c.Server.GrantsFile, vars)
	c.Server.PolicyFile = expandVars(c.Server.PolicyFile, vars)
	c.Server.PreviewSocket = expandVars(c.Server.PreviewSocket, vars)
	c.Client.CapabilitySocket = expandVars(c.Client.CapabilitySocket, vars)
	c.Client.CallbackSocket = expandVars(c.Client.CallbackSocket, vars)
	c.Client.SurfaceSocket = expandVars(c.Client.SurfaceSocket, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns. vars is
// consulted before the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Runtime == "" {
		errs = append(errs, errors.New("paths.runtime is required"))
	}

	if c.Server.SocketPath == "" {
		errs = append(errs, errors.New("server.socket_path is required"))
	}
	if c.Server.PlatformLevel <= 0 {
		errs = append(errs, fmt.Errorf("server.platform_level must be positive, got %d", c.Server.PlatformLevel))
	}
	if c.Server.HandleTTL <= 0 {
		errs = append(errs, errors.New("server.handle_ttl must be positive"))
	}
	if c.Server.FPS < 1 || c.Server.FPS > 120 {
		errs = append(errs, fmt.Errorf("server.fps must be between 1 and 120, got %d", c.Server.FPS))
	}
	compressions := []string{"", "none", "lz4", "zstd"}
	if !contains(compressions, c.Server.Compression) {
		errs = append(errs, fmt.Errorf("server.compression must be one of: %v", compressions[1:]))
	}
	if c.Server.Preview && c.Server.PreviewSocket == "" {
		errs = append(errs, errors.New("server.preview_socket is required when preview is enabled"))
	}

	if c.Client.CapabilitySocket == "" {
		errs = append(errs, errors.New("client.capability_socket is required"))
	}
	if c.Client.CallbackSocket == "" {
		errs = append(errs, errors.New("client.callback_socket is required"))
	}
	if c.Client.SurfaceSocket == "" {
		errs = append(errs, errors.New("client.surface_socket is required"))
	}
	if c.Client.CallbackSocket != "" && c.Client.CallbackSocket == c.Client.SurfaceSocket {
		errs = append(errs, errors.New("client.callback_socket and client.surface_socket must differ"))
	}
	if c.Client.PlatformLevel <= 0 {
		errs = append(errs, fmt.Errorf("client.platform_level must be positive, got %d", c.Client.PlatformLevel))
	}
	if c.Client.CallTimeout <= 0 {
		errs = append(errs, errors.New("client.call_timeout must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates the configured directories if they don't exist.
// The runtime directory holds sockets and is private to the user.
func (c *Config) EnsurePaths() error {
	if err := os.MkdirAll(c.Paths.Runtime, 0o700); err != nil {
		return fmt.Errorf("creating %s: %w", c.Paths.Runtime, err)
	}
	if c.Server.GrantsFile != "" {
		dir := filepath.Dir(c.Server.GrantsFile)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

func contains(slice []string, s string) bool {
	for _, v := range slice {
		if v == s {
			return true
		}
	}
	return false
}

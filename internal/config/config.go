package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for snapstore.
type Config struct {
	HostID string `toml:"host_id"`
	// AppDir is the base directory for snapstore data.
	AppDir string `toml:"app_dir"`
	// StoreDir is where compressed backup containers are written.
	StoreDir string `toml:"store_dir"`
	LogDir   string `toml:"log_dir"`
	// TrackingList is a plaintext file holding one tracked absolute path
	// per line.
	TrackingList string `toml:"tracking_list"`
	// DelayMillis is the debounce delay applied to change notifications
	// before a backup is taken.
	DelayMillis int64 `toml:"delay_ms"`
	// Codec names the compression codec for new containers: "gzip"
	// (default), "snappy", "zstd", or "none". All containers in one store
	// must share a codec.
	Codec string `toml:"codec"`
}

// NewConfig creates a Config with the provided values and default paths.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:       hostID,
		AppDir:       baseDir,
		StoreDir:     filepath.Join(baseDir, "store"),
		LogDir:       filepath.Join(baseDir, "log"),
		TrackingList: filepath.Join(baseDir, "tracking_list"),
		DelayMillis:  1000,
		Codec:        "gzip",
	}
}

// Delay returns the change-notification debounce as a Duration.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.DelayMillis) * time.Millisecond
}

// InitAppStructure creates the app, store, and log directories and an empty
// tracking list if they do not exist yet.
func (c *Config) InitAppStructure() error {
	for _, dir := range []string{c.AppDir, c.StoreDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(c.TrackingList); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("checking tracking list: %w", err)
		}
		if err := os.WriteFile(c.TrackingList, nil, 0644); err != nil {
			return fmt.Errorf("creating tracking list: %w", err)
		}
	}
	return nil
}

// ReadTrackedFiles returns the tracked paths, one per tracking-list line.
// Blank lines are ignored.
func (c *Config) ReadTrackedFiles() ([]string, error) {
	f, err := os.Open(c.TrackingList)
	if err != nil {
		return nil, fmt.Errorf("opening tracking list: %w", err)
	}
	defer f.Close()

	var files []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		files = append(files, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading tracking list: %w", err)
	}
	return files, nil
}

// AddTrackedFile appends a path to the tracking list. Adding a path that is
// already tracked is a no-op.
func (c *Config) AddTrackedFile(path string) error {
	existing, err := c.ReadTrackedFiles()
	if err != nil {
		return err
	}
	for _, p := range existing {
		if p == path {
			return nil
		}
	}

	f, err := os.OpenFile(c.TrackingList, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening tracking list: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, path); err != nil {
		return fmt.Errorf("appending to tracking list: %w", err)
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

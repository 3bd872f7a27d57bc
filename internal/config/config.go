package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full bridge configuration.
type Config struct {
	HTTPAddr   string `yaml:"httpAddr"`
	StreamAddr string `yaml:"streamAddr"`
	CORSOrigin string `yaml:"corsOrigin"`

	Drone  DroneConfig  `yaml:"drone"`
	Media  MediaConfig  `yaml:"media"`
	Timing TimingConfig `yaml:"timing"`
	Log    LogConfig    `yaml:"log"`
	Auth   AuthConfig   `yaml:"auth"`
}

// DroneConfig addresses the remote device.
type DroneConfig struct {
	IP          string `yaml:"ip"`
	CommandPort int    `yaml:"commandPort"`
	VideoPort   int    `yaml:"videoPort"`
}

// MediaConfig locates the transcoder binary and the uploads tree.
type MediaConfig struct {
	FFmpegPath string `yaml:"ffmpegPath"`
	UploadsDir string `yaml:"uploadsDir"`
}

// PhotosDir returns the directory holding the current frame and captures.
func (m MediaConfig) PhotosDir() string {
	return filepath.Join(m.UploadsDir, "photos")
}

// RecordingsDir returns the directory holding finished recordings.
func (m MediaConfig) RecordingsDir() string {
	return filepath.Join(m.UploadsDir, "mp4_recordings")
}

// CurrentFramePath returns the continuously overwritten still-image file.
func (m MediaConfig) CurrentFramePath() string {
	return filepath.Join(m.PhotosDir(), "current_frame.jpg")
}

// TimingConfig holds every interval and timeout the bridge uses.
type TimingConfig struct {
	MonitorInterval        time.Duration `yaml:"monitorInterval"`
	TranscoderRestartDelay time.Duration `yaml:"transcoderRestartDelay"`
	TranscoderRestartMax   int           `yaml:"transcoderRestartMax"`
	EmergencyTimeout       time.Duration `yaml:"emergencyTimeout"`
	StreamDrainTimeout     time.Duration `yaml:"streamDrainTimeout"`
	HTTPShutdownTimeout    time.Duration `yaml:"httpShutdownTimeout"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Output string `yaml:"output"`
}

// AuthConfig enables the optional bearer-token guard on control endpoints.
// An empty secret disables authentication entirely.
type AuthConfig struct {
	Secret string `yaml:"secret"`
}

// Defaults returns the baseline configuration. The restart policy default is
// a fixed-delay unlimited retry (TranscoderRestartMax 0 means no cap).
func Defaults() *Config {
	return &Config{
		HTTPAddr:   ":3000",
		StreamAddr: ":3001",
		CORSOrigin: "*",
		Drone: DroneConfig{
			IP:          "192.168.10.1",
			CommandPort: 8889,
			VideoPort:   11111,
		},
		Media: MediaConfig{
			FFmpegPath: "ffmpeg",
			UploadsDir: defaultUploadsDir(),
		},
		Timing: TimingConfig{
			MonitorInterval:        10 * time.Second,
			TranscoderRestartDelay: 1 * time.Second,
			TranscoderRestartMax:   0,
			EmergencyTimeout:       2 * time.Second,
			StreamDrainTimeout:     5 * time.Second,
			HTTPShutdownTimeout:    10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Output: "stdout",
		},
	}
}

// Load merges Defaults() + optional YAML file + DCB_* env overrides.
// The file path comes from DCB_CONFIG, falling back to ./config.yaml.
func Load() (*Config, error) {
	cfg := Defaults()

	path := os.Getenv("DCB_CONFIG")
	if path == "" {
		path = "config.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays YAML values onto cfg. Absent keys keep their
// current values because the decoder writes in place.
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return err
	}
	return nil
}

// applyEnvOverrides applies DCB_* environment variables to the config.
func applyEnvOverrides(cfg *Config) {
	cfg.HTTPAddr = getEnv("DCB_HTTP_ADDR", cfg.HTTPAddr)
	cfg.StreamAddr = getEnv("DCB_STREAM_ADDR", cfg.StreamAddr)
	cfg.CORSOrigin = getEnv("DCB_CORS_ORIGIN", cfg.CORSOrigin)

	cfg.Drone.IP = getEnv("DCB_DRONE_IP", cfg.Drone.IP)
	cfg.Drone.CommandPort = getEnvInt("DCB_DRONE_COMMAND_PORT", cfg.Drone.CommandPort)
	cfg.Drone.VideoPort = getEnvInt("DCB_DRONE_VIDEO_PORT", cfg.Drone.VideoPort)

	cfg.Media.FFmpegPath = getEnv("DCB_FFMPEG_PATH", cfg.Media.FFmpegPath)
	cfg.Media.UploadsDir = getEnv("DCB_UPLOADS_DIR", cfg.Media.UploadsDir)

	cfg.Timing.MonitorInterval = getEnvDuration("DCB_TIMING_MONITOR_INTERVAL", cfg.Timing.MonitorInterval)
	cfg.Timing.TranscoderRestartDelay = getEnvDuration("DCB_TIMING_RESTART_DELAY", cfg.Timing.TranscoderRestartDelay)
	cfg.Timing.TranscoderRestartMax = getEnvInt("DCB_TIMING_RESTART_MAX", cfg.Timing.TranscoderRestartMax)
	cfg.Timing.EmergencyTimeout = getEnvDuration("DCB_TIMING_EMERGENCY_TIMEOUT", cfg.Timing.EmergencyTimeout)
	cfg.Timing.StreamDrainTimeout = getEnvDuration("DCB_TIMING_STREAM_DRAIN_TIMEOUT", cfg.Timing.StreamDrainTimeout)
	cfg.Timing.HTTPShutdownTimeout = getEnvDuration("DCB_TIMING_HTTP_SHUTDOWN_TIMEOUT", cfg.Timing.HTTPShutdownTimeout)

	cfg.Log.Level = getEnv("DCB_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Output = getEnv("DCB_LOG_OUTPUT", cfg.Log.Output)

	cfg.Auth.Secret = getEnv("DCB_AUTH_SECRET", cfg.Auth.Secret)
}

// Validate rejects configurations the bridge cannot run with.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("httpAddr must not be empty")
	}
	if c.StreamAddr == "" {
		return fmt.Errorf("streamAddr must not be empty")
	}
	if c.Drone.IP == "" {
		return fmt.Errorf("drone.ip must not be empty")
	}
	if c.Drone.CommandPort <= 0 || c.Drone.CommandPort > 65535 {
		return fmt.Errorf("drone.commandPort %d out of range", c.Drone.CommandPort)
	}
	if c.Drone.VideoPort <= 0 || c.Drone.VideoPort > 65535 {
		return fmt.Errorf("drone.videoPort %d out of range", c.Drone.VideoPort)
	}
	if c.Media.FFmpegPath == "" {
		return fmt.Errorf("media.ffmpegPath must not be empty")
	}
	if c.Media.UploadsDir == "" {
		return fmt.Errorf("media.uploadsDir must not be empty")
	}
	if c.Timing.MonitorInterval <= 0 {
		return fmt.Errorf("timing.monitorInterval must be positive")
	}
	if c.Timing.TranscoderRestartDelay <= 0 {
		return fmt.Errorf("timing.transcoderRestartDelay must be positive")
	}
	if c.Timing.TranscoderRestartMax < 0 {
		return fmt.Errorf("timing.transcoderRestartMax must not be negative")
	}
	if c.Timing.EmergencyTimeout <= 0 {
		return fmt.Errorf("timing.emergencyTimeout must be positive")
	}
	return nil
}

// defaultUploadsDir resolves the platform application-data root.
func defaultUploadsDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "dcb", "uploads")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

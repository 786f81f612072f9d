// Package config provides typed configuration loading for the lanhub server.
package config

import (
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"lanhub/internal/constants"
	"lanhub/internal/utils"
)

// Config is the full server configuration.
type Config struct {
	Network   NetworkConfig   `yaml:"network"`
	Server    ServerConfig    `yaml:"server"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// NetworkConfig holds the six listener ports.
type NetworkConfig struct {
	DiscoveryPort int `yaml:"discovery_port"`
	ChatPort      int `yaml:"chat_port"`
	AudioPort     int `yaml:"audio_port"`
	VideoPort     int `yaml:"video_port"`
	ScreenPort    int `yaml:"screen_port"`
	FilePort      int `yaml:"file_port"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	FileDirectory string `yaml:"file_directory"`
	EventLogDir   string `yaml:"event_log_dir"`
}

// DashboardConfig holds the optional HTTP status surface settings.
type DashboardConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			DiscoveryPort: constants.DefaultDiscoveryPort,
			ChatPort:      constants.DefaultChatPort,
			AudioPort:     constants.DefaultAudioPort,
			VideoPort:     constants.DefaultVideoPort,
			ScreenPort:    constants.DefaultScreenPort,
			FilePort:      constants.DefaultFilePort,
		},
		Server: ServerConfig{
			FileDirectory: constants.DefaultFileDir,
		},
		Dashboard: DashboardConfig{
			Enabled: true,
			Port:    constants.DefaultDashboardPort,
		},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. A missing or unreadable file falls back to
// defaults with a warning, matching the behavior clients rely on when no
// config ships alongside the binary.
func Load(path string) *Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️  Could not read %s: %v. Using default values.", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		log.Printf("⚠️  Could not parse %s: %v. Using default values.", path, err)
		cfg = Default()
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		log.Printf("⚠️  Invalid configuration (%v). Using default values.", err)
		cfg = Default()
		cfg.applyEnv()
		if err := cfg.Validate(); err != nil {
			// Environment overrides themselves are broken; defaults win.
			return Default()
		}
	}

	return cfg
}

func (c *Config) applyEnv() {
	c.Network.DiscoveryPort = utils.GetEnvInt("LANHUB_DISCOVERY_PORT", c.Network.DiscoveryPort)
	c.Network.ChatPort = utils.GetEnvInt("LANHUB_CHAT_PORT", c.Network.ChatPort)
	c.Network.AudioPort = utils.GetEnvInt("LANHUB_AUDIO_PORT", c.Network.AudioPort)
	c.Network.VideoPort = utils.GetEnvInt("LANHUB_VIDEO_PORT", c.Network.VideoPort)
	c.Network.ScreenPort = utils.GetEnvInt("LANHUB_SCREEN_PORT", c.Network.ScreenPort)
	c.Network.FilePort = utils.GetEnvInt("LANHUB_FILE_PORT", c.Network.FilePort)
	c.Server.FileDirectory = utils.GetEnv("LANHUB_FILE_DIR", c.Server.FileDirectory)
	c.Server.EventLogDir = utils.GetEnv("LANHUB_EVENT_LOG_DIR", c.Server.EventLogDir)
	c.Dashboard.Port = utils.GetEnvInt("LANHUB_DASHBOARD_PORT", c.Dashboard.Port)
}

// Validate checks ports and storage settings.
func (c *Config) Validate() error {
	ports := map[string]int{
		"discovery_port": c.Network.DiscoveryPort,
		"chat_port":      c.Network.ChatPort,
		"audio_port":     c.Network.AudioPort,
		"video_port":     c.Network.VideoPort,
		"screen_port":    c.Network.ScreenPort,
		"file_port":      c.Network.FilePort,
	}
	if c.Dashboard.Enabled {
		ports["dashboard_port"] = c.Dashboard.Port
	}

	seen := make(map[int]string, len(ports))
	for name, port := range ports {
		if port < constants.MinPort || port > constants.MaxPort {
			return fmt.Errorf("%s %d out of range", name, port)
		}
		if other, dup := seen[port]; dup {
			return fmt.Errorf("%s and %s both use port %d", name, other, port)
		}
		seen[port] = name
	}

	if c.Server.FileDirectory == "" {
		return fmt.Errorf("file_directory must not be empty")
	}

	return nil
}

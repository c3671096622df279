package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportWebSocket = "websocket"
	TransportRedis     = "redis"
)

type Config struct {
	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Session  SessionConfig  `yaml:"session"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Debug    bool           `yaml:"debug"`
}

type APIConfig struct {
	URL string `yaml:"url"`
}

type RealtimeConfig struct {
	Transport         string        `yaml:"transport"` // websocket, redis
	URL               string        `yaml:"url"`
	Redis             string        `yaml:"redis"`
	RoomPrefix        string        `yaml:"room_prefix"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay"`
}

type SessionConfig struct {
	Dir string `yaml:"dir"`
}

type BridgeConfig struct {
	Port      string `yaml:"port"`
	ProjectID string `yaml:"project_id"`
}

// Load reads the yaml file at path, if it exists, and applies environment
// overrides on top. An empty path falls back to $BOARD_CONFIG.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("BOARD_CONFIG")
	}
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	dir := ".board-sync"
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".board-sync")
	}
	return &Config{
		API: APIConfig{URL: "http://localhost:5000"},
		Realtime: RealtimeConfig{
			Transport:         TransportWebSocket,
			URL:               "ws://localhost:5000/ws",
			RoomPrefix:        "project:",
			ReconnectAttempts: 5,
			ReconnectDelay:    time.Second,
		},
		Session: SessionConfig{Dir: dir},
		Bridge:  BridgeConfig{Port: "9000"},
	}
}

func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("API_URL"); v != "" {
		c.API.URL = v
	}
	if v := os.Getenv("REALTIME_URL"); v != "" {
		c.Realtime.URL = v
	}
	if v := os.Getenv("REALTIME_TRANSPORT"); v != "" {
		c.Realtime.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("REDIS_CONNECTION_STRING"); v != "" {
		c.Realtime.Redis = v
	}
	if v := os.Getenv("REALTIME_ROOM_PREFIX"); v != "" {
		c.Realtime.RoomPrefix = v
	}
	if v := os.Getenv("RECONNECT_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid RECONNECT_ATTEMPTS %q", v)
		}
		c.Realtime.ReconnectAttempts = n
	}
	if v := os.Getenv("RECONNECT_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid RECONNECT_DELAY %q", v)
		}
		c.Realtime.ReconnectDelay = d
	}
	if v := os.Getenv("SESSION_DIR"); v != "" {
		c.Session.Dir = v
	}
	if v := os.Getenv("BOARD_PROJECT_ID"); v != "" {
		c.Bridge.ProjectID = v
	}
	if v := os.Getenv("BRIDGE_PORT"); v != "" {
		c.Bridge.Port = v
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil {
		c.Debug = dbg
	}
	return nil
}

// Validate reports the first setting the clients cannot run without.
func (c *Config) Validate() error {
	if c.API.URL == "" {
		return errors.New("missing API_URL")
	}
	switch c.Realtime.Transport {
	case TransportWebSocket:
		if c.Realtime.URL == "" {
			return errors.New("missing REALTIME_URL")
		}
	case TransportRedis:
		if c.Realtime.Redis == "" {
			return errors.New("missing REDIS_CONNECTION_STRING")
		}
	default:
		return fmt.Errorf("unknown REALTIME_TRANSPORT %q", c.Realtime.Transport)
	}
	if c.Session.Dir == "" {
		return errors.New("missing SESSION_DIR")
	}
	return nil
}

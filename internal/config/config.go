// Package config loads the Main Server's runtime configuration from a YAML
// file with environment-variable overrides, matching the loose,
// best-effort style the rest of this codebase uses for config: missing
// file or bad YAML is not fatal, env vars win over file values, and
// numeric fields fall back to the spec's documented defaults.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full set of recognised options from spec.md §6.
type Config struct {
	DB       DBConfig       `yaml:"db"`
	Redis    RedisConfig    `yaml:"redis"`
	NATS     NATSConfig     `yaml:"nats"`
	Ops      OpsConfig      `yaml:"ops"`
	Ports    PortsConfig    `yaml:"ports"`
	Geometry GeometryConfig `yaml:"geometry"`
	Timing   TimingConfig   `yaml:"timing"`
}

type DBConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type NATSConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type OpsConfig struct {
	JWTSigningKey        string `yaml:"jwt_signing_key"`
	HTTPAddr             string `yaml:"http_addr"`
	OperatorPasswordHash string `yaml:"operator_password_hash"`
}

// PortsConfig names the six sockets from spec.md §6. These rarely change
// but are still configurable for test harnesses that need ephemeral ports.
type PortsConfig struct {
	FrameIngestUDP  int `yaml:"frame_ingest_udp"`
	VideoRelayUDP   int `yaml:"video_relay_udp"`
	InferenceTCP    int `yaml:"inference_tcp"`
	ControllerTCP   int `yaml:"controller_tcp"`
	BirdRiskTCP     int `yaml:"bird_risk_tcp"`
	PilotTCP        int `yaml:"pilot_tcp"`
}

type GeometryConfig struct {
	MapWidth      int `yaml:"map_width"`
	MapHeight     int `yaml:"map_height"`
	RealMapWidth  int `yaml:"real_map_width"`
	RealMapHeight int `yaml:"real_map_height"`
}

type TimingConfig struct {
	FrameBufferSize         int `yaml:"frame_buffer_size"`
	FrameAgeCapMs           int `yaml:"frame_age_cap_ms"`
	DetectionBufferWindowMs int `yaml:"detection_buffer_window_ms"`
	HazardClearMs           int `yaml:"hazard_clear_ms"`
	TCPBufferSize           int `yaml:"tcp_buffer_size"`
}

// Default returns the spec's documented defaults before any file or env
// override is applied.
func Default() Config {
	return Config{
		DB: DBConfig{
			Host:    "localhost",
			Port:    "5432",
			Name:    "airfield_guard",
			SSLMode: "disable",
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Ops: OpsConfig{
			JWTSigningKey: "dev-secret-do-not-use-in-prod",
			HTTPAddr:      ":8090",
		},
		Ports: PortsConfig{
			FrameIngestUDP: 4000,
			VideoRelayUDP:  4100,
			InferenceTCP:   5000,
			ControllerTCP:  5100,
			BirdRiskTCP:    5200,
			PilotTCP:       5300,
		},
		Geometry: GeometryConfig{
			MapWidth:      960,
			MapHeight:     720,
			RealMapWidth:  1800,
			RealMapHeight: 1350,
		},
		Timing: TimingConfig{
			FrameBufferSize:         60,
			FrameAgeCapMs:           2000,
			DetectionBufferWindowMs: 200,
			HazardClearMs:           2000,
			TCPBufferSize:           65536,
		},
	}
}

// Load reads path (best-effort; a missing or malformed file just leaves
// the defaults in place) then applies environment-variable overrides.
func Load(path string) Config {
	cfg := Default()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			_ = yaml.Unmarshal(data, &cfg) // bad YAML: keep whatever parsed, ignore the rest
		}
	}

	applyEnvOverrides(&cfg)
	return cfg
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.DB.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		cfg.DB.Port = v
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.DB.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.DB.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.DB.Name = v
	}
	if v := os.Getenv("DB_SSLMODE"); v != "" {
		cfg.DB.SSLMode = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("JWT_SIGNING_KEY"); v != "" {
		cfg.Ops.JWTSigningKey = v
	}
	if v := os.Getenv("OPS_HTTP_ADDR"); v != "" {
		cfg.Ops.HTTPAddr = v
	}
	if v := os.Getenv("OPERATOR_PASSWORD_HASH"); v != "" {
		cfg.Ops.OperatorPasswordHash = v
	}

	setIntEnv("MAP_WIDTH", &cfg.Geometry.MapWidth)
	setIntEnv("MAP_HEIGHT", &cfg.Geometry.MapHeight)
	setIntEnv("REAL_MAP_WIDTH", &cfg.Geometry.RealMapWidth)
	setIntEnv("REAL_MAP_HEIGHT", &cfg.Geometry.RealMapHeight)
	setIntEnv("FRAME_BUFFER_SIZE", &cfg.Timing.FrameBufferSize)
	setIntEnv("FRAME_AGE_CAP_MS", &cfg.Timing.FrameAgeCapMs)
	setIntEnv("DETECTION_BUFFER_WINDOW_MS", &cfg.Timing.DetectionBufferWindowMs)
	setIntEnv("HAZARD_CLEAR_MS", &cfg.Timing.HazardClearMs)
	setIntEnv("TCP_BUFFER_SIZE", &cfg.Timing.TCPBufferSize)
}

func setIntEnv(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return
	}
	*dst = n
}

// ConnString builds the lib/pq connection string from the DB section.
func (c DBConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

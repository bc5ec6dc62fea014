// Package config holds the runtime configuration shared by the CLI and the
// producer/consumer roles.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/1ureka/pointstream/internal/protocol"
)

// Role represents the user's chosen role (producer or consumer).
type Role string

const (
	RoleProducer Role = "producer"
	RoleConsumer Role = "consumer"
)

// Config stores every parameter gathered from flags, prompts or a file.
type Config struct {
	Role Role

	// Producer
	RelayURL    string        // signaling endpoint, http(s)://.../offer or ws(s)://.../ws
	FrequencyHz float64       // frames per second
	Duration    time.Duration // total streaming time
	PointCount  int           // samples per frame

	// Consumer
	ListenHost    string
	ListenPort    int
	QueueCapacity int // frames buffered between receive and hand-off
	MaxFrameBytes int // largest frame accepted; 0 derives it from PointCount

	// Shared
	ChannelLabel   string
	ICEServers     []string
	ConnectTimeout time.Duration // 0 waits without bound
	StatsInterval  time.Duration // 0 disables the periodic report
	Debug          bool
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		RelayURL:       "http://localhost:8080/offer",
		FrequencyHz:    4,
		Duration:       60 * time.Second,
		PointCount:     1_000_000,
		ListenHost:     "0.0.0.0",
		ListenPort:     8080,
		QueueCapacity:  16,
		ChannelLabel:   "data",
		ICEServers:     []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"},
		ConnectTimeout: 30 * time.Second,
		StatsInterval:  5 * time.Second,
	}
}

// FrameBytes returns the encoded size of one frame of PointCount samples.
func (c Config) FrameBytes() int {
	return c.PointCount * protocol.SampleSize
}

// ReceiveLimit returns the largest frame the transport must be able to
// reassemble.
func (c Config) ReceiveLimit() int {
	if c.MaxFrameBytes > 0 {
		return c.MaxFrameBytes
	}
	return c.FrameBytes()
}

// ListenAddr returns host:port for the consumer's signaling server.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ListenHost, c.ListenPort)
}

// fileConfig is the TOML key mapping for Config.
type fileConfig struct {
	Role           string   `toml:"role"`
	RelayURL       string   `toml:"relay_url"`
	FrequencyHz    float64  `toml:"frequency_hz"`
	Duration       string   `toml:"duration"`
	PointCount     int      `toml:"point_count"`
	ListenHost     string   `toml:"listen_host"`
	ListenPort     int      `toml:"listen_port"`
	QueueCapacity  int      `toml:"queue_capacity"`
	MaxFrameBytes  int      `toml:"max_frame_bytes"`
	ChannelLabel   string   `toml:"channel_label"`
	ICEServers     []string `toml:"ice_servers"`
	ConnectTimeout string   `toml:"connect_timeout"`
	StatsInterval  string   `toml:"stats_interval"`
	Debug          bool     `toml:"debug"`
}

// LoadFile overlays the keys present in a TOML file onto Default().
// Keys absent from the file keep their default value.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("role") {
		cfg.Role = Role(strings.ToLower(strings.TrimSpace(raw.Role)))
	}
	if meta.IsDefined("relay_url") {
		cfg.RelayURL = strings.TrimSpace(raw.RelayURL)
	}
	if meta.IsDefined("frequency_hz") {
		cfg.FrequencyHz = raw.FrequencyHz
	}
	if meta.IsDefined("point_count") {
		cfg.PointCount = raw.PointCount
	}
	if meta.IsDefined("listen_host") {
		cfg.ListenHost = strings.TrimSpace(raw.ListenHost)
	}
	if meta.IsDefined("listen_port") {
		cfg.ListenPort = raw.ListenPort
	}
	if meta.IsDefined("queue_capacity") {
		cfg.QueueCapacity = raw.QueueCapacity
	}
	if meta.IsDefined("max_frame_bytes") {
		cfg.MaxFrameBytes = raw.MaxFrameBytes
	}
	if meta.IsDefined("channel_label") {
		cfg.ChannelLabel = strings.TrimSpace(raw.ChannelLabel)
	}
	if meta.IsDefined("ice_servers") {
		cfg.ICEServers = raw.ICEServers
	}
	if meta.IsDefined("debug") {
		cfg.Debug = raw.Debug
	}

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"duration", raw.Duration, &cfg.Duration},
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"stats_interval", raw.StatsInterval, &cfg.StatsInterval},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.val))
		if err != nil {
			return Config{}, fmt.Errorf("load config: %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

// Validate reports every problem that would prevent the chosen role
// from running.
func (c Config) Validate() error {
	var errs []error

	switch c.Role {
	case RoleProducer:
		if c.FrequencyHz <= 0 {
			errs = append(errs, fmt.Errorf("frequency must be positive, got %v", c.FrequencyHz))
		}
		if c.Duration <= 0 {
			errs = append(errs, fmt.Errorf("duration must be positive, got %v", c.Duration))
		}
		if err := validateRelayURL(c.RelayURL); err != nil {
			errs = append(errs, err)
		}
	case RoleConsumer:
		if c.ListenPort < 1 || c.ListenPort > 65535 {
			errs = append(errs, fmt.Errorf("listen port out of range: %d", c.ListenPort))
		}
		if c.QueueCapacity < 1 {
			errs = append(errs, fmt.Errorf("queue capacity must be at least 1, got %d", c.QueueCapacity))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown role %q", c.Role))
	}

	switch {
	case c.PointCount < 1:
		errs = append(errs, fmt.Errorf("point count must be at least 1, got %d", c.PointCount))
	case c.PointCount > protocol.MaxPointCount:
		errs = append(errs, fmt.Errorf("frame of %d points (%d bytes) exceeds the channel limit of %d bytes",
			c.PointCount, c.FrameBytes(), protocol.MaxFrameBytes))
	}
	if c.MaxFrameBytes < 0 || c.MaxFrameBytes > protocol.MaxFrameBytes {
		errs = append(errs, fmt.Errorf("max frame bytes must be in [0, %d], got %d", protocol.MaxFrameBytes, c.MaxFrameBytes))
	}
	if c.Role == RoleProducer && c.MaxFrameBytes > 0 && c.FrameBytes() > c.MaxFrameBytes {
		errs = append(errs, fmt.Errorf("frame of %d bytes exceeds max frame bytes %d", c.FrameBytes(), c.MaxFrameBytes))
	}

	if c.ChannelLabel == "" {
		errs = append(errs, errors.New("channel label must not be empty"))
	}
	if c.ConnectTimeout < 0 {
		errs = append(errs, fmt.Errorf("connect timeout must not be negative, got %v", c.ConnectTimeout))
	}
	if c.StatsInterval < 0 {
		errs = append(errs, fmt.Errorf("stats interval must not be negative, got %v", c.StatsInterval))
	}

	return errors.Join(errs...)
}

func validateRelayURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid relay URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("relay URL scheme must be http, https, ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("relay URL has no host: %q", raw)
	}
	return nil
}

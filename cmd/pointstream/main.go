// Pointstream CLI entry point.
//
// This tool streams fixed-size point frames from a producer to a consumer
// over a WebRTC DataChannel. The consumer runs the signaling server; the
// producer posts its offer there and then paces frames over the channel.
//
// It can be launched interactively (no flags) or non-interactively via CLI
// flags (-role, -config, -relay, -freq, -duration, -points, -host, -port).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/pointstream/internal/app"
	"github.com/1ureka/pointstream/internal/config"
	"github.com/1ureka/pointstream/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	// CLI flags.
	role := flag.String("role", "", "Role: producer or consumer")
	configPath := flag.String("config", "", "Path to a TOML config file")
	relay := flag.String("relay", "", "Relay endpoint (producer only), http(s)://host/offer or ws(s)://host/ws")
	freq := flag.Float64("freq", 0, "Frames per second (producer only)")
	duration := flag.Duration("duration", 0, "Streaming duration, e.g. 60s (producer only)")
	points := flag.Int("points", 0, "Points per frame (producer only)")
	host := flag.String("host", "", "Listen host (consumer only)")
	port := flag.Int("port", 0, "Listen port, 1~65535 (consumer only)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Flags override the file.
	flags := overrides{
		role: *role, relay: *relay, freq: *freq, duration: *duration,
		points: *points, host: *host, port: *port, debug: *debugMode,
	}
	if err := flags.apply(&cfg); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
	if cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("Pointstream v%s", version))
	pterm.Println()

	if cfg.Role == "" {
		// No role from flags or file → interactive mode.
		askRole(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(1)
	}

	switch cfg.Role {
	case config.RoleProducer:
		runProducer(ctx, cfg)
	case config.RoleConsumer:
		runConsumer(ctx, cfg)
	}
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runProducer connects to the consumer and streams frames.
func runProducer(ctx context.Context, cfg config.Config) {
	util.LogInfo("streaming %d points per frame at %v Hz for %v to %s",
		cfg.PointCount, cfg.FrequencyHz, cfg.Duration, cfg.RelayURL)

	report, err := app.RunProducer(ctx, cfg)
	if err != nil {
		util.LogError("producer stopped: %v", err)
		os.Exit(1)
	}
	util.LogInfo("planned %d, sent %d, failed %d", report.Planned, report.Sent, report.Failed)
}

// runConsumer serves the relay endpoints until Ctrl+C.
func runConsumer(ctx context.Context, cfg config.Config) {
	if err := app.RunConsumer(ctx, cfg); err != nil {
		util.LogError("consumer stopped: %v", err)
		os.Exit(1)
	}
	util.LogInfo("successfully closed all sessions")
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askRole falls back to interactive prompts when no role was given.
func askRole(cfg *config.Config) {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Consumer: receive point frames", "Producer: stream point frames"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Producer") {
		cfg.Role = config.RoleProducer
		cfg.RelayURL = askURL(cfg.RelayURL)
		cfg.Duration = askDuration(cfg.Duration)
	} else {
		cfg.Role = config.RoleConsumer
		cfg.ListenPort = askPort("Listen port (1 ~ 65535)", cfg.ListenPort)
	}
}

// overrides holds the CLI flag values; zero values leave the config alone.
type overrides struct {
	role     string
	relay    string
	freq     float64
	duration time.Duration
	points   int
	host     string
	port     int
	debug    bool
}

func (o overrides) apply(cfg *config.Config) error {
	if o.role != "" {
		cfg.Role = config.Role(strings.ToLower(o.role))
	}
	if o.relay != "" {
		relay, err := normalizeRelayURL(o.relay)
		if err != nil {
			return err
		}
		cfg.RelayURL = relay
	}
	if o.freq != 0 {
		cfg.FrequencyHz = o.freq
	}
	if o.duration != 0 {
		cfg.Duration = o.duration
	}
	if o.points != 0 {
		cfg.PointCount = o.points
	}
	if o.host != "" {
		cfg.ListenHost = o.host
	}
	if o.port != 0 {
		cfg.ListenPort = o.port
	}
	if o.debug {
		cfg.Debug = true
	}
	return nil
}

// normalizeRelayURL validates a relay endpoint. A bare host gets the HTTP
// scheme and the /offer path.
func normalizeRelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Path == "" || u.Path == "/" {
			u.Path = "/offer"
		}
	case "ws", "wss":
		if u.Path == "" || u.Path == "/" {
			u.Path = "/ws"
		}
	default:
		return "", fmt.Errorf("unsupported relay scheme: %s", u.Scheme)
	}
	return u.String(), nil
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string, def int) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("%s [%d]", prompt, def)).
			Show()
		if strings.TrimSpace(raw) == "" {
			pterm.Println()
			return def
		}

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}

// askURL prompts the user for a valid relay URL until one is entered.
func askURL(def string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("Relay URL [%s]", def)).
			Show()
		if strings.TrimSpace(raw) == "" {
			raw = def
		}

		relayURL, err := normalizeRelayURL(raw)
		if err == nil {
			pterm.Println()
			return relayURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

// askDuration prompts for the streaming duration.
func askDuration(def time.Duration) time.Duration {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(fmt.Sprintf("Streaming duration, e.g. 60s or 5m [%s]", def)).
			Show()
		if strings.TrimSpace(raw) == "" {
			pterm.Println()
			return def
		}

		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err == nil && d > 0 {
			pterm.Println()
			return d
		}

		util.LogWarning("invalid duration: must be positive, e.g. 60s")
		pterm.Println()
	}
}

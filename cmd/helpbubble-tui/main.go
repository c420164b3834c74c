package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
)

const (
	defaultAPIBase              = "http://127.0.0.1:8000"
	defaultAskTimeoutSeconds    = 30
	defaultHealthTimeoutSeconds = 5
	defaultHealthIntervalSecond = 30
)

const (
	welcomeText = "Hi! I'm HelpBubble, your customer support assistant. Ask me anything about orders, returns, shipping, payments, or your account."

	serverErrorText = "Sorry, something went wrong while processing your request. Please try again in a moment, or contact support if it keeps happening."

	offlineErrorText = "I couldn't reach the support service. Please check your internet connection and try again."
)

var exampleQuestions = []string{
	"How long do I have to return an item?",
	"When will my order arrive?",
	"What payment methods do you accept?",
	"Do your products come with a warranty?",
	"How do I reset my password?",
	"Are there any discounts right now?",
}

type appConfig struct {
	apiBase               string
	logFile               string
	askTimeoutSeconds     int
	healthTimeoutSeconds  int
	healthIntervalSeconds int
	altScreen             bool
}

func parseFlags() appConfig {
	cfg := appConfig{}
	flag.StringVar(&cfg.apiBase, "api-base", envOr("HELPBUBBLE_API_BASE", defaultAPIBase), "Base URL of the HelpBubble QA service")
	flag.StringVar(&cfg.logFile, "log-file", envOr("HELPBUBBLE_LOG_FILE", ""), "Optional diagnostics log file (empty disables logging)")
	flag.IntVar(&cfg.askTimeoutSeconds, "ask-timeout", envOrInt("HELPBUBBLE_ASK_TIMEOUT", defaultAskTimeoutSeconds), "Per-question timeout seconds")
	flag.IntVar(&cfg.healthTimeoutSeconds, "health-timeout", envOrInt("HELPBUBBLE_HEALTH_TIMEOUT", defaultHealthTimeoutSeconds), "Health probe timeout seconds")
	flag.IntVar(&cfg.healthIntervalSeconds, "health-interval", envOrInt("HELPBUBBLE_HEALTH_INTERVAL", defaultHealthIntervalSecond), "Seconds between health re-checks (0 disables)")
	flag.BoolVar(&cfg.altScreen, "alt-screen", envOrBool("HELPBUBBLE_ALT_SCREEN", true), "Use alternate screen buffer")
	flag.Parse()

	cfg.apiBase = strings.TrimRight(strings.TrimSpace(cfg.apiBase), "/")
	if cfg.apiBase == "" {
		cfg.apiBase = defaultAPIBase
	}
	cfg.askTimeoutSeconds = clampInt(cfg.askTimeoutSeconds, 1, 120)
	cfg.healthTimeoutSeconds = clampInt(cfg.healthTimeoutSeconds, 1, 60)
	if cfg.healthIntervalSeconds != 0 {
		cfg.healthIntervalSeconds = clampInt(cfg.healthIntervalSeconds, 5, 3600)
	}
	return cfg
}

// newLogger wires zerolog to the configured file. The TUI owns the terminal,
// so without a log file diagnostics are dropped entirely.
func newLogger(path string) (zerolog.Logger, func(), error) {
	if strings.TrimSpace(path) == "" {
		return zerolog.Nop(), func() {}, nil
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), func() {}, fmt.Errorf("opening log file: %w", err)
	}
	logger := zerolog.New(file).With().Timestamp().Logger()
	return logger, func() { _ = file.Close() }, nil
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return fallback
	}
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func wrapText(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	wrapped := make([]string, 0, len(lines))
	for _, line := range lines {
		words := strings.Fields(line)
		if len(words) == 0 {
			wrapped = append(wrapped, "")
			continue
		}
		current := words[0]
		for _, word := range words[1:] {
			if len(current)+1+len(word) <= width {
				current += " " + word
				continue
			}
			wrapped = append(wrapped, current)
			current = word
		}
		wrapped = append(wrapped, current)
	}
	return strings.Join(wrapped, "\n")
}

func truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	if limit <= 3 {
		return text[:limit]
	}
	return text[:limit-3] + "..."
}

func compactSingleLine(text string, limit int) string {
	compact := strings.Join(strings.Fields(text), " ")
	return truncate(compact, limit)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

func main() {
	cfg := parseFlags()

	logger, closeLog, err := newLogger(cfg.logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "helpbubble-tui: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if cfg.altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(cfg, logger), opts...)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "helpbubble-tui fatal error: %v\n", err)
		os.Exit(1)
	}
}

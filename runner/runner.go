// Package runner holds the shared run-mode configuration and the pieces
// every mode needs: logging, telemetry and the startup banner.
package runner

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/lucasrcezimbra/missas/tlmt"
	"github.com/lucasrcezimbra/missas/tlmt/gonoop"
	"github.com/lucasrcezimbra/missas/tlmt/goposthog"
)

const (
	RunModeResolve = iota + 1
	RunModeWeb
	RunModeWorker
)

var ErrInvalidRunMode = errors.New("invalid run mode")

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

type Config struct {
	Concurrency int
	Dsn         string
	DBPath      string
	Addr        string
	Debug       bool
	PendingTTL  time.Duration
	WebRunner   bool
	WorkerMode  bool
	RunMode     int
}

func ParseConfig() *Config {
	cfg := Config{}

	flag.IntVar(&cfg.Concurrency, "c", max(runtime.NumCPU()/2, 1), "sets the concurrency [default: half of CPU cores]")
	flag.StringVar(&cfg.Dsn, "dsn", "", "PostgreSQL connection string [default: use the sqlite file]")
	flag.StringVar(&cfg.DBPath, "db", "missas.db", "path to the sqlite database file")
	flag.StringVar(&cfg.Addr, "addr", ":8080", "address to listen on for the web server")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flag.DurationVar(&cfg.PendingTTL, "pending-ttl", 30*time.Minute, "how long an ambiguous candidate list awaits an operator")
	flag.BoolVar(&cfg.WebRunner, "web", false, "run the web server instead of a one-shot resolution")
	flag.BoolVar(&cfg.WorkerMode, "worker", false, "run the Redis task worker")

	flag.Parse()

	if cfg.Concurrency < 1 {
		panic("Concurrency must be greater than 0")
	}

	if cfg.Dsn == "" && cfg.DBPath == "" {
		panic("either a dsn or a sqlite db path must be provided")
	}

	switch {
	case cfg.WorkerMode:
		cfg.RunMode = RunModeWorker
	case cfg.WebRunner:
		cfg.RunMode = RunModeWeb
	default:
		cfg.RunMode = RunModeResolve
	}

	return &cfg
}

// NewLogger builds the process logger; debug switches to the development
// encoder.
func NewLogger(debug bool) *zap.Logger {
	if debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			panic(err)
		}

		return logger
	}

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	return logger
}

var (
	telemetryOnce sync.Once
	telemetry     tlmt.Telemetry
)

// Telemetry returns the process-wide telemetry sink. It is a noop unless
// POSTHOG_API_KEY is set, and always a noop when DISABLE_TELEMETRY=1.
func Telemetry() tlmt.Telemetry {
	telemetryOnce.Do(func() {
		if os.Getenv("DISABLE_TELEMETRY") == "1" {
			telemetry = gonoop.New()

			return
		}

		apiKey := os.Getenv("POSTHOG_API_KEY")
		if apiKey == "" {
			telemetry = gonoop.New()

			return
		}

		endpoint := os.Getenv("POSTHOG_ENDPOINT")
		if endpoint == "" {
			endpoint = "https://eu.i.posthog.com"
		}

		val, err := goposthog.New(apiKey, endpoint)
		if err != nil || val == nil {
			telemetry = gonoop.New()

			return
		}

		telemetry = val
	})

	return telemetry
}

func wrapText(text string, width int) []string {
	var lines []string

	currentLine := ""
	currentWidth := 0

	for _, r := range text {
		runeWidth := runewidth.RuneWidth(r)
		if currentWidth+runeWidth > width {
			lines = append(lines, currentLine)
			currentLine = string(r)
			currentWidth = runeWidth
		} else {
			currentLine += string(r)
			currentWidth += runeWidth
		}
	}

	if currentLine != "" {
		lines = append(lines, currentLine)
	}

	return lines
}

func banner(messages []string, width int) string {
	if width <= 0 {
		var err error

		width, _, err = term.GetSize(0)
		if err != nil {
			width = 80
		}
	}

	if width < 20 {
		width = 20
	}

	contentWidth := width - 4

	var wrappedLines []string
	for _, message := range messages {
		wrappedLines = append(wrappedLines, wrapText(message, contentWidth)...)
	}

	var builder strings.Builder

	builder.WriteString("╔" + strings.Repeat("═", width-2) + "╗\n")

	for _, line := range wrappedLines {
		lineWidth := runewidth.StringWidth(line)
		paddingRight := contentWidth - lineWidth

		if paddingRight < 0 {
			paddingRight = 0
		}

		builder.WriteString(fmt.Sprintf("║ %s%s ║\n", line, strings.Repeat(" ", paddingRight)))
	}

	builder.WriteString("╚" + strings.Repeat("═", width-2) + "╝\n")

	return builder.String()
}

func Banner() {
	message1 := "⛪ missas.com.br location resolver"
	message2 := "🗺️  Resolves parish schedule locations into geocoded places"

	fmt.Fprintln(os.Stderr, banner([]string{message1, message2}, 0))
}

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nkootstra/romlink/internal/catalog"
	"github.com/nkootstra/romlink/internal/config"
	"github.com/nkootstra/romlink/internal/server"
	"github.com/nkootstra/romlink/internal/tui"
)

var (
	serveConfigPath   string
	serveAddr         string
	serveDir          string
	serveInclude      []string
	serveHTTPAddr     string
	serveReadTimeout  time.Duration
	serveWriteTimeout time.Duration
	serveSequential   bool
	serveWatch        bool
	serveTUI          bool
	serveLogFile      string
)

var serveCmd = &cobra.Command{
	Use:   "serve [addr] [dir]",
	Short: "Serve the ROMs in a directory",
	Long: `Serve the regular files of a directory as a ROM catalog.

The catalog is built once at startup in lexical file name order and ids
are positions in it. Restart the server to pick up new files. Files whose
names are not valid UTF-8 are skipped with a warning.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveConfigPath, "config", "", "TOML or YAML config file")
	f.StringVar(&serveAddr, "addr", "", "Listen address (default \":4321\")")
	f.StringVar(&serveDir, "dir", "", "ROM directory (default \".\")")
	f.StringSliceVar(&serveInclude, "include", nil, "Only serve files matching these globs or presets (e.g. chip8)")
	f.StringVar(&serveHTTPAddr, "http-addr", "", "Listen address of the HTTP gateway (disabled when empty)")
	f.DurationVar(&serveReadTimeout, "read-timeout", 0, "Time allowed for a client to send its command (default 5s)")
	f.DurationVar(&serveWriteTimeout, "write-timeout", 0, "Time allowed to write a response (default 10s)")
	f.BoolVar(&serveSequential, "sequential", false, "Serve one connection at a time")
	f.BoolVar(&serveWatch, "watch", false, "Warn when the ROM directory changes after startup")
	f.BoolVar(&serveTUI, "tui", false, "Show a live dashboard instead of log output")
	f.StringVar(&serveLogFile, "log-file", "", "Append JSON logs to this file instead of stderr")
}

// resolveServeConfig layers defaults, the config file, positional args and
// explicitly set flags, in that order.
func resolveServeConfig(cmd *cobra.Command, args []string) (config.ServerConfig, error) {
	cfg := config.DefaultServerConfig()
	if serveConfigPath != "" {
		loaded, err := config.LoadServerConfig(serveConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if len(args) > 0 {
		cfg.Addr = args[0]
	}
	if len(args) > 1 {
		cfg.Dir = args[1]
	}

	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr = serveAddr
	}
	if f.Changed("dir") {
		cfg.Dir = serveDir
	}
	if f.Changed("include") {
		cfg.Include = serveInclude
	}
	if f.Changed("http-addr") {
		cfg.HTTPAddr = serveHTTPAddr
	}
	if f.Changed("read-timeout") {
		cfg.ReadTimeout = serveReadTimeout.String()
	}
	if f.Changed("write-timeout") {
		cfg.WriteTimeout = serveWriteTimeout.String()
	}
	if f.Changed("sequential") {
		cfg.Sequential = serveSequential
	}
	if f.Changed("watch") {
		cfg.Watch = serveWatch
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// serveLogger picks where server logs go. A log file always wins. Without
// one the dashboard gets a disabled logger since it owns the terminal.
func serveLogger(tui bool, path string) (zerolog.Logger, *os.File, error) {
	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		f, err := os.OpenFile(expanded, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		logger := zerolog.New(f).
			Level(log.Logger.GetLevel()).
			With().Timestamp().Str("app", "romlink").
			Logger()
		return logger, f, nil
	}
	if tui {
		return zerolog.Nop(), nil, nil
	}
	return log.Logger, nil, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := resolveServeConfig(cmd, args)
	if err != nil {
		return err
	}

	filter, err := catalog.NewFilter(cfg.Include...)
	if err != nil {
		return err
	}
	roms := os.DirFS(cfg.Dir)
	cat, err := catalog.Load(roms, filter)
	if err != nil {
		return err
	}

	logger, logFile, err := serveLogger(serveTUI, serveLogFile)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	opts := server.Options{
		ReadTimeout:  cfg.ReadTimeoutDuration(),
		WriteTimeout: cfg.WriteTimeoutDuration(),
		Sequential:   cfg.Sequential,
		Logger:       &logger,
	}
	if cfg.HTTPAddr != "" {
		opts.Metrics = server.NewMetrics()
	}
	srv := server.New(cat, roms, opts)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	var httpLn net.Listener
	if cfg.HTTPAddr != "" {
		httpLn, err = net.Listen("tcp", cfg.HTTPAddr)
		if err != nil {
			_ = ln.Close()
			return fmt.Errorf("listen %s: %w", cfg.HTTPAddr, err)
		}
	}

	if cfg.Watch {
		if err := srv.WatchDir(ctx, cfg.Dir); err != nil {
			logger.Warn().Err(err).Str("dir", cfg.Dir).Msg("directory watch disabled")
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, ln)
	})
	if httpLn != nil {
		g.Go(func() error {
			return srv.ServeHTTP(gctx, httpLn)
		})
	}
	if serveTUI {
		g.Go(func() error {
			defer cancel()
			model := tui.NewModel(tui.Options{
				Events:   srv.Events,
				Roms:     cat.List(),
				HTTPAddr: cfg.HTTPAddr,
				OnQuit:   cancel,
			})
			_, err := tea.NewProgram(model, tea.WithContext(gctx)).Run()
			if err != nil && gctx.Err() == nil {
				return fmt.Errorf("TUI error: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

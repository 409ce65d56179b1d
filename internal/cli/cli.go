// ============================================================================
// Intro Sequencer CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: Cobra command tree hosting the sequencer
//
// Command Structure:
//   sequencer                      # Root command
//   ├── play                       # Interactive terminal presentation
//   ├── demo                       # Headless run printing every transition
//   │   ├── --skip-after           # Skip to the finale after a delay
//   │   ├── --restart              # Replay once after completion
//   │   └── --speed                # Time compression factor
//   ├── timeline                   # Print the offset plan of a natural run
//   ├── validate                   # Check a script file
//   ├── export                     # Write the built-in script as YAML
//   ├── --config, -c               # Config file (default configs/default.yaml)
//   ├── --script                   # Script file, overrides config
//   └── --log-level                # Overrides log.level
//
// Configuration Management:
//   YAML config (configs/default.yaml) then SEQUENCER_* environment variables.
//   A missing default config file falls back to built-in defaults.
//
// play Command:
//   1. Load config and script
//   2. Start metrics HTTP server (if enabled)
//   3. Run the Bubble Tea program until quit or SIGINT/SIGTERM
//   4. Tear the sequencer down (no timers survive)
//   Logs go to log.file while the terminal is owned by the TUI.
//
// ============================================================================

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ChuLiYu/intro-sequencer/internal/config"
	"github.com/ChuLiYu/intro-sequencer/internal/metrics"
	"github.com/ChuLiYu/intro-sequencer/internal/script"
	"github.com/ChuLiYu/intro-sequencer/internal/sequencer"
	"github.com/ChuLiYu/intro-sequencer/internal/tui"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	configFile string
	scriptFile string
	logLevel   string
)

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sequencer",
		Short: "Intro Sequencer: a timed presentation sequencer",
		Long: `Intro Sequencer plays a scripted landing presentation:
- overlapping captions
- a typewriter line
- a finale with a staggered menu reveal
- skip and restart with total cancellation of pending timers`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().StringVar(&scriptFile, "script", "", "script file path (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(buildPlayCommand())
	rootCmd.AddCommand(buildDemoCommand())
	rootCmd.AddCommand(buildTimelineCommand())
	rootCmd.AddCommand(buildValidateCommand())
	rootCmd.AddCommand(buildExportCommand())

	return rootCmd
}

// ============================================================================
// play
// ============================================================================

func buildPlayCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Start the presentation in the terminal",
		Long:  "Play the sequence full screen. Keys: s skip, r restart, 1-9 open a menu section, q quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context())
		},
	}
	return cmd
}

func runPlay(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logOut, closeLog, err := openLogFile(cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()
	logger, err := setupLogger(cfg, logOut)
	if err != nil {
		return err
	}

	sc, err := loadScript(cfg)
	if err != nil {
		return err
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	seq, err := newSequencer(cfg, sc, logger)
	if err != nil {
		return err
	}
	defer seq.Close()

	if cfg.Metrics.Enabled {
		logger.Info("Starting metrics server", "port", cfg.Metrics.Port)
		g.Go(func() error {
			return metrics.StartServer(ctx, cfg.Metrics.Port)
		})
	}

	if err := seq.Start(); err != nil {
		return fmt.Errorf("failed to start sequencer: %w", err)
	}

	program := tea.NewProgram(
		tui.NewAppModel(seq, cfg.FrameInterval()),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	g.Go(func() error {
		// quitting the TUI ends the metrics server too
		defer stop()
		if _, err := program.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("terminal UI failed: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Presentation stopped", "run", seq.State().RunID)
	return err
}

// ============================================================================
// 共用輔助
// ============================================================================

func loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if scriptFile != "" {
		cfg.Script = scriptFile
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	return cfg, nil
}

// loadScript returns the built-in script when none is configured.
func loadScript(cfg *config.Config) (*script.Script, error) {
	sc := script.Default()
	if cfg.Script != "" {
		var err error
		if sc, err = script.Load(cfg.Script); err != nil {
			return nil, fmt.Errorf("failed to load script: %w", err)
		}
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid script: %w", err)
	}
	return sc, nil
}

// setupLogger installs a text handler on w as the slog default.
func setupLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger, nil
}

// openLogFile the TUI owns stdout, so logs go to a file or nowhere.
func openLogFile(path string) (io.Writer, func(), error) {
	if path == "" {
		return io.Discard, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, func() { f.Close() }, nil
}

// newSequencer wires the config into a Sequencer on the real clock.
func newSequencer(cfg *config.Config, sc *script.Script, logger *slog.Logger, opts ...func(*sequencer.Config)) (*sequencer.Sequencer, error) {
	policy, err := cfg.SkipPolicy()
	if err != nil {
		return nil, err
	}

	seqCfg := sequencer.Config{
		Script:     sc,
		SkipPolicy: policy,
		Logger:     logger,
		OnNavigate: func(target string) {
			logger.Info("Section opened", "target", target)
		},
	}
	if cfg.Metrics.Enabled {
		seqCfg.Recorder = metrics.NewCollector()
	}
	for _, opt := range opts {
		opt(&seqCfg)
	}
	return sequencer.New(seqCfg), nil
}

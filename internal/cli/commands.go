package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ChuLiYu/intro-sequencer/internal/script"
	"github.com/ChuLiYu/intro-sequencer/internal/sequencer"
	"github.com/ChuLiYu/intro-sequencer/pkg/types"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

// ============================================================================
// demo
// ============================================================================

type demoOptions struct {
	SkipAfter time.Duration
	Restart   bool
	Speed     float64
}

func buildDemoCommand() *cobra.Command {
	var opts demoOptions

	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the sequence headless and print every transition",
		Long:  "Play the sequence on the real clock without a terminal UI, printing caption, typewriter and finale transitions as they happen.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().DurationVar(&opts.SkipAfter, "skip-after", 0, "skip to the finale after this delay (0 = never)")
	cmd.Flags().BoolVar(&opts.Restart, "restart", false, "replay the sequence once after it completes")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 1, "time compression factor (2 = twice as fast)")

	return cmd
}

func runDemo(ctx context.Context, out io.Writer, opts demoOptions) error {
	if opts.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %v", opts.Speed)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := setupLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	sc, err := loadScript(cfg)
	if err != nil {
		return err
	}
	sc.Durations = sc.Durations.Scale(opts.Speed)

	seq, err := newSequencer(cfg, sc, logger)
	if err != nil {
		return err
	}
	defer seq.Close()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return playHeadless(ctx, out, seq, opts)
}

// playHeadless drives seq until completion (or ctx cancellation), echoing
// every observed transition to out.
func playHeadless(ctx context.Context, out io.Writer, seq *sequencer.Sequencer, opts demoOptions) error {
	p := &transitionPrinter{
		out:        out,
		start:      time.Now(),
		captions:   seq.Captions(),
		typewriter: seq.Typewriter(),
		headline:   seq.Headline(),
		menu:       seq.Menu(),
	}

	if err := seq.Start(); err != nil {
		return fmt.Errorf("failed to start sequencer: %w", err)
	}

	var skipC <-chan time.Time
	if opts.SkipAfter > 0 {
		t := time.NewTimer(opts.SkipAfter)
		defer t.Stop()
		skipC = t.C
	}

	restarted := false
	for {
		select {
		case <-ctx.Done():
			p.line("interrupted")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-skipC:
			skipC = nil
			if seq.Skip() {
				p.line("skip")
			}

		case <-seq.Updates():
			st := seq.State()
			p.observe(st)
			if !st.Complete() {
				continue
			}
			if opts.Restart && !restarted {
				restarted = true
				if err := seq.Restart(); err != nil {
					return fmt.Errorf("failed to restart: %w", err)
				}
				p.line("restart")
				continue
			}
			return nil
		}
	}
}

// transitionPrinter diffs consecutive snapshots and prints what changed.
type transitionPrinter struct {
	out        io.Writer
	start      time.Time
	prev       types.State
	captions   []types.Caption
	typewriter string
	headline   script.Headline
	menu       []types.MenuEntry
}

func (p *transitionPrinter) line(format string, args ...any) {
	elapsed := time.Since(p.start).Truncate(time.Millisecond)
	fmt.Fprintf(p.out, "%10s  %s\n", elapsed, fmt.Sprintf(format, args...))
}

func (p *transitionPrinter) observe(st types.State) {
	prev := p.prev
	if st.RunID != prev.RunID {
		p.line("run %d started", st.RunID)
		prev = types.State{RunID: st.RunID}
	}

	for _, i := range st.ActiveCaptions {
		if !prev.IsActive(i) && i < len(p.captions) {
			p.line("caption %d  %s", i, strings.Join(p.captions[i].Lines(), " / "))
		}
	}
	if st.TypewriterStarted && !prev.TypewriterStarted {
		p.line("typewriter")
	}
	if n := len([]rune(p.typewriter)); n > 0 && st.TypewriterChars == n && prev.TypewriterChars != n {
		p.line("typewriter  %s", p.typewriter)
	}
	if st.Skipped && !prev.Skipped {
		p.line("skipped to finale")
	}
	if st.FinaleShown && !prev.FinaleShown {
		p.line("finale  %s", p.headline.Main)
	}
	if st.FinaleSettled && !prev.FinaleSettled {
		p.line("settled  %s", p.headline.Sub)
	}
	if st.MenuMounted && !prev.MenuMounted {
		p.line("menu")
	}
	for _, k := range st.RevealedItems {
		if !prev.ItemRevealed(k) && k < len(p.menu) {
			p.line("item %d  %s", k, p.menu[k].Label)
		}
	}
	if st.RestartVisible && !prev.RestartVisible {
		p.line("complete, restart available")
	}

	p.prev = st
}

// ============================================================================
// timeline
// ============================================================================

func buildTimelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print the offset plan of an uninterrupted run",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			sc, err := loadScript(cfg)
			if err != nil {
				return err
			}
			printTimeline(cmd.OutOrStdout(), sc)
			return nil
		},
	}
	return cmd
}

func printTimeline(out io.Writer, sc *script.Script) {
	tl := sc.Timeline()

	t := table.New().Headers("OFFSET", "EVENT")
	for _, e := range tl.Plan() {
		t.Row(e.Offset.String(), e.Label)
	}

	fmt.Fprintln(out, t.String())
	fmt.Fprintf(out, "typewriter at %s, finale at %s, complete at %s\n",
		tl.TypewriterStart(), tl.FinaleStart(), tl.TotalDuration())
}

// ============================================================================
// validate
// ============================================================================

func buildValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [script.yaml]",
		Short: "Validate a script file",
		Long:  "Validate the given script file, or the configured one when no argument is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Script = args[0]
			}
			sc, err := loadScript(cfg)
			if err != nil {
				return err
			}
			printScriptSummary(cmd.OutOrStdout(), cfg.Script, sc)
			return nil
		},
	}
	return cmd
}

func printScriptSummary(out io.Writer, path string, sc *script.Script) {
	if path == "" {
		path = "(built-in)"
	}
	tl := sc.Timeline()
	navigable := 0
	for _, e := range sc.Menu {
		if e.Navigable() {
			navigable++
		}
	}

	fmt.Fprintf(out, "✅ Script OK: %s\n", path)
	fmt.Fprintf(out, "  ├─ Captions:    %d\n", len(sc.Texts))
	fmt.Fprintf(out, "  ├─ Typewriter:  %d chars\n", sc.Chars())
	fmt.Fprintf(out, "  ├─ Menu:        %d entries (%d navigable)\n", len(sc.Menu), navigable)
	fmt.Fprintf(out, "  ├─ Finale at:   %s\n", tl.FinaleStart())
	fmt.Fprintf(out, "  └─ Complete at: %s\n", tl.TotalDuration())
}

// ============================================================================
// export
// ============================================================================

func buildExportCommand() *cobra.Command {
	var out string
	var force bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the built-in script as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportScript(cmd.OutOrStdout(), out, force)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "destination file")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.MarkFlagRequired("out")

	return cmd
}

func exportScript(w io.Writer, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := script.Default().Save(path); err != nil {
		return fmt.Errorf("failed to export script: %w", err)
	}
	fmt.Fprintf(w, "Wrote built-in script to %s\n", path)
	return nil
}

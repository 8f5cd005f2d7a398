// Command swarmsim runs the population and economy simulation.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/talgya/swarm-economy/internal/api"
	"github.com/talgya/swarm-economy/internal/config"
	"github.com/talgya/swarm-economy/internal/engine"
	"github.com/talgya/swarm-economy/internal/persistence"
)

func main() {
	if err := run(); err != nil {
		slog.Error("swarmsim failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = flag.String("config", "", "path to a YAML config file (defaults are embedded)")
		seed       = flag.Int64("seed", 0, "random seed (0 keeps the configured seed)")
		maxTicks   = flag.Uint64("max-ticks", 0, "stop after this many ticks (0 keeps the configured limit)")
		outDir     = flag.String("out", "", "result directory (empty keeps the configured one)")
		port       = flag.Int("port", -1, "status API port (0 disables, -1 keeps the configured port)")
		tps        = flag.Float64("tps", -1, "ticks per second (0 runs unpaced, -1 keeps the mode's pacing)")
		quiet      = flag.Bool("quiet", false, "suppress the console status snapshot")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: swarmsim [flags] [mode]\n\nmodes: %s\n\n", modeNames())
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *maxTicks != 0 {
		cfg.Run.MaxTicks = *maxTicks
	}
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}
	if *port >= 0 {
		cfg.API.Port = *port
	}
	if *quiet {
		cfg.Status.Enabled = false
	}
	if *tps >= 0 {
		cfg.Run.TicksPerSecond = tps
	}

	mode := flag.Arg(0)
	if mode == "" && isatty.IsTerminal(os.Stdin.Fd()) {
		mode = chooseMode(os.Stdin, os.Stdout, cfg.Mode)
	}
	if mode == "" {
		mode = cfg.Mode
	}
	if err := cfg.SetMode(mode); err != nil {
		return err
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	return simulate(cfg, os.Stdout)
}

// simulate runs one simulation to completion or interruption and always
// writes the result artifact afterwards.
func simulate(cfg *config.Config, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode := cfg.Derived.Mode
	slog.Info("swarmsim starting",
		"mode", mode.Name,
		"ticks_per_day", mode.TicksPerDay,
		"ticks_per_second", mode.TicksPerSecond,
		"seed", cfg.Seed,
		"max_ticks", cfg.Run.MaxTicks,
		"true_random", cfg.RandomOrgKey != "",
	)

	sim := engine.NewSimulation(cfg)
	eng := engine.NewEngine(mode.TicksPerSecond)
	eng.MaxTicks = cfg.Run.MaxTicks
	eng.OnTick = sim.Step
	eng.Every(mode.StatusEvery, func(tick uint64) {
		st := sim.PublishStatus(tick)
		if cfg.Status.Enabled {
			if err := engine.RenderStatus(out, st); err != nil {
				slog.Warn("status render failed", "error", err)
			}
		}
	})
	sim.PublishStatus(0)

	apiCtx, stopAPI := context.WithCancel(ctx)
	var wg sync.WaitGroup
	if cfg.API.Port > 0 {
		srv := api.New(sim, openArchive(cfg), cfg.API.Port)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(apiCtx); err != nil {
				slog.Error("status API failed", "error", err)
			}
			if srv.DB != nil {
				srv.DB.Close()
			}
		}()
	}

	if err := sim.Oracle.Prefetch(ctx); err != nil {
		slog.Warn("random.org prefetch failed", "error", err)
	}

	started := time.Now()
	eng.Run(ctx)
	stopped := time.Now()

	stopAPI()
	wg.Wait()

	sim.PublishStatus(eng.Tick)
	report := sim.BuildReport(started, stopped)
	runDir, archiveErr := persistence.Archive(cfg.Output.Dir, report, cfg)
	if archiveErr != nil {
		slog.Error("writing results failed", "error", archiveErr)
	} else {
		slog.Info("results written", "dir", runDir)
	}

	printSummary(out, report, stopped.Sub(started))
	return archiveErr
}

// openArchive opens the run archive for the API, or returns nil.
func openArchive(cfg *config.Config) *persistence.DB {
	if !cfg.Output.SQLite {
		return nil
	}
	if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
		slog.Warn("run archive unavailable", "error", err)
		return nil
	}
	db, err := persistence.Open(filepath.Join(cfg.Output.Dir, persistence.ArchiveFile))
	if err != nil {
		slog.Warn("run archive unavailable", "error", err)
		return nil
	}
	return db
}

// chooseMode prompts for a mode on in. An empty answer or an unreadable
// input keeps def.
func chooseMode(in io.Reader, out io.Writer, def string) string {
	fmt.Fprintln(out, "Select a time-scale mode:")
	for i, m := range config.Modes {
		marker := ""
		if m.Name == def {
			marker = " (default)"
		}
		fmt.Fprintf(out, "  %d) %-9s %s ticks/day%s\n", i+1, m.Name, humanize.Comma(int64(m.TicksPerDay)), marker)
	}

	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			return def
		}
		answer := strings.TrimSpace(sc.Text())
		if answer == "" {
			return def
		}
		if m, err := config.ParseMode(answer); err == nil {
			return m.Name
		}
		fmt.Fprintf(out, "unknown mode %q\n", answer)
	}
}

func modeNames() string {
	names := make([]string, len(config.Modes))
	for i, m := range config.Modes {
		names[i] = m.Name
	}
	return strings.Join(names, ", ")
}

func printSummary(w io.Writer, r *engine.Report, elapsed time.Duration) {
	st := r.Stats
	rate := 0.0
	if done := st.ActivitiesCompleted(); done > 0 {
		rate = float64(st.ActivitiesSucceeded) / float64(done) * 100
	}

	fmt.Fprintf(w, "\n=== Run %s finished ===\n", r.RunID)
	fmt.Fprintf(w, "Mode %s, seed %d, %s ticks (%d full days) in %s\n",
		r.Mode, r.Seed, humanize.Comma(int64(r.Tick)), r.Day, elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Population %d final, %d peak, %d joined, %d left\n",
		r.Population.Final, r.Population.Peak, r.Population.TotalJoined, r.Population.TotalLeft)
	fmt.Fprintf(w, "Activities %s started, %s succeeded (%.1f%%), %s failed\n",
		humanize.Comma(int64(st.ActivitiesStarted)), humanize.Comma(int64(st.ActivitiesSucceeded)), rate,
		humanize.Comma(int64(st.ActivitiesFailed)))
	fmt.Fprintf(w, "Economy    %s RP earned, %s RP spent, multiplier %.3f\n",
		humanize.Comma(st.RPEarned), humanize.Comma(st.RPSpent), r.Multiplier)
	fmt.Fprintf(w, "Events     %d world, %d recovery (%d backfired), %d breaches\n",
		st.WorldEvents, st.RecoveryEvents, st.RecoveryBackfired, st.Breaches)
}

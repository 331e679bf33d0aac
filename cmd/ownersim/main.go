// Package main provides the ownersim CLI: schedule activities and drive
// the season simulation day by day against a memory, SQLite, or Postgres
// store.
package main

import (
	"context"
	"expvar"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"

	"github.com/yangxiaofu/the-owners-sim-sub008/internal/adapters/repository/memory"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/adapters/repository/postgres"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/adapters/repository/sqlite"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/app/dto"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/app/services"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/app/usecases"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/activity"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/calendar"
	"github.com/yangxiaofu/the-owners-sim-sub008/internal/core/season"
	"github.com/yangxiaofu/the-owners-sim-sub008/pkg/validation"
)

// Version information set during build
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

const dateLayout = "2006-01-02"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "ownersim - sports season scheduling and simulation engine")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  schedule      add an activity to the calendar")
	fmt.Fprintln(out, "  advance-day   simulate the current day")
	fmt.Fprintln(out, "  advance-week  simulate the next seven days")
	fmt.Fprintln(out, "  advance-to    simulate up to a target date")
	fmt.Fprintln(out, "  standings     print the standings table")
	fmt.Fprintln(out, "  version       print version information")
}

func run(args []string, stdout io.Writer) int {
	if len(args) == 0 {
		usage(stdout)
		return 2
	}

	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "ownersim %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		return 0
	case "schedule":
		return cmdSchedule(args[1:], stdout)
	case "advance-day":
		return cmdAdvance(args[1:], stdout, advanceDay)
	case "advance-week":
		return cmdAdvance(args[1:], stdout, advanceWeek)
	case "advance-to":
		return cmdAdvance(args[1:], stdout, advanceTo)
	case "standings":
		return cmdStandings(args[1:], stdout)
	default:
		fmt.Fprintf(stdout, "unknown command: %s\n\n", args[0])
		usage(stdout)
		return 2
	}
}

// commonOpts are the engine flags shared by every subcommand.
type commonOpts struct {
	DB            string `json:"db"`
	EnvFile       string `json:"env"`
	MetricsAddr   string `json:"metrics"`
	Start         string `json:"start"`
	Policy        string `json:"policy" validate:"conflict_policy"`
	HorizonDays   int    `json:"horizon_days" validate:"gte=0,lte=365"`
	FailurePolicy string `json:"failure_policy" validate:"failure_policy"`
	Workers       int    `json:"workers" validate:"gte=0,lte=64"`
	Verbose       bool   `json:"verbose"`
}

func addCommonFlags(fs *flag.FlagSet) *commonOpts {
	opts := &commonOpts{}
	fs.StringVar(&opts.DB, "db", "", "sqlite database path (default: in-memory store)")
	fs.StringVar(&opts.EnvFile, "env", "", "optional .env file to load")
	fs.StringVar(&opts.MetricsAddr, "metrics", "", "serve expvar metrics on this address while running")
	fs.StringVar(&opts.Start, "start", time.Now().UTC().Format(dateLayout), "season cursor start date (YYYY-MM-DD)")
	fs.StringVar(&opts.Policy, "policy", "reject", "conflict policy: reject, reschedule, force")
	fs.IntVar(&opts.HorizonDays, "horizon", calendar.DefaultRescheduleHorizonDays, "reschedule search horizon in days")
	fs.StringVar(&opts.FailurePolicy, "failure-policy", "continue", "activity failure policy: continue, abort_day")
	fs.IntVar(&opts.Workers, "workers", 1, "outcome computation workers")
	fs.BoolVar(&opts.Verbose, "v", false, "debug logging")
	return opts
}

// engine bundles a wired scheduler with its store cleanup.
type engine struct {
	sched *usecases.Scheduler
	log   *slog.Logger
	close func()
}

// engineStore is the store surface the CLI needs beyond the scheduler's
// port: pending rows rehydrate the calendar on startup.
type engineStore interface {
	usecases.ActivityStore
	ListPending(ctx context.Context) ([]*activity.Activity, error)
}

func buildEngine(ctx context.Context, opts *commonOpts, stdout io.Writer) (*engine, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}
	if err := validation.ValidateStruct(opts); err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	start, err := time.Parse(dateLayout, opts.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", opts.Start, err)
	}

	var store engineStore
	closeStore := func() {}
	switch {
	case os.Getenv("OWNERSIM_POSTGRES_DSN") != "":
		pg, err := postgres.Connect(ctx, os.Getenv("OWNERSIM_POSTGRES_DSN"), nil)
		if err != nil {
			return nil, err
		}
		store = pg
		closeStore = func() { _ = pg.Close(context.Background()) }
	case opts.DB != "":
		db, err := sqlite.Open(opts.DB, nil)
		if err != nil {
			return nil, err
		}
		store = db
		closeStore = func() { _ = db.Close() }
	default:
		store = memory.NewStore()
	}

	cfg := dto.SimulationConfig{
		ConflictPolicy:        calendar.ConflictPolicy(opts.Policy),
		RescheduleHorizonDays: opts.HorizonDays,
		FailurePolicy:         dto.FailurePolicy(opts.FailurePolicy),
		Workers:               opts.Workers,
	}

	state := season.NewState(start)
	manager := services.NewCheckpointManager(store, state, logger)
	sched, err := usecases.NewScheduler(cfg, state, store, manager, nil, nil, logger)
	if err != nil {
		closeStore()
		return nil, err
	}

	// Rehydrate the calendar from durable pending rows. Rows dated before
	// the cursor cannot run anymore and are skipped.
	pending, err := store.ListPending(ctx)
	if err != nil {
		closeStore()
		return nil, err
	}
	for _, act := range pending {
		if act.Date.Before(state.CurrentDate) {
			logger.Warn("skipping stale pending activity",
				"activity", act.ID, "date", act.Date.Format(dateLayout))
			continue
		}
		if _, err := sched.ScheduleActivity(ctx, act); err != nil {
			logger.Warn("pending activity not rehydrated", "activity", act.ID, "error", err)
		}
	}

	if opts.MetricsAddr != "" {
		go serveMetrics(opts.MetricsAddr, logger)
		fmt.Fprintf(stdout, "metrics: http://%s/debug/vars\n", opts.MetricsAddr)
	}

	return &engine{sched: sched, log: logger, close: closeStore}, nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/debug/vars", expvar.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}

func cmdSchedule(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	fs.SetOutput(stdout)
	opts := addCommonFlags(fs)
	kind := fs.String("kind", "training", "activity kind")
	team := fs.String("team", "", "team identifier")
	date := fs.String("date", "", "activity date (YYYY-MM-DD)")
	resource := fs.String("resource", "", "exclusive resource, empty claims the whole day")
	opponent := fs.String("opponent", "", "opponent team for games")
	target := fs.String("target", "", "scouting target")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx, opts, stdout)
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 1
	}
	defer eng.close()

	day, err := time.Parse(dateLayout, *date)
	if err != nil {
		fmt.Fprintf(stdout, "error: invalid date %q\n", *date)
		return 1
	}

	act, err := activity.New(activity.Kind(*kind), day, *team, *resource)
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 1
	}
	meta := map[string]string{}
	if *opponent != "" {
		meta["opponent"] = *opponent
	}
	if *target != "" {
		meta["target"] = *target
	}
	if len(meta) > 0 {
		act.Meta = meta
	}

	ack, err := eng.sched.ScheduleActivity(ctx, act)
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 1
	}

	if ack.Rescheduled {
		fmt.Fprintf(stdout, "scheduled %s for %s on %s (moved from %s)\n",
			*kind, *team, ack.Date.Format(dateLayout), ack.OriginalDate.Format(dateLayout))
	} else {
		fmt.Fprintf(stdout, "scheduled %s for %s on %s\n",
			*kind, *team, ack.Date.Format(dateLayout))
	}
	return 0
}

type advanceFunc func(ctx context.Context, eng *engine, fs *flag.FlagSet) (*dto.AdvanceReport, error)

func advanceDay(ctx context.Context, eng *engine, _ *flag.FlagSet) (*dto.AdvanceReport, error) {
	return eng.sched.AdvanceToDate(ctx, eng.sched.CurrentDate().AddDate(0, 0, 1))
}

func advanceWeek(ctx context.Context, eng *engine, _ *flag.FlagSet) (*dto.AdvanceReport, error) {
	return eng.sched.AdvanceWeek(ctx)
}

func advanceTo(ctx context.Context, eng *engine, fs *flag.FlagSet) (*dto.AdvanceReport, error) {
	to := fs.Lookup("to").Value.String()
	target, err := time.Parse(dateLayout, to)
	if err != nil {
		return nil, fmt.Errorf("invalid target date %q", to)
	}
	return eng.sched.AdvanceToDate(ctx, target)
}

func cmdAdvance(args []string, stdout io.Writer, fn advanceFunc) int {
	fs := flag.NewFlagSet("advance", flag.ContinueOnError)
	fs.SetOutput(stdout)
	opts := addCommonFlags(fs)
	fs.String("to", "", "target date (YYYY-MM-DD), advance-to only")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx, opts, stdout)
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 1
	}
	defer eng.close()

	report, err := fn(ctx, eng, fs)
	if report != nil {
		printReport(stdout, report)
	}
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 1
	}
	if report.Halted {
		return 1
	}
	return 0
}

func printReport(out io.Writer, report *dto.AdvanceReport) {
	for _, day := range report.Days {
		fmt.Fprintf(out, "%s  %-9s  executed=%d failures=%d",
			day.Date.Format(dateLayout), day.Status, len(day.Outcomes), len(day.Failures))
		if day.PhaseAdvanced {
			fmt.Fprintf(out, "  phase=%s", day.Phase)
		}
		fmt.Fprintln(out)
		for _, f := range day.Failures {
			fmt.Fprintf(out, "    failed %s (%s, %s stage): %s\n", f.Kind, f.TeamID, f.Stage, f.Error)
		}
	}
}

func cmdStandings(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("standings", flag.ContinueOnError)
	fs.SetOutput(stdout)
	opts := addCommonFlags(fs)
	to := fs.String("to", "", "advance to this date before printing (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	eng, err := buildEngine(ctx, opts, stdout)
	if err != nil {
		fmt.Fprintf(stdout, "error: %v\n", err)
		return 1
	}
	defer eng.close()

	if *to != "" {
		target, err := time.Parse(dateLayout, *to)
		if err != nil {
			fmt.Fprintf(stdout, "error: invalid target date %q\n", *to)
			return 1
		}
		if _, err := eng.sched.AdvanceToDate(ctx, target); err != nil {
			fmt.Fprintf(stdout, "error: %v\n", err)
			return 1
		}
	}

	printStandings(stdout, eng.sched.State())
	return 0
}

func printStandings(out io.Writer, state *season.State) {
	fmt.Fprintf(out, "phase: %s  day: %s\n", state.Phase, state.CurrentDate.Format(dateLayout))
	if len(state.Standings) == 0 {
		fmt.Fprintln(out, "no games played")
		return
	}

	teams := make([]*season.TeamRecord, 0, len(state.Standings))
	for _, rec := range state.Standings {
		teams = append(teams, rec)
	}
	sort.Slice(teams, func(i, j int) bool {
		if teams[i].Wins != teams[j].Wins {
			return teams[i].Wins > teams[j].Wins
		}
		return teams[i].TeamID < teams[j].TeamID
	})

	fmt.Fprintf(out, "%-20s %4s %4s %4s %5s %5s\n", "TEAM", "W", "L", "T", "PF", "PA")
	for _, rec := range teams {
		fmt.Fprintf(out, "%-20s %4d %4d %4d %5d %5d\n",
			rec.TeamID, rec.Wins, rec.Losses, rec.Ties, rec.PointsFor, rec.PointsAgainst)
	}
}

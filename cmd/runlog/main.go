// runlog is the operator CLI for inspecting recorded runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/xtxerr/runlog/internal/catalog"
	"github.com/xtxerr/runlog/internal/config"
	"github.com/xtxerr/runlog/internal/logging"
	"github.com/xtxerr/runlog/internal/query"
	"github.com/xtxerr/runlog/internal/storage"
	"github.com/xtxerr/runlog/internal/storage/summary"
	"github.com/xtxerr/runlog/internal/storage/table"
)

// Version is set at build time via ldflags
var Version = "dev"

const usage = `runlog %s - experiment metrics store

Usage: runlog [flags] <command> [args]

Commands:
  projects                       list projects
  runs <project>                 list runs in a project
  show <project> <run> [metric ...]
                                 print a run's metric table
  summary <project> <run>        per-metric statistics for a run
  agg <project> <run> <metric>   aggregate a metric over the archive
  status <project> <run>         show a run's lifecycle status
  shell                          interactive shell

Flags:
`

func main() {
	cfgPath := flag.String("config", "", "config file path")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	jsonLogs := flag.Bool("json-logs", false, "force JSON log output")
	verbose := flag.Bool("v", false, "debug logging")
	limit := flag.Int("limit", 50, "maximum rows printed by show")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, usage, Version)
		flag.PrintDefaults()
	}
	flag.Parse()

	var cfg *config.Config
	var err error
	if *cfgPath != "" {
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
		cfg.ApplyEnv()
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logging.Init(level, *jsonLogs || !term.IsTerminal(int(os.Stderr.Fd())))

	app := &app{
		cfg:     cfg,
		catalog: catalog.New(cfg.DataDir),
		limit:   *limit,
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := app.dispatch(flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "runlog: %v\n", err)
		os.Exit(1)
	}
}

// app holds the resolved configuration shared by all commands.
type app struct {
	cfg     *config.Config
	catalog *catalog.Catalog
	limit   int
}

func (a *app) dispatch(cmd string, args []string) error {
	switch cmd {
	case "projects":
		return a.cmdProjects()
	case "runs":
		if len(args) != 1 {
			return fmt.Errorf("usage: runs <project>")
		}
		return a.cmdRuns(args[0])
	case "show":
		if len(args) < 2 {
			return fmt.Errorf("usage: show <project> <run> [metric ...]")
		}
		return a.cmdShow(args[0], args[1], args[2:])
	case "summary":
		if len(args) != 2 {
			return fmt.Errorf("usage: summary <project> <run>")
		}
		return a.cmdSummary(args[0], args[1])
	case "agg":
		if len(args) != 3 {
			return fmt.Errorf("usage: agg <project> <run> <metric>")
		}
		return a.cmdAgg(args[0], args[1], args[2])
	case "status":
		if len(args) != 2 {
			return fmt.Errorf("usage: status <project> <run>")
		}
		return a.cmdStatus(args[0], args[1])
	case "shell":
		return a.runShell()
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// openRun resolves a run's backend from its on-disk layout and returns a
// read handle.
func (a *app) openRun(project, run string) (storage.Backend, error) {
	backend, err := a.catalog.DetectBackend(project, run)
	if err != nil {
		return nil, err
	}
	return storage.New(backend, a.cfg.DataDir, project, run, storage.Options{
		ArchiveThreshold: a.cfg.Hybrid.ArchiveThreshold,
		Compression:      a.cfg.Hybrid.Compression.Algorithm,
		CompressionLevel: a.cfg.Hybrid.Compression.Level,
	})
}

func (a *app) cmdProjects() error {
	projects, err := a.catalog.Projects()
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Project", "Runs", "Notes"})
	for _, p := range projects {
		runs, err := a.catalog.Runs(p)
		if err != nil {
			return err
		}
		notes := ""
		if md, err := a.catalog.ProjectMetadata(p); err == nil {
			notes = md.Notes
		}
		tw.Append([]string{p, strconv.Itoa(len(runs)), notes})
	}
	tw.Render()
	return nil
}

func (a *app) cmdRuns(project string) error {
	runs, err := a.catalog.Runs(project)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Run", "Backend", "Status", "Updated"})
	for _, r := range runs {
		tw.Append([]string{
			r.Name,
			r.Backend,
			r.Status.String(),
			r.UpdatedAt.Format(time.RFC3339),
		})
	}
	tw.Render()
	return nil
}

func (a *app) cmdShow(project, run string, metrics []string) error {
	b, err := a.openRun(project, run)
	if err != nil {
		return err
	}
	defer b.Close()

	var filter []string
	if len(metrics) > 0 {
		filter = metrics
	}

	t, err := b.Load(filter)
	if err != nil {
		return err
	}

	printTable(t, a.limit)
	fmt.Printf("%d rows\n", t.Len())
	return nil
}

func printTable(t *table.Table, limit int) {
	names := t.MetricNames()

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader(t.Columns())
	for i, row := range t.Rows() {
		if limit > 0 && i >= limit {
			break
		}
		cells := []string{
			row.Timestamp.Format(time.RFC3339Nano),
			formatStep(row.Step),
		}
		for _, name := range names {
			if v, ok := row.Value(name); ok {
				cells = append(cells, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				cells = append(cells, "")
			}
		}
		tw.Append(cells)
	}
	tw.Render()
}

func formatStep(step *int64) string {
	if step == nil {
		return ""
	}
	return strconv.FormatInt(*step, 10)
}

func (a *app) cmdSummary(project, run string) error {
	b, err := a.openRun(project, run)
	if err != nil {
		return err
	}
	defer b.Close()

	t, err := b.Load(nil)
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Metric", "Count", "Min", "Max", "Avg", "Last", "P50", "P95", "P99"})
	for _, s := range summary.FromTable(t, summary.DefaultAccuracy) {
		tw.Append([]string{
			s.Name,
			strconv.FormatInt(s.Count, 10),
			formatFloat(s.Min),
			formatFloat(s.Max),
			formatFloat(s.Avg),
			formatFloat(s.Last),
			formatQuantile(s.P50),
			formatQuantile(s.P95),
			formatQuantile(s.P99),
		})
	}
	tw.Render()
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func formatQuantile(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func (a *app) cmdAgg(project, run, metric string) error {
	svc, err := query.New(a.cfg.DataDir, query.Options{
		MemoryLimit: a.cfg.Query.MemoryLimit,
		Timeout:     a.cfg.Query.Timeout,
	})
	if err != nil {
		return err
	}
	defer svc.Close()

	agg, err := svc.AggregateMetric(context.Background(), project, run, metric, time.Time{}, time.Time{})
	if err != nil {
		return err
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Metric", "Count", "Min", "Max", "Avg", "Sum", "First", "Last"})
	first, last := "", ""
	if !agg.First.IsZero() {
		first = agg.First.Format(time.RFC3339)
	}
	if !agg.Last.IsZero() {
		last = agg.Last.Format(time.RFC3339)
	}
	tw.Append([]string{
		agg.Metric,
		strconv.FormatInt(agg.Count, 10),
		formatFloat(agg.Min),
		formatFloat(agg.Max),
		formatFloat(agg.Avg),
		formatFloat(agg.Sum),
		first,
		last,
	})
	tw.Render()
	return nil
}

func (a *app) cmdStatus(project, run string) error {
	st, err := a.catalog.RunStatus(project, run)
	if err != nil {
		return err
	}

	exitCode := ""
	if st.ExitCode != nil {
		exitCode = strconv.Itoa(*st.ExitCode)
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetHeader([]string{"Run", "Status", "Finished", "Exit Code", "Timestamp"})
	tw.Append([]string{
		run,
		st.RunStatus().String(),
		strconv.FormatBool(st.IsFinished),
		exitCode,
		st.Timestamp.Format(time.RFC3339),
	})
	tw.Render()
	return nil
}

// Package app implements the application layer for incr.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strings"
	"text/tabwriter"

	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/incr/internal/engine/scheduler"
	"go.trai.ch/zerr"
)

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	scheduler    *scheduler.Scheduler
	store        ports.GraphStore
	telemetry    ports.Telemetry
	metrics      ports.Metrics
	logger       ports.Logger
	out          io.Writer
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	sched *scheduler.Scheduler,
	store ports.GraphStore,
	telemetry ports.Telemetry,
	metrics ports.Metrics,
	logger ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		scheduler:    sched,
		store:        store,
		telemetry:    telemetry,
		metrics:      metrics,
		logger:       logger,
		out:          os.Stdout,
	}
}

// WithOutput sets where command results are printed.
func (a *App) WithOutput(w io.Writer) *App {
	a.out = w
	return a
}

// SetLogLevel changes the verbosity of the logger, if it supports it.
func (a *App) SetLogLevel(level domain.LogLevel) {
	if l, ok := a.logger.(interface{ SetLevel(domain.LogLevel) }); ok {
		l.SetLevel(level)
	}
}

// RunOptions configures the run command.
type RunOptions struct {
	// ConfigPath is the configuration file, or a directory to search upwards from.
	ConfigPath string
	// Force executes every selected task without consulting the previous run.
	Force bool
	// Parallelism bounds concurrent tasks. Zero means one per CPU.
	Parallelism int
	// MetricsFile, if set, receives the run's metrics in text exposition format.
	MetricsFile string
}

func configPath(p string) string {
	if p == "" {
		return "."
	}
	return p
}

func parallelism(n int) int {
	if n < 1 {
		return runtime.NumCPU()
	}
	return n
}

func (a *App) loadGraph(path string) (*domain.Graph, error) {
	graph, err := a.configLoader.Load(configPath(path))
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	return graph, nil
}

// Run executes the build process for the specified targets.
func (a *App) Run(ctx context.Context, targetNames []string, opts RunOptions) error {
	graph, err := a.loadGraph(opts.ConfigPath)
	if err != nil {
		return err
	}

	if len(targetNames) == 0 {
		return domain.ErrNoTargetsSpecified
	}

	defer func() {
		if closeErr := a.telemetry.Close(); closeErr != nil {
			a.logger.Warn("failed to close telemetry: " + closeErr.Error())
		}
	}()

	report, runErr := a.scheduler.Run(ctx, graph, scheduler.Options{
		Targets:     targetNames,
		Parallelism: parallelism(opts.Parallelism),
		Force:       opts.Force,
	})
	if report != nil {
		a.printReport(report)
	}

	if flushErr := a.metrics.Flush(opts.MetricsFile); flushErr != nil {
		a.logger.Warn("failed to write metrics: " + flushErr.Error())
	}

	if runErr != nil {
		return errors.Join(domain.ErrBuildExecutionFailed, runErr)
	}
	return nil
}

func (a *App) printReport(r *scheduler.RunReport) {
	_, _ = fmt.Fprintf(a.out, "%d executed, %d cached, %d failed, %d skipped\n",
		len(r.Executed), len(r.Cached), len(r.Failed), len(r.Skipped))
	for _, name := range r.Failed {
		_, _ = fmt.Fprintf(a.out, "  failed: %s\n", name)
	}
	for _, name := range r.Skipped {
		_, _ = fmt.Fprintf(a.out, "  skipped: %s\n", name)
	}
}

// Status reports, for each selected task, whether a run would reuse its previous result.
func (a *App) Status(ctx context.Context, targetNames []string, opts RunOptions) ([]scheduler.PlanEntry, error) {
	graph, err := a.loadGraph(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	if len(targetNames) == 0 {
		targetNames = []string{"all"}
	}

	entries, err := a.scheduler.Plan(ctx, graph, targetNames, parallelism(opts.Parallelism))
	if err != nil {
		return nil, err
	}

	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		status := "dirty"
		switch {
		case e.New:
			status = "new"
		case e.Reusable:
			status = "up to date"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", e.Task, status)
	}
	if err := tw.Flush(); err != nil {
		return nil, zerr.Wrap(err, "failed to print status")
	}
	return entries, nil
}

// GraphSummary describes the dependency graph persisted by the last run.
type GraphSummary struct {
	Path   string
	Nodes  int
	Unused int
	Edges  int
	ByKind map[domain.DepKind]int
	// Tasks lists the configured tasks that have a recorded execution, by name.
	Tasks []TaskRecord
}

// TaskRecord is one recorded task execution.
type TaskRecord struct {
	Name        string
	Fingerprint domain.Fingerprint
}

// Inspect summarizes the persisted dependency graph.
func (a *App) Inspect(_ context.Context, path string) (*GraphSummary, error) {
	graph, err := a.loadGraph(path)
	if err != nil {
		return nil, err
	}

	data, err := a.store.Load(graph.StatePath())
	if err != nil {
		return nil, err
	}
	prev, _ := domain.NewPrevGraphAndState(data)

	summary := &GraphSummary{
		Path:   graph.StatePath(),
		Nodes:  prev.NodeCount(),
		Unused: len(prev.Unused()),
		Edges:  data.EdgeCount(),
		ByKind: make(map[domain.DepKind]int),
	}
	for _, node := range data.Nodes() {
		if !node.IsNull() {
			summary.ByKind[node.Kind]++
		}
	}
	// Node identities are hashes, so task names come from the configuration.
	for task := range graph.Walk() {
		name := task.Name.String()
		if fp, ok := prev.FingerprintOf(domain.TaskNode(name)); ok {
			summary.Tasks = append(summary.Tasks, TaskRecord{Name: name, Fingerprint: fp})
		}
	}
	slices.SortFunc(summary.Tasks, func(x, y TaskRecord) int {
		return strings.Compare(x.Name, y.Name)
	})

	a.printSummary(summary)
	return summary, nil
}

func (a *App) printSummary(s *GraphSummary) {
	_, _ = fmt.Fprintf(a.out, "graph: %s\n", s.Path)
	_, _ = fmt.Fprintf(a.out, "nodes: %d (%d unused)\n", s.Nodes, s.Unused)
	_, _ = fmt.Fprintf(a.out, "edges: %d\n", s.Edges)
	for _, kind := range domain.DepKinds() {
		if n := s.ByKind[kind]; n > 0 {
			_, _ = fmt.Fprintf(a.out, "  %s: %d\n", kind, n)
		}
	}
	tw := tabwriter.NewWriter(a.out, 0, 0, 2, ' ', 0)
	for _, t := range s.Tasks {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Fingerprint)
	}
	_ = tw.Flush()
}

// Clean removes the persisted dependency graph, so the next run executes everything.
func (a *App) Clean(_ context.Context, path string) error {
	graph, err := a.loadGraph(path)
	if err != nil {
		return err
	}
	if err := a.store.Clear(graph.StatePath()); err != nil {
		return err
	}
	a.logger.Info("removed " + graph.StatePath())
	return nil
}

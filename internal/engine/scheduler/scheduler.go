// Package scheduler runs tasks in dependency order, reusing the results of the
// previous run wherever the validator proves them unchanged.
package scheduler

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"sync"

	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/incr/internal/engine/validator"
	"go.trai.ch/zerr"
)

// Options controls a single run.
type Options struct {
	// Targets names the tasks to run. "all" selects every task.
	Targets []string
	// Parallelism bounds the number of tasks processed at once.
	Parallelism int
	// Force executes every selected task without consulting the previous run.
	Force bool
}

// RunReport lists the outcome of every selected task, by name.
type RunReport struct {
	Cached   []string
	Executed []string
	Failed   []string
	// Skipped tasks never started because a dependency failed or the run was cancelled.
	Skipped []string
}

// Scheduler manages the execution of tasks in the dependency graph.
type Scheduler struct {
	executor  ports.Executor
	store     ports.GraphStore
	hasher    ports.Hasher
	resolver  ports.InputResolver
	verifier  ports.Verifier
	telemetry ports.Telemetry
	logger    ports.Logger
	metrics   ports.Metrics

	mu         sync.RWMutex
	taskStatus map[domain.InternedString]domain.TaskStatus
}

// NewScheduler creates a new Scheduler with the given dependencies.
func NewScheduler(
	executor ports.Executor,
	store ports.GraphStore,
	hasher ports.Hasher,
	resolver ports.InputResolver,
	verifier ports.Verifier,
	telemetry ports.Telemetry,
	logger ports.Logger,
	metrics ports.Metrics,
) *Scheduler {
	return &Scheduler{
		executor:   executor,
		store:      store,
		hasher:     hasher,
		resolver:   resolver,
		verifier:   verifier,
		telemetry:  telemetry,
		logger:     logger,
		metrics:    metrics,
		taskStatus: make(map[domain.InternedString]domain.TaskStatus),
	}
}

// initTaskStatuses initializes the status of tasks in the graph to Pending.
func (s *Scheduler) initTaskStatuses(tasks []domain.InternedString) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range tasks {
		s.taskStatus[task] = domain.TaskPending
	}
}

// updateStatus updates the status of a task.
func (s *Scheduler) updateStatus(name domain.InternedString, status domain.TaskStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.taskStatus[name] = status
}

func (s *Scheduler) getStatus(name domain.InternedString) domain.TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.taskStatus[name]
}

// loadPrevious returns the graph of the previous run. A graph that cannot be read
// is discarded and the run starts from scratch.
func (s *Scheduler) loadPrevious(path string) (*domain.PrevGraph, *domain.NodeStates) {
	data, err := s.store.Load(path)
	if err != nil {
		s.logger.Warn("discarding previous dependency graph: " + err.Error())
		data = domain.EmptySerializedGraph()
	}
	return domain.NewPrevGraphAndState(data)
}

// Run executes the selected tasks. The graph recorded along the way is saved even
// when tasks fail, so their successful dependencies are reused next time.
func (s *Scheduler) Run(ctx context.Context, graph *domain.Graph, opts Options) (*RunReport, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	state, err := s.newRunState(ctx, graph, opts)
	if err != nil {
		return nil, err
	}

	s.initTaskStatuses(state.allTasks)

	runErr := state.runExecutionLoop()

	if ctx.Err() == nil {
		state.carryForward()
	}

	data, err := state.current.Serialize()
	if err == nil {
		err = s.store.Save(graph.StatePath(), data)
	}
	if err != nil {
		runErr = errors.Join(runErr, zerr.Wrap(err, domain.ErrStoreWriteFailed.Error()))
	}

	return state.report(), runErr
}

type result struct {
	task   domain.InternedString
	err    error
	cached bool
}

type schedulerRunState struct {
	graph       *domain.Graph
	inDegree    map[domain.InternedString]int
	tasks       map[domain.InternedString]domain.Task
	ready       []domain.InternedString
	active      int
	resultsCh   chan result
	errs        error
	ctx         context.Context
	parallelism int
	s           *Scheduler
	allTasks    []domain.InternedString
	force       bool

	prev         *domain.PrevGraph
	current      *domain.CurrentGraph
	validator    *validator.Validator
	fingerprints *runFingerprinter
}

func (s *Scheduler) newRunState(
	ctx context.Context,
	graph *domain.Graph,
	opts Options,
) (*schedulerRunState, error) {
	tasksToRun, allTasks, err := resolveTasksToRun(graph, opts.Targets)
	if err != nil {
		return nil, err
	}

	taskCount := len(tasksToRun)
	inDegree := make(map[domain.InternedString]int, taskCount)
	tasks := make(map[domain.InternedString]domain.Task, taskCount)

	for name := range tasksToRun {
		task, _ := graph.GetTask(name)
		tasks[name] = task

		// Dependencies outside the selection do not hold a task back.
		degree := 0
		for _, dep := range task.Dependencies {
			if tasksToRun[dep] {
				degree++
			}
		}
		inDegree[name] = degree
	}

	// Start in topological order so that runs are reproducible.
	var ready []domain.InternedString
	for task := range graph.Walk() {
		if tasksToRun[task.Name] && inDegree[task.Name] == 0 {
			ready = append(ready, task.Name)
		}
	}

	prev, states := s.loadPrevious(graph.StatePath())
	fingerprints := newRunFingerprinter(graph, s.resolver, s.hasher)

	return &schedulerRunState{
		graph:        graph,
		inDegree:     inDegree,
		tasks:        tasks,
		ready:        ready,
		resultsCh:    make(chan result, opts.Parallelism),
		ctx:          ctx,
		parallelism:  opts.Parallelism,
		s:            s,
		allTasks:     allTasks,
		force:        opts.Force,
		prev:         prev,
		current:      domain.NewCurrentGraph(prev.NodeCount()),
		fingerprints: fingerprints,
		validator: validator.New(prev, states, fingerprints,
			validator.WithLogger(s.logger), validator.WithMetrics(s.metrics)),
	}, nil
}

func (state *schedulerRunState) runExecutionLoop() error {
	done := state.ctx.Done()
	for !state.isDone() {
		state.schedule()

		if state.isDone() {
			break
		}

		if state.ctx.Err() != nil && state.active == 0 {
			return errors.Join(state.errs, state.ctx.Err())
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-done:
			// Running tasks are drained by blocking on their results.
			done = nil
		}
	}

	if state.ctx.Err() != nil {
		state.errs = errors.Join(state.errs, state.ctx.Err())
	}

	return state.errs
}

func resolveTasksToRun(
	graph *domain.Graph,
	targetNames []string,
) (map[domain.InternedString]bool, []domain.InternedString, error) {
	if len(targetNames) == 0 {
		return nil, nil, domain.ErrNoTargetsSpecified
	}

	if slices.Contains(targetNames, "all") {
		return resolveAllTasks(graph)
	}
	return resolveTargetTasks(graph, targetNames)
}

func resolveAllTasks(
	graph *domain.Graph,
) (map[domain.InternedString]bool, []domain.InternedString, error) {
	tasksToRun := make(map[domain.InternedString]bool)
	allTasks := make([]domain.InternedString, 0, graph.TaskCount())
	for task := range graph.Walk() {
		tasksToRun[task.Name] = true
		allTasks = append(allTasks, task.Name)
	}
	return tasksToRun, allTasks, nil
}

func resolveTargetTasks(
	graph *domain.Graph,
	targetNames []string,
) (map[domain.InternedString]bool, []domain.InternedString, error) {
	targets := make([]domain.InternedString, 0, len(targetNames))
	for _, nameStr := range targetNames {
		name := domain.NewInternedString(nameStr)
		if _, ok := graph.GetTask(name); !ok {
			return nil, nil, zerr.With(domain.ErrTaskNotFound, "task", name.String())
		}
		targets = append(targets, name)
	}

	return collectDependencies(graph, targets)
}

func collectDependencies(
	graph *domain.Graph,
	targets []domain.InternedString,
) (map[domain.InternedString]bool, []domain.InternedString, error) {
	tasksToRun := make(map[domain.InternedString]bool)
	var allTasks []domain.InternedString

	queue := make([]domain.InternedString, len(targets))
	copy(queue, targets)

	visited := make(map[domain.InternedString]bool)
	for _, t := range targets {
		visited[t] = true
	}

	for len(queue) > 0 {
		currentName := queue[0]
		queue = queue[1:]

		if !tasksToRun[currentName] {
			tasksToRun[currentName] = true
			allTasks = append(allTasks, currentName)
		}

		task, _ := graph.GetTask(currentName)
		for _, dep := range task.Dependencies {
			if !visited[dep] {
				visited[dep] = true
				queue = append(queue, dep)
			}
		}
	}

	return tasksToRun, allTasks, nil
}

func (state *schedulerRunState) isDone() bool {
	return state.active == 0 && len(state.ready) == 0
}

func (state *schedulerRunState) schedule() {
	for len(state.ready) > 0 && state.active < state.parallelism && state.ctx.Err() == nil {
		taskName := state.ready[0]
		state.ready = state.ready[1:]

		state.active++
		state.s.updateStatus(taskName, domain.TaskRunning)

		t := state.tasks[taskName]
		go state.executeTask(&t)
	}
}

func (state *schedulerRunState) executeTask(t *domain.Task) {
	// The vertex is completed before the result is sent, so that telemetry never
	// lags behind the scheduler loop.
	res := func() result {
		ctx, vertex := state.s.telemetry.Record(state.ctx, t.Name.String(),
			ports.WithInputs(domain.Strings(t.Dependencies)...))

		cached, err := state.processTask(ctx, t, vertex)
		switch {
		case err != nil:
			vertex.Complete(err)
		case cached:
			vertex.Cached()
		default:
			vertex.Complete(nil)
		}
		return result{task: t.Name, err: err, cached: cached}
	}()

	state.resultsCh <- res
}

// processTask reuses the previous result of t if it is still valid, and otherwise
// executes t and records what it read and produced.
func (state *schedulerRunState) processTask(ctx context.Context, t *domain.Task, vertex ports.Vertex) (bool, error) {
	name := t.Name.String()

	def, err := state.fingerprints.definition(t.Name)
	if err != nil {
		return false, err
	}

	if !state.force {
		res, err := state.validator.TryMarkGreen(ctx, domain.TaskNode(name))
		if err != nil {
			return false, err
		}
		if res.Reusable() {
			state.current.Promote(state.prev, res.Index)
			state.s.logger.Debug("reusing previous result of " + name)
			return true, nil
		}
	}

	// Inputs are fingerprinted before execution, which is when the task reads them.
	inputs := make([]domain.Fingerprint, len(def.inputs))
	for i, path := range def.inputs {
		fp, err := state.fingerprints.file(path)
		if err != nil {
			return false, err
		}
		inputs[i] = fp
	}

	slot := state.current.Reserve()

	vertex.Log(domain.LogLevelDebug, "executing "+name)
	if err := state.s.executor.Execute(ctx, t, state.graph.Root(), vertex.Stdout(), vertex.Stderr()); err != nil {
		return false, err
	}

	outputs := domain.Strings(t.Outputs)
	state.fingerprints.forget(outputs)

	missing, err := state.s.verifier.VerifyOutputs(state.graph.Root(), outputs)
	if err != nil {
		return false, err
	}
	if len(missing) > 0 {
		return false, zerr.With(domain.ErrMissingOutputs, "outputs", missing)
	}

	outputFP, err := state.s.hasher.HashOutputs(state.graph.Root(), outputs)
	if err != nil {
		return false, zerr.Wrap(err, domain.ErrFileHashFailed.Error())
	}

	edges := make([]domain.CurIndex, 0, 1+len(def.inputs)+len(t.Dependencies))
	edges = append(edges, state.current.Intern(domain.TaskDefNode(name), def.fingerprint, nil))
	for i, path := range def.inputs {
		edges = append(edges, state.current.Intern(domain.SourceFileNode(path), inputs[i], nil))
	}
	for _, dep := range t.Dependencies {
		if idx, ok := state.current.Lookup(domain.TaskNode(dep.String())); ok {
			edges = append(edges, idx)
		}
	}

	if err := state.current.Complete(slot, domain.TaskNode(name), outputFP, edges); err != nil {
		return false, err
	}
	return false, nil
}

func (state *schedulerRunState) handleResult(res result) {
	state.active--

	if res.err != nil {
		enhancedErr := zerr.With(zerr.Wrap(res.err, domain.ErrTaskExecutionFailed.Error()), "task", res.task.String())
		state.errs = errors.Join(state.errs, enhancedErr)
		state.s.updateStatus(res.task, domain.TaskFailed)
		state.s.metrics.TaskFinished(domain.TaskFailed)
		state.s.logger.Error(enhancedErr)
		return
	}

	state.handleSuccess(res)
}

func (state *schedulerRunState) handleSuccess(res result) {
	status := domain.TaskCompleted
	if res.cached {
		status = domain.TaskCached
	}
	state.s.updateStatus(res.task, status)
	state.s.metrics.TaskFinished(status)

	for _, dep := range state.graph.Dependents(res.task) {
		// Only consider dependents that are part of the current execution
		if _, ok := state.tasks[dep]; ok {
			state.inDegree[dep]--
			if state.inDegree[dep] == 0 {
				state.ready = append(state.ready, dep)
			}
		}
	}
}

// carryForward keeps the previous records of configured tasks that were not part of
// this run. Only records that are still valid are kept, since the rest would let a
// later run reuse outputs built from inputs this run has since recorded differently.
func (state *schedulerRunState) carryForward() {
	var nodes []domain.DepNode
	for task := range state.graph.Walk() {
		if _, selected := state.tasks[task.Name]; selected {
			continue
		}
		node := domain.TaskNode(task.Name.String())
		if _, ok := state.prev.LookupNode(node); ok {
			nodes = append(nodes, node)
		}
	}
	if len(nodes) == 0 {
		return
	}

	results, err := state.validator.ResolveAll(state.ctx, nodes, state.parallelism)
	if err != nil {
		state.s.logger.Warn("dropping records of tasks outside this run: " + err.Error())
		return
	}

	kept := 0
	for _, res := range results {
		if res.Reusable() {
			state.current.Promote(state.prev, res.Index)
			kept++
		}
	}
	state.s.logger.Debug("kept " + strconv.Itoa(kept) + " of " + strconv.Itoa(len(nodes)) +
		" records of tasks outside this run")
}

func (state *schedulerRunState) report() *RunReport {
	report := &RunReport{}
	for _, name := range state.allTasks {
		switch state.s.getStatus(name) {
		case domain.TaskCached:
			report.Cached = append(report.Cached, name.String())
		case domain.TaskCompleted:
			report.Executed = append(report.Executed, name.String())
		case domain.TaskFailed:
			report.Failed = append(report.Failed, name.String())
		default:
			report.Skipped = append(report.Skipped, name.String())
		}
	}
	for _, list := range [][]string{report.Cached, report.Executed, report.Failed, report.Skipped} {
		slices.Sort(list)
	}
	return report
}

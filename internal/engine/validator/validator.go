// Package validator decides which nodes of the previous run can be reused.
//
// A node is reusable (green) when every dependency it had in the previous run is
// reusable and its current fingerprint equals the recorded one. Any changed dependency
// makes the node invalid without fingerprinting it.
//
// Many walkers may resolve overlapping parts of the graph at once. Each previous-run
// index has a claim slot; the walker that wins the claim evaluates the node and every
// other walker blocks on the claim until the verdict is published.
package validator

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync/atomic"

	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// Result is the outcome of validating one node.
type Result struct {
	// Index is the node's previous-run index. It is meaningless when New is set.
	Index domain.PrevIndex
	// State is the node's verdict.
	State domain.NodeState
	// New reports that the node did not exist in the previous run.
	New bool
}

// Reusable reports whether the cached result of the node may be used as is.
func (r Result) Reusable() bool {
	return !r.New && r.State == domain.StateGreen
}

// Validator resolves previous-run nodes to green or invalid.
// It is safe for concurrent use.
type Validator struct {
	prev    *domain.PrevGraph
	states  *domain.NodeStates
	fp      ports.Fingerprinter
	logger  ports.Logger
	metrics ports.Metrics

	claims  []atomic.Pointer[claim]
	walkers atomic.Uint64
}

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets the logger used for cycle reports and run summaries.
func WithLogger(l ports.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithMetrics sets the sink for verdict and fingerprint counters.
func WithMetrics(m ports.Metrics) Option {
	return func(v *Validator) { v.metrics = m }
}

// New returns a Validator over the previous graph and the states derived from it.
// prev and states must come from the same domain.NewPrevGraphAndState call.
func New(prev *domain.PrevGraph, states *domain.NodeStates, fp ports.Fingerprinter, opts ...Option) *Validator {
	if prev.NodeCount() != states.Len() {
		panic(zerr.With(zerr.With(zerr.New("node states do not match previous graph"),
			"nodes", prev.NodeCount()), "states", states.Len()))
	}
	v := &Validator{
		prev:   prev,
		states: states,
		fp:     fp,
		claims: make([]atomic.Pointer[claim], prev.NodeCount()),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// claim marks an index as being evaluated by one walker. done is closed once the
// verdict is published or the walker gave up.
type claim struct {
	idx   domain.PrevIndex
	owner *walker
	done  chan struct{}
	state domain.NodeState
	err   error
}

func (c *claim) finished() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// walker is one logical evaluation thread. waitingOn is the claim it is blocked on.
type walker struct {
	id        uint64
	waitingOn atomic.Pointer[claim]
}

type frame struct {
	claim      *claim
	next       int
	depInvalid bool
}

// TryMarkGreen validates node. A node unknown to the previous run is reported as New
// and touches no state.
func (v *Validator) TryMarkGreen(ctx context.Context, node domain.DepNode) (Result, error) {
	idx, ok := v.prev.LookupNode(node)
	if !ok {
		if v.metrics != nil {
			v.metrics.NodeNew(node.Kind)
		}
		return Result{New: true}, nil
	}
	state, err := v.Resolve(ctx, idx)
	if err != nil {
		return Result{Index: idx}, err
	}
	return Result{Index: idx, State: state}, nil
}

// Resolve validates the node at idx and returns its verdict. An error leaves the
// node, and any dependency still being evaluated by this call, unknown.
func (v *Validator) Resolve(ctx context.Context, idx domain.PrevIndex) (domain.NodeState, error) {
	if s := v.states.Load(idx); s.Resolved() {
		return s, nil
	}
	w := &walker{id: v.walkers.Add(1)}
	return v.walk(ctx, w, idx)
}

// ResolveAll validates independent roots with up to parallelism concurrent walkers.
// A parallelism below one means no limit. Results are in the order of nodes.
func (v *Validator) ResolveAll(ctx context.Context, nodes []domain.DepNode, parallelism int) ([]Result, error) {
	results := make([]Result, len(nodes))
	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, node := range nodes {
		g.Go(func() error {
			r, err := v.TryMarkGreen(gctx, node)
			results[i] = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	if v.logger != nil {
		var green, invalid, fresh int
		for _, r := range results {
			switch {
			case r.New:
				fresh++
			case r.State == domain.StateGreen:
				green++
			default:
				invalid++
			}
		}
		v.logger.Debug("validated " + strconv.Itoa(len(results)) + " nodes: " +
			strconv.Itoa(green) + " green, " + strconv.Itoa(invalid) + " invalid, " +
			strconv.Itoa(fresh) + " new")
	}
	return results, nil
}

func (v *Validator) walk(ctx context.Context, w *walker, root domain.PrevIndex) (domain.NodeState, error) {
	var stack []frame

	state, c, err := v.enter(ctx, w, root, stack)
	if err != nil {
		return domain.StateUnknown, err
	}
	if c == nil {
		return state, nil
	}
	stack = append(stack, frame{claim: c})

	for len(stack) > 0 {
		top := &stack[len(stack)-1]

		if err := ctx.Err(); err != nil {
			v.abort(stack, err)
			return domain.StateUnknown, err
		}

		if top.depInvalid {
			stack = v.finish(stack, domain.StateInvalid)
			continue
		}

		deps := v.prev.EdgesFrom(top.claim.idx)
		if top.next < len(deps) {
			dep := deps[top.next]
			top.next++

			depState, depClaim, err := v.enter(ctx, w, dep, stack)
			if err != nil {
				v.abort(stack, err)
				return domain.StateUnknown, err
			}
			if depClaim != nil {
				stack = append(stack, frame{claim: depClaim})
				continue
			}
			if depState != domain.StateGreen {
				top.depInvalid = true
			}
			continue
		}

		verdict, err := v.compare(ctx, top.claim.idx)
		if err != nil {
			v.abort(stack, err)
			return domain.StateUnknown, err
		}
		stack = v.finish(stack, verdict)
	}

	return c.state, nil
}

// enter either returns the settled state of idx, or claims idx for w and returns the
// claim. Claims held by other walkers are waited for.
func (v *Validator) enter(ctx context.Context, w *walker, idx domain.PrevIndex, stack []frame) (domain.NodeState, *claim, error) {
	slot := &v.claims[idx]
	for {
		if s := v.states.Load(idx); s.Resolved() {
			return s, nil, nil
		}

		mine := &claim{idx: idx, owner: w, done: make(chan struct{})}
		if slot.CompareAndSwap(nil, mine) {
			if s := v.states.Load(idx); s.Resolved() {
				mine.state = s
				close(mine.done)
				return s, nil, nil
			}
			return domain.StateUnknown, mine, nil
		}

		held := slot.Load()
		if held == nil {
			continue
		}
		if held.owner == w && !held.finished() {
			return domain.StateUnknown, nil, v.cycleError(ownCycle(stack, idx))
		}

		state, retry, err := v.wait(ctx, w, held, stack)
		if err != nil {
			return domain.StateUnknown, nil, err
		}
		if retry {
			continue
		}
		return state, nil, nil
	}
}

// wait blocks until held is settled. retry is set when its owner gave up, in which
// case the index is free to be claimed again.
func (v *Validator) wait(ctx context.Context, w *walker, held *claim, stack []frame) (domain.NodeState, bool, error) {
	if !held.finished() {
		// Publish the wait before inspecting the chain, so of two walkers about to
		// wait on each other at least one sees the other.
		w.waitingOn.Store(held)
		defer w.waitingOn.Store(nil)

		if chain, ok := waitCycle(w, held); ok {
			if len(stack) > 0 {
				chain = append([]domain.PrevIndex{stack[len(stack)-1].claim.idx}, chain...)
			}
			return domain.StateUnknown, false, v.cycleError(chain)
		}

		select {
		case <-held.done:
		case <-ctx.Done():
			return domain.StateUnknown, false, ctx.Err()
		}
	}

	if held.err != nil {
		return domain.StateUnknown, true, nil
	}
	return held.state, false, nil
}

// waitCycle follows the wait-for chain starting at held. It reports the claimed
// indices along the way if the chain leads back to w.
func waitCycle(w *walker, held *claim) ([]domain.PrevIndex, bool) {
	chain := []domain.PrevIndex{held.idx}
	seen := map[*walker]bool{w: true}
	for c := held; c != nil && !c.finished(); {
		if c.owner == w {
			return chain, true
		}
		if seen[c.owner] {
			return nil, false
		}
		seen[c.owner] = true

		c = c.owner.waitingOn.Load()
		if c != nil {
			chain = append(chain, c.idx)
		}
	}
	return nil, false
}

// ownCycle returns the part of the stack from idx to its top, closed with idx.
func ownCycle(stack []frame, idx domain.PrevIndex) []domain.PrevIndex {
	start := 0
	for i, f := range stack {
		if f.claim.idx == idx {
			start = i
			break
		}
	}
	chain := make([]domain.PrevIndex, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		chain = append(chain, f.claim.idx)
	}
	return append(chain, idx)
}

func (v *Validator) cycleError(chain []domain.PrevIndex) error {
	parts := make([]string, len(chain))
	for i, idx := range chain {
		parts[i] = strconv.FormatUint(uint64(idx), 10)
	}
	cycle := strings.Join(parts, " -> ")
	if v.logger != nil {
		v.logger.Warn("dependency cycle in previous graph: " + cycle)
	}
	return zerr.With(domain.ErrCycleDetected, "cycle", cycle)
}

// compare fingerprints the node at idx, whose dependencies are all green, and checks
// it against the recorded fingerprint.
func (v *Validator) compare(ctx context.Context, idx domain.PrevIndex) (domain.NodeState, error) {
	node := v.prev.IndexToNode(idx)
	fp, err := v.fp.Fingerprint(ctx, node)
	if v.metrics != nil {
		v.metrics.FingerprintComputed(node.Kind)
	}
	if err != nil {
		if errors.Is(err, domain.ErrUnknownDepNode) {
			return domain.StateInvalid, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.StateUnknown, ctxErr
		}
		return domain.StateUnknown, zerr.With(zerr.With(zerr.Wrap(err, "failed to fingerprint dep node"),
			"node", node.String()), "index", uint32(idx))
	}
	if fp == v.prev.FingerprintByIndex(idx) {
		return domain.StateGreen, nil
	}
	return domain.StateInvalid, nil
}

// finish publishes verdict for the top frame, pops it and propagates an invalid
// verdict to the new top.
func (v *Validator) finish(stack []frame, verdict domain.NodeState) []frame {
	top := stack[len(stack)-1]
	c := top.claim

	c.state = v.states.Resolve(c.idx, verdict)
	close(c.done)
	if v.metrics != nil {
		v.metrics.NodeResolved(v.prev.IndexToNode(c.idx).Kind, c.state)
	}

	stack = stack[:len(stack)-1]
	if len(stack) > 0 && c.state != domain.StateGreen {
		stack[len(stack)-1].depInvalid = true
	}
	return stack
}

// abort releases every claim still held on the stack. The slots are cleared before
// waiters are woken, so a waiter that retries finds them free.
func (v *Validator) abort(stack []frame, err error) {
	for i := len(stack) - 1; i >= 0; i-- {
		c := stack[i].claim
		c.err = err
		v.claims[c.idx].CompareAndSwap(c, nil)
		close(c.done)
	}
}

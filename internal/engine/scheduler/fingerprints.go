package scheduler

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/singleflight"
)

var _ ports.Fingerprinter = (*runFingerprinter)(nil)

// taskDefinition is a task as configured for this run, with its inputs resolved.
type taskDefinition struct {
	task        domain.Task
	inputs      []string
	fingerprint domain.Fingerprint
}

// runFingerprinter computes current fingerprints of dep nodes for one run.
// Definitions and input files are memoized. Task outputs are not, since they
// change when the task executes.
type runFingerprinter struct {
	graph    *domain.Graph
	resolver ports.InputResolver
	hasher   ports.Hasher

	// tasks maps task and task definition identities back to task names.
	tasks map[domain.DepNode]domain.InternedString

	group       singleflight.Group
	definitions sync.Map // task name -> *taskDefinition
	paths       sync.Map // domain.DepNode -> root-relative path
	files       sync.Map // root-relative path -> domain.Fingerprint
	allInputs   sync.Once
}

func newRunFingerprinter(graph *domain.Graph, resolver ports.InputResolver, hasher ports.Hasher) *runFingerprinter {
	tasks := make(map[domain.DepNode]domain.InternedString, 2*graph.TaskCount())
	for task := range graph.Walk() {
		tasks[domain.TaskNode(task.Name.String())] = task.Name
		tasks[domain.TaskDefNode(task.Name.String())] = task.Name
	}
	return &runFingerprinter{graph: graph, resolver: resolver, hasher: hasher, tasks: tasks}
}

// Fingerprint implements ports.Fingerprinter.
func (f *runFingerprinter) Fingerprint(ctx context.Context, node domain.DepNode) (domain.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fingerprint{}, err
	}

	switch node.Kind {
	case domain.KindTaskDef:
		name, ok := f.tasks[node]
		if !ok {
			return domain.Fingerprint{}, domain.ErrUnknownDepNode
		}
		def, err := f.definition(name)
		if err != nil {
			return domain.Fingerprint{}, err
		}
		return def.fingerprint, nil

	case domain.KindTask:
		name, ok := f.tasks[node]
		if !ok {
			return domain.Fingerprint{}, domain.ErrUnknownDepNode
		}
		task, _ := f.graph.GetTask(name)
		return f.hasher.HashOutputs(f.graph.Root(), domain.Strings(task.Outputs))

	case domain.KindSourceFile:
		path, ok := f.pathOf(node)
		if !ok {
			return domain.Fingerprint{}, domain.ErrUnknownDepNode
		}
		return f.file(path)

	default:
		return domain.Fingerprint{}, domain.ErrUnknownDepNode
	}
}

// pathOf finds the input file behind a source file node. Paths are learned as task
// inputs get resolved; an unknown node makes every configured task resolve once.
func (f *runFingerprinter) pathOf(node domain.DepNode) (string, bool) {
	if path, ok := f.paths.Load(node); ok {
		return path.(string), true
	}
	f.allInputs.Do(func() {
		for task := range f.graph.Walk() {
			_, _ = f.definition(task.Name)
		}
	})
	if path, ok := f.paths.Load(node); ok {
		return path.(string), true
	}
	return "", false
}

// definition resolves the inputs of a task and fingerprints its definition. The
// resolved input list is part of the fingerprint, so a file appearing or vanishing
// under a glob changes it.
func (f *runFingerprinter) definition(name domain.InternedString) (*taskDefinition, error) {
	if def, ok := f.definitions.Load(name.String()); ok {
		return def.(*taskDefinition), nil
	}

	v, err, _ := f.group.Do("def:"+name.String(), func() (any, error) {
		if def, ok := f.definitions.Load(name.String()); ok {
			return def, nil
		}

		task, ok := f.graph.GetTask(name)
		if !ok {
			return nil, domain.ErrUnknownDepNode
		}

		inputs, err := f.resolver.ResolveInputs(domain.Strings(task.Inputs), f.graph.Root())
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrInputResolutionFailed.Error()), "task", name.String())
		}

		def := &taskDefinition{
			task:        task,
			inputs:      inputs,
			fingerprint: domain.TaskDefinitionFingerprint(&task).Combine(domain.FingerprintString(inputs...)),
		}
		for _, path := range inputs {
			f.paths.Store(domain.SourceFileNode(path), path)
		}
		f.definitions.Store(name.String(), def)
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*taskDefinition), nil
}

// file returns the content fingerprint of a root-relative input path.
func (f *runFingerprinter) file(path string) (domain.Fingerprint, error) {
	if fp, ok := f.files.Load(path); ok {
		return fp.(domain.Fingerprint), nil
	}

	v, err, _ := f.group.Do("file:"+path, func() (any, error) {
		fp, err := f.hasher.HashFile(filepath.Join(f.graph.Root(), filepath.FromSlash(path)))
		if err != nil {
			return nil, zerr.With(zerr.Wrap(err, domain.ErrFileHashFailed.Error()), "file", path)
		}
		f.files.Store(path, fp)
		return fp, nil
	})
	if err != nil {
		return domain.Fingerprint{}, err
	}
	return v.(domain.Fingerprint), nil
}

// forget drops memoized fingerprints of files at or below the given outputs, so
// tasks reading generated files see what was just written.
func (f *runFingerprinter) forget(outputs []string) {
	f.files.Range(func(key, _ any) bool {
		path := key.(string)
		for _, out := range outputs {
			out = filepath.ToSlash(filepath.Clean(out))
			if path == out || strings.HasPrefix(path, out+"/") {
				f.files.Delete(path)
				break
			}
		}
		return true
	})
}

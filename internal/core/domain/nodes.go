package domain

import (
	"path/filepath"
	"slices"
)

// TaskNode is the identity of a task's execution.
func TaskNode(name string) DepNode {
	return NewDepNode(KindTask, name)
}

// TaskDefNode is the identity of a task's definition.
func TaskDefNode(name string) DepNode {
	return NewDepNode(KindTaskDef, name)
}

// SourceFileNode is the identity of one input file. Paths are cleaned so that
// "./a/b" and "a/b" name the same node.
func SourceFileNode(path string) DepNode {
	return NewDepNode(KindSourceFile, filepath.Clean(path))
}

// TaskDefinitionFingerprint hashes everything about a task that is not a file:
// command, environment, declared inputs, outputs and dependency names.
func TaskDefinitionFingerprint(t *Task) Fingerprint {
	var b FingerprintBuilder
	b.WriteString(t.Name.String())

	b.WriteCount(len(t.Command))
	for _, arg := range t.Command {
		b.WriteString(arg)
	}

	keys := make([]string, 0, len(t.Environment))
	for k := range t.Environment {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	b.WriteCount(len(keys))
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(t.Environment[k])
	}

	for _, section := range [][]InternedString{t.Inputs, t.Outputs, t.Dependencies} {
		b.WriteCount(len(section))
		for _, s := range section {
			b.WriteString(s.String())
		}
	}
	return b.Sum()
}

// MissingFileFingerprint is the content fingerprint of an input file that does not exist.
var MissingFileFingerprint = FingerprintString("incr", "missing-file")

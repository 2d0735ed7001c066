package domain

import (
	"strings"

	"go.trai.ch/zerr"
)

// DepKind is the category of a computation unit.
type DepKind uint8

const (
	// KindNull marks a slot of a graph that holds no real node.
	KindNull DepKind = iota
	// KindSourceFile is the content of one input file.
	KindSourceFile
	// KindTaskDef is the definition of a task: command, environment and declared paths.
	KindTaskDef
	// KindTask is the execution of a task; its fingerprint covers the task's outputs.
	KindTask

	depKindCount
)

var depKindNames = [depKindCount]string{
	KindNull:       "null",
	KindSourceFile: "source_file",
	KindTaskDef:    "task_def",
	KindTask:       "task",
}

// String returns the lowercase name of the kind.
func (k DepKind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return depKindNames[k]
}

// Valid reports whether k is one of the declared kinds.
func (k DepKind) Valid() bool {
	return k < depKindCount
}

// DepKinds returns all declared kinds, KindNull first.
func DepKinds() []DepKind {
	kinds := make([]DepKind, 0, depKindCount)
	for k := range depKindCount {
		kinds = append(kinds, k)
	}
	return kinds
}

// ParseDepKind converts a kind name back to a DepKind.
func ParseDepKind(s string) (DepKind, error) {
	for k, name := range depKindNames {
		if strings.EqualFold(name, s) {
			return DepKind(k), nil
		}
	}
	return KindNull, zerr.With(ErrUnknownDepKind, "kind", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k DepKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *DepKind) UnmarshalText(text []byte) error {
	parsed, err := ParseDepKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// DepNode identifies what was computed, independent of its result.
// Two DepNodes are equal iff kind and hash are equal, so it is usable as a map key.
type DepNode struct {
	Kind DepKind
	Hash Fingerprint
}

// NullNode is the placeholder identity of an unused slot.
var NullNode = DepNode{Kind: KindNull}

// NewDepNode derives a node identity from a kind and a stable key such as a task name or path.
func NewDepNode(kind DepKind, key string) DepNode {
	return DepNode{Kind: kind, Hash: FingerprintString(kind.String(), key)}
}

// IsNull reports whether n is a placeholder.
func (n DepNode) IsNull() bool {
	return n.Kind == KindNull
}

// String renders the node as kind#hash.
func (n DepNode) String() string {
	return n.Kind.String() + "#" + n.Hash.Short()
}

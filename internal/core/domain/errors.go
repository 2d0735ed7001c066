package domain

import "go.trai.ch/zerr"

var (
	// ErrTaskAlreadyExists is returned when attempting to add a task with a name that already exists.
	ErrTaskAlreadyExists = zerr.New("task already exists")

	// ErrMissingDependency is returned when a task references a dependency that doesn't exist in the graph.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when a cycle is detected in a dependency graph.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrTaskNotFound is returned when a requested task is not found in the graph.
	ErrTaskNotFound = zerr.New("task not found")

	// ErrNoTargetsSpecified is returned when no targets are specified for the run command.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrReservedTaskName is returned when a task uses a reserved name (e.g., "all").
	ErrReservedTaskName = zerr.New("task name 'all' is reserved")

	// ErrIndexOutOfRange is raised when a node index does not address a slot of its graph.
	ErrIndexOutOfRange = zerr.New("node index out of range")

	// ErrNodeNotFound is returned when a dep node was not part of the previous run.
	ErrNodeNotFound = zerr.New("dep node not found in previous graph")

	// ErrCorruptGraph is returned when persisted graph arrays are inconsistent.
	ErrCorruptGraph = zerr.New("corrupt dependency graph")

	// ErrUnknownDepNode is returned by a fingerprinter that cannot map a dep node back to
	// anything in the current run, such as a task that was removed from the configuration.
	ErrUnknownDepNode = zerr.New("dep node cannot be reconstructed")

	// ErrNodeAlreadyRecorded is returned when the current graph already holds a node identity.
	ErrNodeAlreadyRecorded = zerr.New("dep node already recorded")

	// ErrSlotNotReserved is returned when completing a current-graph slot that was not reserved.
	ErrSlotNotReserved = zerr.New("current graph slot is not reserved")

	// ErrUnknownDepKind is returned when parsing an unknown dep kind name.
	ErrUnknownDepKind = zerr.New("unknown dep kind")

	// ErrInvalidFingerprint is returned when a fingerprint text cannot be decoded.
	ErrInvalidFingerprint = zerr.New("invalid fingerprint")

	// ErrConfigNotFound is returned when no configuration file is found in the directory or its parents.
	ErrConfigNotFound = zerr.New("no configuration file found")

	// ErrInvalidTaskName is returned when a task name contains characters reserved by the CLI.
	ErrInvalidTaskName = zerr.New("invalid task name")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrStoreReadFailed is returned when the persisted graph cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read dependency graph")

	// ErrStoreWriteFailed is returned when the persisted graph cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write dependency graph")

	// ErrGraphVersionMismatch is returned when the persisted graph was written by an incompatible format.
	ErrGraphVersionMismatch = zerr.New("dependency graph format mismatch")

	// ErrBuildExecutionFailed is returned when the build execution fails.
	ErrBuildExecutionFailed = zerr.New("build execution failed")

	// ErrTaskExecutionFailed is returned when a task execution fails.
	ErrTaskExecutionFailed = zerr.New("task execution failed")

	// ErrMissingOutputs is returned when a task finished without producing its declared outputs.
	ErrMissingOutputs = zerr.New("task did not produce declared outputs")

	// ErrInputResolutionFailed is returned when a task's input patterns cannot be resolved.
	ErrInputResolutionFailed = zerr.New("failed to resolve task inputs")

	// ErrFileHashFailed is returned when hashing a file fails.
	ErrFileHashFailed = zerr.New("failed to hash file content")
)

// Package config provides the configuration loader for incr.
package config

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load reads the configuration and returns a validated domain.Graph.
// path is either the configuration file itself or a directory, in which case the
// nearest incr.yaml in it or one of its parents is used.
func (l *Loader) Load(path string) (*domain.Graph, error) {
	configPath, err := findConfiguration(path)
	if err != nil {
		return nil, err
	}

	var incrfile Incrfile
	if err := readAndUnmarshalYAML(configPath, &incrfile); err != nil {
		return nil, zerr.With(err, "path", configPath)
	}

	if incrfile.Version != "" && incrfile.Version != domain.ConfigVersion {
		l.Logger.Warn("unsupported config version " + strconv.Quote(incrfile.Version) +
			" in " + configPath + ", reading it as version " + domain.ConfigVersion)
	}

	g := domain.NewGraph()
	g.SetRoot(resolvePath(filepath.Dir(configPath), incrfile.Root))

	state := incrfile.State
	if state == "" {
		state = domain.DefaultStatePath
	}
	g.SetStatePath(resolvePath(g.Root(), state))

	// Sorted so that the first reported error does not depend on map order.
	names := make([]string, 0, len(incrfile.Tasks))
	for name := range incrfile.Tasks {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		dto := incrfile.Tasks[name]
		if err := validateTaskName(name); err != nil {
			return nil, err
		}

		for _, dep := range dto.DependsOn {
			if _, ok := incrfile.Tasks[dep]; !ok {
				err := zerr.With(domain.ErrMissingDependency, "missing_dependency", dep)
				return nil, zerr.With(err, "task_name", name)
			}
		}

		if err := g.AddTask(buildTask(name, dto)); err != nil {
			return nil, err
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}

	l.Logger.Debug("loaded " + strconv.Itoa(g.TaskCount()) + " tasks from " + configPath)
	return g, nil
}

// findConfiguration returns path itself when it is a file, and otherwise the nearest
// configuration file found walking up from the directory.
func findConfiguration(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	info, err := os.Stat(abs)
	if err != nil {
		return "", zerr.With(zerr.Wrap(err, domain.ErrConfigReadFailed.Error()), "path", abs)
	}
	if !info.IsDir() {
		return abs, nil
	}

	currentDir := abs
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			break
		}
		currentDir = parentDir
	}

	return "", zerr.With(domain.ErrConfigNotFound, "cwd", abs)
}

func buildTask(name string, dto TaskDTO) *domain.Task {
	return &domain.Task{
		Name:         domain.NewInternedString(name),
		Command:      dto.Cmd,
		Inputs:       canonicalizeStrings(dto.Input),
		Outputs:      canonicalizeStrings(dto.Target),
		Dependencies: domain.NewInternedStrings(dto.DependsOn),
		Environment:  dto.Environment,
	}
}

// validateTaskName checks if the task name is reserved or contains invalid characters.
func validateTaskName(name string) error {
	if name == "all" {
		return zerr.With(domain.ErrReservedTaskName, "task_name", name)
	}
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return zerr.With(domain.ErrInvalidTaskName, "task_name", strconv.Quote(name))
	}
	return nil
}

func resolvePath(base, configured string) string {
	if configured == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(configured) {
		return filepath.Clean(configured)
	}
	return filepath.Clean(filepath.Join(base, configured))
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is validated by caller
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}

	return nil
}

func canonicalizeStrings(strs []string) []domain.InternedString {
	if len(strs) == 0 {
		return nil
	}

	sorted := slices.Clone(strs)
	slices.Sort(sorted)

	return domain.NewInternedStrings(slices.Compact(sorted))
}

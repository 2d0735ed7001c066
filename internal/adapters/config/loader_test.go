package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/incr/internal/adapters/config"
	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
)

func newLoader(t *testing.T) (*config.Loader, *mocks.MockLogger) {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	return config.NewLoader(log), log
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, domain.ConfigFileName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func taskNames(g *domain.Graph) []string {
	var names []string
	for task := range g.Walk() {
		names = append(names, task.Name.String())
	}
	return names
}

func TestLoad_Success(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
version: "1"
tasks:
  build:
    input: ["src/**/*"]
    cmd: ["go", "build"]
    target: ["bin/app"]
    dependsOn: ["lint"]
    environment:
      CGO_ENABLED: "0"
  lint:
    cmd: ["golangci-lint", "run"]
`)

	loader, _ := newLoader(t)
	g, err := loader.Load(tmpDir)
	require.NoError(t, err)

	assert.Equal(t, []string{"lint", "build"}, taskNames(g))
	assert.Equal(t, tmpDir, g.Root())
	assert.Equal(t, filepath.Join(tmpDir, ".incr", "graph.lz4"), g.StatePath())

	build, ok := g.GetTask(domain.NewInternedString("build"))
	require.True(t, ok)
	assert.Equal(t, []string{"go", "build"}, build.Command)
	assert.Equal(t, map[string]string{"CGO_ENABLED": "0"}, build.Environment)
	assert.Equal(t, []domain.InternedString{domain.NewInternedString("lint")}, build.Dependencies)
}

func TestLoad_ExplicitFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tasks:
  build:
    cmd: ["true"]
`), 0o600))

	loader, _ := newLoader(t)
	g, err := loader.Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"build"}, taskNames(g))
	assert.Equal(t, tmpDir, g.Root())
}

func TestLoad_Discovery(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
tasks:
  root-task:
    cmd: ["echo", "root"]
`)
	nested := filepath.Join(tmpDir, "pkg", "src")
	require.NoError(t, os.MkdirAll(nested, 0o750))

	loader, _ := newLoader(t)
	g, err := loader.Load(nested)
	require.NoError(t, err)

	assert.Equal(t, []string{"root-task"}, taskNames(g))
	assert.Equal(t, tmpDir, g.Root(), "root is the directory of the discovered file")
}

func TestLoad_NotFound(t *testing.T) {
	loader, _ := newLoader(t)

	_, err := loader.Load(t.TempDir())
	require.ErrorContains(t, err, domain.ErrConfigNotFound.Error())
}

func TestLoad_MissingPath(t *testing.T) {
	loader, _ := newLoader(t)

	_, err := loader.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorContains(t, err, domain.ErrConfigReadFailed.Error())
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, "tasks: [unclosed")

	loader, _ := newLoader(t)
	_, err := loader.Load(tmpDir)
	require.ErrorContains(t, err, domain.ErrConfigParseFailed.Error())
}

func TestLoad_MissingDependency(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
tasks:
  build:
    dependsOn: ["missing"]
`)

	loader, _ := newLoader(t)
	_, err := loader.Load(tmpDir)
	require.ErrorContains(t, err, domain.ErrMissingDependency.Error())
}

func TestLoad_ReservedTaskName(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
tasks:
  all:
    cmd: ["true"]
`)

	loader, _ := newLoader(t)
	_, err := loader.Load(tmpDir)
	require.ErrorContains(t, err, domain.ErrReservedTaskName.Error())
}

func TestLoad_InvalidTaskName(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
tasks:
  "my task":
    cmd: ["true"]
`)

	loader, _ := newLoader(t)
	_, err := loader.Load(tmpDir)
	require.ErrorContains(t, err, domain.ErrInvalidTaskName.Error())
}

func TestLoad_Cycle(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
tasks:
  a:
    dependsOn: ["b"]
  b:
    dependsOn: ["a"]
`)

	loader, _ := newLoader(t)
	_, err := loader.Load(tmpDir)
	require.ErrorContains(t, err, domain.ErrCycleDetected.Error())
}

func TestLoad_Canonicalization(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
tasks:
  build:
    input: ["b", "a", "a", "c"]
    cmd: ["echo"]
    target: ["y", "x", "x", "z"]
`)

	loader, _ := newLoader(t)
	g, err := loader.Load(tmpDir)
	require.NoError(t, err)

	build, ok := g.GetTask(domain.NewInternedString("build"))
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, domain.Strings(build.Inputs))
	assert.Equal(t, []string{"x", "y", "z"}, domain.Strings(build.Outputs))
}

func TestLoad_StateAndRoot(t *testing.T) {
	tmpDir := t.TempDir()
	workspace := filepath.Join(tmpDir, "ws")
	require.NoError(t, os.MkdirAll(workspace, 0o750))
	configDir := filepath.Join(tmpDir, "conf")
	require.NoError(t, os.MkdirAll(configDir, 0o750))
	writeConfig(t, configDir, `
root: ../ws
state: cache/deps.bin
tasks:
  build:
    cmd: ["true"]
`)

	loader, _ := newLoader(t)
	g, err := loader.Load(configDir)
	require.NoError(t, err)

	assert.Equal(t, workspace, g.Root())
	assert.Equal(t, filepath.Join(workspace, "cache", "deps.bin"), g.StatePath())
}

func TestLoad_AbsoluteState(t *testing.T) {
	tmpDir := t.TempDir()
	state := filepath.Join(t.TempDir(), "graph.lz4")
	writeConfig(t, tmpDir, "state: "+state+"\ntasks: {}\n")

	loader, _ := newLoader(t)
	g, err := loader.Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, state, g.StatePath())
}

func TestLoad_UnsupportedVersionWarns(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `
version: "2"
tasks:
  build:
    cmd: ["true"]
`)

	loader, log := newLoader(t)
	log.EXPECT().Warn(gomock.Any()).Times(1)

	_, err := loader.Load(tmpDir)
	require.NoError(t, err)
}

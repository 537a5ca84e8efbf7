// Package testutil provides fixtures for orchestrator and CLI tests: a
// temporary pipeline workspace, recording fake connectors and a registry
// that knows about them.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Workspace is a temporary pipeline directory and staging root.
type Workspace struct {
	t      *testing.T
	Root   string
	Layout pipeline.Layout
}

// NewWorkspace creates a workspace for pipeline name under t.TempDir().
func NewWorkspace(t *testing.T, name string) *Workspace {
	t.Helper()
	root := t.TempDir()
	layout := pipeline.Layout{
		PipelineDir: filepath.Join(root, "pipelines", name),
		OutputDir:   filepath.Join(root, "output", name),
	}
	require.NoError(t, os.MkdirAll(layout.PipelineDir, 0o755))
	return &Workspace{t: t, Root: root, Layout: layout}
}

// WriteFile writes content to path, relative paths being resolved against
// the workspace root, and returns the absolute path.
func (w *Workspace) WriteFile(path, content string) string {
	w.t.Helper()
	if !filepath.IsAbs(path) {
		path = filepath.Join(w.Root, path)
	}
	require.NoError(w.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(w.t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// ReadFile returns the content of path, failing the test when it is missing.
func (w *Workspace) ReadFile(path string) string {
	w.t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(w.t, err)
	return string(data)
}

// Exists reports whether path exists.
func (w *Workspace) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Stage writes a staged data file of object, as the extract phase would.
func (w *Workspace) Stage(object, file, content string) string {
	return w.WriteFile(filepath.Join(w.Layout.DataDir(object), file), content)
}

// Pipeline builds a pipeline over the workspace layout.
func (w *Workspace) Pipeline(name string, source, target pipeline.Endpoint, mode pipeline.Mode, specs ...pipeline.ObjectSpec) *pipeline.Pipeline {
	return pipeline.New(name, source, target, mode, pipeline.SettingsOverride{}, specs, w.Layout)
}

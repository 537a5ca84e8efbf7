package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type workspace struct {
	root   string
	config string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	root := t.TempDir()
	ws := &workspace{root: root, config: filepath.Join(root, "stageflow.yaml")}
	ws.write(t, "stageflow.yaml", `
workspace:
  pipeline_dir_path: `+filepath.Join(root, "pipelines")+`
  output_dir_path: `+filepath.Join(root, "output")+`
  logs_dir_path: `+filepath.Join(root, "logs")+`
logging:
  level: debug
  mode: file
  encoding: json
metrics:
  textfile_path: `+filepath.Join(root, "metrics", "stageflow.prom")+`
`)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "metrics"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "exports"), 0o755))
	return ws
}

func (w *workspace) path(rel string) string { return filepath.Join(w.root, rel) }

func (w *workspace) write(t *testing.T, rel, content string) {
	t.Helper()
	path := w.path(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (w *workspace) csvPipeline(t *testing.T, enabled string) {
	t.Helper()
	w.write(t, "pipelines/csv_copy/pipeline.yaml", `pipeline:
  pipeline_attributes:
    pipeline_name: csv_copy
    is_enabled: `+enabled+`
  source_attributes:
    endpoint_type: csv
  target_attributes:
    endpoint_type: csv
    destination_dir_path: `+w.path("exports")+`
  data_attributes:
    data_objects_spec_mode: only
    object_default_settings:
      columns_delimiter: ","
      header: true
---
data_objects_spec:
- object_spec:
    object_name: orders
    destination_object_name: orders_copy
    object_source_dir: `+w.path("landing/orders")+`
    file_names: ["orders_*.csv"]
- object_spec:
    object_name: customers
    object_source_dir: `+w.path("landing/customers")+`
`)
	w.write(t, "landing/orders/orders_1.csv", "id,total\n1,9.5\n2,3.25\n")
	w.write(t, "landing/orders/orders_2.csv", "id,total\n3,1.0\n")
	w.write(t, "landing/customers/customers.csv", "id,name\n1,ann\n")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(&app{})
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRunCSVToCSV(t *testing.T) {
	ws := newWorkspace(t)
	ws.csvPipeline(t, "true")

	_, err := execute(t, "--config", ws.config, "run", "-p", "csv_copy")
	require.NoError(t, err)

	for _, f := range []string{"exports/orders_copy/orders_1.csv", "exports/orders_copy/orders_2.csv", "exports/customers/customers.csv"} {
		assert.FileExists(t, ws.path(f))
	}
	assert.FileExists(t, ws.path("output/csv_copy/orders/metadata/object_meta.json"))
	assert.FileExists(t, ws.path("logs/csv_copy.log"))

	prom, err := os.ReadFile(ws.path("metrics/stageflow.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `stageflow_objects_total{outcome="done",phase="load",pipeline="csv_copy"} 2`)
	assert.Contains(t, string(prom), `stageflow_objects_total{outcome="done",phase="extract",pipeline="csv_copy"} 2`)
}

func TestRunRestrictedSourceOnly(t *testing.T) {
	ws := newWorkspace(t)
	ws.csvPipeline(t, "true")

	_, err := execute(t, "--config", ws.config, "run", "-p", "csv_copy", "--source-only", "-o", "customers")
	require.NoError(t, err)

	assert.FileExists(t, ws.path("output/csv_copy/customers/data/customers.csv"))
	assert.NoDirExists(t, ws.path("output/csv_copy/orders"))
	assert.NoDirExists(t, ws.path("exports/customers"))
}

func TestRunDisabledPipeline(t *testing.T) {
	ws := newWorkspace(t)
	ws.csvPipeline(t, "false")

	_, err := execute(t, "--config", ws.config, "run", "-p", "csv_copy")
	require.NoError(t, err)
	assert.NoDirExists(t, ws.path("output/csv_copy"))
}

func TestRunFlagErrors(t *testing.T) {
	ws := newWorkspace(t)
	ws.csvPipeline(t, "true")

	_, err := execute(t, "--config", ws.config, "run", "-p", "csv_copy", "--source-only", "--target-only")
	assert.Error(t, err)

	_, err = execute(t, "--config", ws.config, "run")
	assert.Error(t, err)

	_, err = execute(t, "--config", ws.config, "run", "-p", "missing")
	assert.Error(t, err)
}

func TestShow(t *testing.T) {
	ws := newWorkspace(t)
	ws.csvPipeline(t, "true")

	out, err := execute(t, "--config", ws.config, "show", "-p", "csv_copy")
	require.NoError(t, err)
	assert.Contains(t, out, "pipeline_name: csv_copy")
	assert.Contains(t, out, "destination_object_name: orders_copy")
	assert.Contains(t, out, "destination_object_name: customers")

	out, err = execute(t, "--config", ws.config, "show", "-p", "csv_copy", "-o", "orders")
	require.NoError(t, err)
	assert.NotContains(t, out, "object_name: customers")
}

func TestList(t *testing.T) {
	ws := newWorkspace(t)
	ws.csvPipeline(t, "false")
	ws.write(t, "pipelines/broken/pipeline.yaml", "pipeline: [\n")

	out, err := execute(t, "--config", ws.config, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "csv_copy")
	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "csv -> csv")
	assert.Contains(t, out, "broken")
	assert.Contains(t, out, "invalid")
}

func TestConnectorsAndVersion(t *testing.T) {
	ws := newWorkspace(t)

	out, err := execute(t, "--config", ws.config, "connectors")
	require.NoError(t, err)
	for _, kind := range []string{"bigquery", "csv", "gcs", "mysql", "postgres", "s3", "snowflake"} {
		assert.Contains(t, out, kind)
	}
	assert.True(t, strings.Contains(out, "source,target"))

	out, err = execute(t, "--config", ws.config, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "stageflow v"+version)
}

package dataobject

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

func ptr[T any](v T) *T { return &v }

func newPipeline(mode pipeline.Mode, sourceCategory pipeline.Category, specs ...pipeline.ObjectSpec) *pipeline.Pipeline {
	return pipeline.New("orders_pipeline",
		pipeline.NewEndpoint("postgres", sourceCategory, nil),
		pipeline.NewEndpoint("bigquery", pipeline.CategoryDatabase, nil),
		mode,
		pipeline.SettingsOverride{ColumnsDelimiter: ptr("|"), Header: ptr(true)},
		specs,
		pipeline.Layout{OutputDir: "/out"},
	)
}

func TestResolveMissingSpecByMode(t *testing.T) {
	tests := []struct {
		name     string
		mode     pipeline.Mode
		category pipeline.Category
		wantErr  bool
		wantWarn bool
	}{
		{"only database", pipeline.ModeOnly, pipeline.CategoryDatabase, true, false},
		{"only file", pipeline.ModeOnly, pipeline.CategoryFile, true, false},
		{"ignore database", pipeline.ModeIgnore, pipeline.CategoryDatabase, false, false},
		{"ignore file", pipeline.ModeIgnore, pipeline.CategoryFile, true, false},
		{"prefer database", pipeline.ModePrefer, pipeline.CategoryDatabase, false, true},
		{"prefer file", pipeline.ModePrefer, pipeline.CategoryFile, true, false},
		{"prefer storage", pipeline.ModePrefer, pipeline.CategoryStorage, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			r := NewResolver(newPipeline(tt.mode, tt.category, pipeline.ObjectSpec{ObjectName: "customers", ObjectSourceDir: "/in"}), zap.New(core))

			obj, err := r.Resolve("orders")
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				assert.Contains(t, err.Error(), "orders")
				assert.Equal(t, 0, logs.Len())
				return
			}
			require.NoError(t, err)

			assert.Equal(t, "orders", obj.Name)
			assert.Equal(t, "orders", obj.Destination())
			assert.False(t, obj.RecreateDestination)
			assert.Empty(t, obj.ExcludedColumns)
			assert.False(t, obj.FromSpec)
			assert.Equal(t, "|", obj.Settings.ColumnsDelimiter)
			assert.Equal(t, pipeline.QuoteDouble, obj.Settings.QuoteChar)

			if tt.wantWarn {
				require.Equal(t, 1, logs.Len())
				assert.Equal(t, "orders", logs.All()[0].ContextMap()["object"])
			} else {
				assert.Equal(t, 0, logs.Len())
			}
		})
	}
}

func TestResolveMergesSpecOverDefaults(t *testing.T) {
	p := newPipeline(pipeline.ModeOnly, pipeline.CategoryDatabase, pipeline.ObjectSpec{
		ObjectName:                "orders",
		DestinationObjectName:     "stg_orders",
		RecreateDestinationObject: true,
		ExcludedColumns:           []string{"notes"},
		Settings: pipeline.SettingsOverride{
			Header:    ptr(false),
			QuoteChar: ptr(pipeline.QuoteSingle),
		},
	})

	obj, err := Resolve(p, "orders")
	require.NoError(t, err)

	assert.True(t, obj.FromSpec)
	assert.Equal(t, "stg_orders", obj.Destination())
	assert.True(t, obj.RecreateDestination)
	assert.True(t, obj.Excludes("notes"))
	assert.False(t, obj.Excludes("id"))

	assert.Equal(t, pipeline.Settings{
		ColumnsDelimiter:  "|",
		QuoteChar:         pipeline.QuoteSingle,
		Header:            false,
		CleanupLineBreaks: false,
		Compression:       pipeline.CompressionNone,
		Encoding:          "UTF8",
	}, obj.Settings)
}

func TestResolveFirstMatchWins(t *testing.T) {
	p := newPipeline(pipeline.ModeOnly, pipeline.CategoryDatabase,
		pipeline.ObjectSpec{ObjectName: "orders", DestinationObjectName: "first"},
		pipeline.ObjectSpec{ObjectName: "orders", DestinationObjectName: "second"},
	)
	obj, err := Resolve(p, "orders")
	require.NoError(t, err)
	assert.Equal(t, "first", obj.DestinationName)
}

func TestResolveFileSourceRequiresSourceDir(t *testing.T) {
	p := newPipeline(pipeline.ModePrefer, pipeline.CategoryFile, pipeline.ObjectSpec{ObjectName: "orders"})
	_, err := Resolve(p, "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "object_source_dir")
}

func TestResolveAll(t *testing.T) {
	p := newPipeline(pipeline.ModeOnly, pipeline.CategoryDatabase, pipeline.ObjectSpec{ObjectName: "a"}, pipeline.ObjectSpec{ObjectName: "b"})
	r := NewResolver(p, zap.NewNop())

	objs, err := r.ResolveAll([]string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "b", objs[0].Name)

	_, err = r.ResolveAll([]string{"a", "missing"})
	require.Error(t, err)
}

func TestMergeSettingsLayers(t *testing.T) {
	s, err := MergeSettings()
	require.NoError(t, err)
	assert.Equal(t, pipeline.DefaultSettings(), s)

	s, err = MergeSettings(
		pipeline.SettingsOverride{Compression: ptr(pipeline.CompressionGzip), Header: ptr(false)},
		pipeline.SettingsOverride{Header: ptr(true)},
	)
	require.NoError(t, err)
	assert.Equal(t, pipeline.CompressionGzip, s.Compression)
	assert.True(t, s.Header)
	assert.Equal(t, ",", s.ColumnsDelimiter)
}

package gcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

func TestClientOptions(t *testing.T) {
	endpoint := func(attrs map[string]interface{}) pipeline.Endpoint {
		return pipeline.NewEndpoint(Kind, pipeline.CategoryStorage, attrs)
	}

	opts, err := ClientOptions(context.Background(), endpoint(nil))
	require.NoError(t, err)
	assert.Empty(t, opts)

	opts, err = ClientOptions(context.Background(), endpoint(map[string]interface{}{"gcp_project_id": "acme"}))
	require.NoError(t, err)
	assert.Len(t, opts, 1)

	bad := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0o600))

	tests := []struct {
		name  string
		attrs map[string]interface{}
	}{
		{"missing key file", map[string]interface{}{"gcp_credentials_file": filepath.Join(t.TempDir(), "nope.json")}},
		{"malformed key file", map[string]interface{}{"gcp_credentials_file": bad}},
		{"malformed inline key", map[string]interface{}{"gcp_credentials_json": "{"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ClientOptions(context.Background(), endpoint(tt.attrs))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

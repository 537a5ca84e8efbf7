package gcs

import (
	"context"
	"os"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"

	"github.com/ajitpratap0/stageflow/pkg/errors"
	"github.com/ajitpratap0/stageflow/pkg/pipeline"
)

// ClientOptions builds the Google client options of ep. The service account
// key comes from gcp_credentials_json or the file named by
// gcp_credentials_file; with neither, application default credentials apply.
func ClientOptions(ctx context.Context, ep pipeline.Endpoint, scopes ...string) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if p := ep.String("gcp_project_id"); p != "" {
		opts = append(opts, option.WithQuotaProject(p))
	}

	key := []byte(ep.String("gcp_credentials_json"))
	if f := ep.String("gcp_credentials_file"); len(key) == 0 && f != "" {
		data, err := os.ReadFile(f) //nolint:gosec // G304: configured key file
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read service account key").
				WithDetail("key", "gcp_credentials_file").WithDetail("path", f)
		}
		key = data
	}
	if len(key) == 0 {
		return opts, nil
	}

	creds, err := google.CredentialsFromJSON(ctx, key, scopes...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid service account key")
	}
	return append(opts, option.WithCredentials(creds)), nil
}

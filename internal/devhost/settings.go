package devhost

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cdmackie/automod-core/pkg/platform"
)

// FileSettingsReader reads per-subreddit settings from a single JSON file
// on disk, keyed by subreddit name, for running the pipeline without a
// live host settings store. An empty path or missing subreddit key yields
// an empty map, which pkg/settings.Reader fills in with defaults.
type FileSettingsReader struct {
	path string
}

// NewFileSettingsReader creates a FileSettingsReader for path. path may be
// empty, in which case Read always returns an empty map.
func NewFileSettingsReader(path string) *FileSettingsReader {
	return &FileSettingsReader{path: path}
}

// Read implements platform.SettingsReader.
func (r *FileSettingsReader) Read(ctx context.Context, subreddit string) (map[string]any, error) {
	if r.path == "" {
		return map[string]any{}, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("reading settings config %s: %w", r.path, err)
	}

	var byCommunity map[string]map[string]any
	if err := json.Unmarshal(data, &byCommunity); err != nil {
		return nil, fmt.Errorf("parsing settings config %s: %w", r.path, err)
	}

	raw, ok := byCommunity[subreddit]
	if !ok {
		return map[string]any{}, nil
	}
	return raw, nil
}

var _ platform.SettingsReader = (*FileSettingsReader)(nil)

package fetch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ManifestName is the optional manifest file inside a fixture directory.
const ManifestName = "fixtures.yaml"

// Fixtures serves feed documents from a local directory instead of the
// network. By default the document for a feed is <dir>/<adapterId>/<feedId>.xml.
// A fixtures.yaml manifest may point a target at another file or simulate an
// HTTP status:
//
//	targets:
//	  rss:golang:
//	    file: golang-broken.xml
//	  medium:eng:
//	    status: 503
type Fixtures struct {
	dir      string
	manifest Manifest
}

// Manifest is the parsed fixtures.yaml.
type Manifest struct {
	Targets map[string]FixtureEntry `yaml:"targets"`
}

// FixtureEntry overrides the fixture for one target.
type FixtureEntry struct {
	File   string `yaml:"file"`
	Status int    `yaml:"status"`
}

// NewFixtures opens a fixture directory and reads its manifest if present.
func NewFixtures(dir string) (*Fixtures, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixture path %s is not a directory", dir)
	}

	f := &Fixtures{dir: dir}

	data, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture manifest: %w", err)
	}
	if err := yaml.Unmarshal(data, &f.manifest); err != nil {
		return nil, fmt.Errorf("failed to parse fixture manifest: %w", err)
	}

	return f, nil
}

// Fetch returns the fixture document for req.
func (f *Fixtures) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := filepath.Join(req.AdapterID, req.FeedID+".xml")
	if entry, ok := f.manifest.Targets[req.AdapterID+":"+req.FeedID]; ok {
		if entry.Status != 0 && (entry.Status < 200 || entry.Status > 299) {
			return nil, &StatusError{StatusCode: entry.Status}
		}
		if entry.File != "" {
			name = entry.File
		}
	}

	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("fixture path %q escapes the fixture directory", name)
	}

	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	if len(data) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}

	return data, nil
}

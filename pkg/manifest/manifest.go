// Package manifest loads and validates workflow manifest files.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pitchwire/pitchwire/pkg/models"
)

// ErrManifestNotFound indicates no manifest file exists at the given path.
var ErrManifestNotFound = errors.New("manifest not found")

// Loader reads immutable workflow manifests from disk.
type Loader struct {
	validate *validator.Validate
}

// NewLoader creates a manifest loader with struct validation enabled.
func NewLoader() *Loader {
	return &Loader{
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Load reads and validates a single manifest file. A missing file returns
// ErrManifestNotFound rather than an os error, so callers can treat absence
// as an ordinary outcome.
func (l *Loader) Load(path string) (*models.WorkflowManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}

		return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
	}

	var manifest models.WorkflowManifest

	err = json.Unmarshal(data, &manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}

	err = l.validate.Struct(manifest)
	if err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	return &manifest, nil
}

// LoadDir loads every *.json manifest under dir, keyed by manifest id.
func (l *Loader) LoadDir(dir string) (map[string]*models.WorkflowManifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest directory %s: %w", dir, err)
	}

	manifests := make(map[string]*models.WorkflowManifest)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		manifest, err := l.Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}

		if _, dup := manifests[manifest.ID]; dup {
			return nil, fmt.Errorf("duplicate manifest id %q in %s", manifest.ID, dir)
		}

		manifests[manifest.ID] = manifest
	}

	return manifests, nil
}

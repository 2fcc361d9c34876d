package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	appErrors "github.com/unclebandit/bulk-dispatcher/internal/errors"
	"github.com/unclebandit/bulk-dispatcher/internal/model"
)

// ProfileRepositoryInterface defines what the dispatcher needs from the profile store
type ProfileRepositoryInterface interface {
	Load(name string) (*model.Profile, error)
	List() ([]string, error)
	Save(p model.Profile) error
}

// ProfileRepository keeps profiles in one file keyed by profile name.
// Files ending in .yaml or .yml are YAML, anything else is JSON.
type ProfileRepository struct {
	Path string

	mu sync.Mutex
}

func (r *ProfileRepository) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(r.Path))
	return ext == ".yaml" || ext == ".yml"
}

func (r *ProfileRepository) readAll() (map[string]model.Profile, error) {
	profiles := map[string]model.Profile{}
	b, err := os.ReadFile(r.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return profiles, nil
		}
		return nil, err
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return profiles, nil
	}
	if r.isYAML() {
		err = yaml.Unmarshal(b, &profiles)
	} else {
		err = json.Unmarshal(b, &profiles)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.Path, err)
	}
	for name, p := range profiles {
		p.Name = name
		profiles[name] = p
	}
	return profiles, nil
}

// Load fetches a profile by name
func (r *ProfileRepository) Load(name string) (*model.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.readAll()
	if err != nil {
		return nil, appErrors.NewLoadError("profiles", err)
	}
	p, ok := profiles[name]
	if !ok {
		return nil, appErrors.NewProfileNotFound(name)
	}
	return &p, nil
}

// List returns profile names in sorted order.
func (r *ProfileRepository) List() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.readAll()
	if err != nil {
		return nil, appErrors.NewLoadError("profiles", err)
	}
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Save adds or replaces a profile and rewrites the file.
func (r *ProfileRepository) Save(p model.Profile) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("profile name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	profiles, err := r.readAll()
	if err != nil {
		return err
	}
	profiles[p.Name] = p

	var b []byte
	if r.isYAML() {
		b, err = yaml.Marshal(profiles)
	} else {
		b, err = json.MarshalIndent(profiles, "", "    ")
	}
	if err != nil {
		return err
	}

	tmp := r.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, r.Path)
}

// ParseTemplates splits a comma-separated template list, dropping blanks.
func ParseTemplates(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

var _ ProfileRepositoryInterface = (*ProfileRepository)(nil)

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sevigo/scan-dispatch/internal/core"
	"github.com/sevigo/scan-dispatch/internal/gitutil"
)

var (
	ErrConfigNotFound = errors.New("config file not found")
	ErrConfigParsing  = errors.New("config parsing failed")
)

// Registry is the seed file format used by `scanctl repos import` to register
// workspaces and their repositories in bulk.
type Registry struct {
	Workspaces []WorkspaceSeed `yaml:"workspaces"`
}

// WorkspaceSeed describes one workspace and the repositories it owns.
type WorkspaceSeed struct {
	Name         string           `yaml:"name"`
	PlanLevel    string           `yaml:"plan_level"`
	Repositories []RepositorySeed `yaml:"repositories"`
}

// RepositorySeed describes a repository by its provider name and id.
type RepositorySeed struct {
	Name       string `yaml:"name"`
	Provider   string `yaml:"provider"`
	ExternalID string `yaml:"external_id"`
}

// LoadRegistry loads and validates a registry seed file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var reg Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}
	if err := reg.normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigParsing, err)
	}
	return &reg, nil
}

func (r *Registry) normalize() error {
	seen := make(map[string]string)
	for i := range r.Workspaces {
		ws := &r.Workspaces[i]
		ws.Name = strings.TrimSpace(ws.Name)
		if ws.Name == "" {
			return fmt.Errorf("workspace #%d has no name", i+1)
		}
		if ws.PlanLevel == "" {
			ws.PlanLevel = core.DefaultPlanLevel
		}
		for j := range ws.Repositories {
			repo := &ws.Repositories[j]
			if repo.Provider == "" {
				repo.Provider = core.ProviderGitHub
			}
			if strings.TrimSpace(repo.Name) == "" {
				return fmt.Errorf("workspace %q: repository #%d needs a name", ws.Name, j+1)
			}
			owner, name, err := gitutil.ParseRepositoryRef(repo.Name)
			if err != nil {
				return fmt.Errorf("workspace %q: %w", ws.Name, err)
			}
			repo.Name = gitutil.FullName(owner, name)
			if repo.ExternalID == "" {
				continue
			}
			key := repo.Provider + ":" + repo.ExternalID
			if owner, dup := seen[key]; dup {
				return fmt.Errorf("repository %s is listed twice (workspaces %q and %q)", key, owner, ws.Name)
			}
			seen[key] = ws.Name
		}
	}
	return nil
}

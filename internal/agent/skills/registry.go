package skills

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
)

// SkillFileName is the expected filename for skill definitions
const SkillFileName = "SKILL.md"

//go:embed catalog/*/SKILL.md
var catalogFS embed.FS

// Registry holds the skill catalog. Skills are loaded once at construction;
// the catalog is fixed for the life of the process, only enabled state moves.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]*Skill // name -> skill
}

// NewRegistry loads the embedded skill catalog.
func NewRegistry() (*Registry, error) {
	return NewRegistryFromFS(catalogFS)
}

// NewRegistryFromFS loads all SKILL.md files from the given filesystem.
// Skills are expected to live in subdirectories:
//
//	catalog/
//	├── landing-page-writer/
//	│   └── SKILL.md
//	└── page-auditor/
//	    └── SKILL.md
func NewRegistryFromFS(fsys fs.FS) (*Registry, error) {
	r := &Registry{skills: make(map[string]*Skill)}

	err := fs.WalkDir(fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(d.Name(), SkillFileName) {
			return nil
		}

		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		skill, err := ParseSkillMD(data)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		if skill.Version == "" {
			skill.Version = "1.0.0"
		}
		skill.Enabled = !skill.Disabled

		if err := skill.Validate(); err != nil {
			return fmt.Errorf("invalid skill %s: %w", path, err)
		}

		if _, dup := r.skills[skill.Name]; dup {
			return fmt.Errorf("duplicate skill name %q at %s", skill.Name, path)
		}
		r.skills[skill.Name] = skill
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.Infof("[skills] Loaded %d skills", len(r.skills))
	return r, nil
}

// Get returns an enabled skill by name. Disabled skills behave as absent.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	skill, ok := r.skills[name]
	if !ok || !skill.Enabled {
		return nil, false
	}
	return skill, true
}

// ByClassification returns the enabled skill handling the given
// content-record classification, if exactly one claims it. When several
// enabled skills claim the same classification the first by name wins;
// the catalog is expected to keep classifications unique.
func (r *Registry) ByClassification(classification string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []*Skill
	for _, skill := range r.skills {
		if !skill.Enabled {
			continue
		}
		for _, c := range skill.Classifications {
			if c == classification {
				matches = append(matches, skill)
				break
			}
		}
	}
	if len(matches) == 0 {
		return nil, false
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Name < matches[j].Name })
	return matches[0], true
}

// List returns all skills (enabled or not) sorted by name
func (r *Registry) List() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()

	skills := make([]*Skill, 0, len(r.skills))
	for _, skill := range r.skills {
		skills = append(skills, skill)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills
}

// Count returns the number of loaded skills
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.skills)
}

// SetEnabled sets the enabled state of a skill by name
func (r *Registry) SetEnabled(name string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if skill, ok := r.skills[name]; ok {
		skill.Enabled = enabled
		return true
	}
	return false
}

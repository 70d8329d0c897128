// Package skills provides Markdown-based skill definitions for page work.
// Each skill is a SKILL.md file with YAML frontmatter for metadata and the
// markdown body as the prompt instructions:
//
//	---
//	name: landing-page-writer
//	description: Writes conversion-focused landing pages
//	classifications: [landing_page]
//	---
//
//	# Landing Page Writer
//
//	Instructions for the agent...
package skills

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Skill represents a skill definition parsed from a SKILL.md file.
type Skill struct {
	// Name is the unique identifier for the skill
	Name string `yaml:"name"`

	// Description explains what the skill does (one-liner for catalog)
	Description string `yaml:"description"`

	// Version for tracking skill updates
	Version string `yaml:"version"`

	// Category groups skills for listing (research, content, optimize, monitor)
	Category string `yaml:"category"`

	// Classifications lists content-record classifications this skill
	// handles. Used for automatic routing when no skill is named.
	Classifications []string `yaml:"classifications"`

	// Tools lists tool names this skill needs beyond the default set
	Tools []string `yaml:"tools"`

	// Disabled keeps a skill in the catalog without letting it resolve
	Disabled bool `yaml:"disabled"`

	// Instructions is the markdown body: what the skill tells the model.
	// Parsed from the body, not from YAML.
	Instructions string `yaml:"-"`

	// Enabled is the runtime state, seeded from the authored Disabled flag
	Enabled bool `yaml:"-"`
}

// Validate checks if the skill definition is valid
func (s *Skill) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("skill name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("skill %q: description is required", s.Name)
	}
	return nil
}

// ParseSkillMD parses a SKILL.md file into a Skill struct.
// The file format is YAML frontmatter (between --- markers) followed by markdown body.
func ParseSkillMD(data []byte) (*Skill, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var skill Skill
	if err := yaml.Unmarshal(frontmatter, &skill); err != nil {
		return nil, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	skill.Instructions = string(bytes.TrimSpace(body))

	return &skill, nil
}

// splitFrontmatter separates YAML frontmatter from markdown body.
// Frontmatter must be enclosed in --- markers at the start of the file.
func splitFrontmatter(data []byte) (frontmatter []byte, body []byte, err error) {
	if !bytes.HasPrefix(data, []byte("---")) {
		return nil, nil, fmt.Errorf("SKILL.md must start with --- (YAML frontmatter)")
	}

	rest := data[3:] // Skip opening ---

	// Skip any whitespace/newline after opening ---
	rest = bytes.TrimLeft(rest, " \t")
	if len(rest) > 0 && rest[0] == '\n' {
		rest = rest[1:]
	} else if len(rest) > 1 && rest[0] == '\r' && rest[1] == '\n' {
		rest = rest[2:]
	}

	closingIdx := bytes.Index(rest, []byte("\n---"))
	if closingIdx == -1 {
		closingIdx = bytes.Index(rest, []byte("\r\n---"))
		if closingIdx == -1 {
			return nil, nil, fmt.Errorf("SKILL.md missing closing --- for frontmatter")
		}
	}

	frontmatter = rest[:closingIdx]

	body = rest[closingIdx+4:] // +4 for \n---

	// Skip any whitespace/newline after closing ---
	body = bytes.TrimLeft(body, " \t")
	if len(body) > 0 && body[0] == '\n' {
		body = body[1:]
	} else if len(body) > 1 && body[0] == '\r' && body[1] == '\n' {
		body = body[2:]
	}

	return frontmatter, body, nil
}

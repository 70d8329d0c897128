// Package tools declares the capability set the model may call. Tools are
// executed by the completion runtime, not by this process; the core only
// declares their schemas outbound and interprets their result payloads
// inbound (for redaction), so each tool carries a declared category.
package tools

import (
	"encoding/json"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/ai"
)

// Category classifies a tool by its result-payload contract
type Category string

const (
	// CategoryArtifact marks tools whose results carry persisted-elsewhere
	// guarantees: large inline content is redundant once the run moves on.
	CategoryArtifact Category = "artifact"
	// CategoryGeneric marks tools with no such guarantee; their oversized
	// fields are truncated, never unconditionally removed.
	CategoryGeneric Category = "generic"
	// CategoryUnknown is returned for tool names the catalog does not carry.
	CategoryUnknown Category = "unknown"
)

// Spec describes one declared tool
type Spec struct {
	Name        string
	Description string
	Category    Category
	InputSchema string // JSON schema
}

// catalog is the fixed tool catalog, populated once at init.
var catalog = []Spec{
	{
		Name:        "web_fetch",
		Description: "Fetch a URL and return its text content",
		Category:    CategoryGeneric,
		InputSchema: `{"type":"object","properties":{"url":{"type":"string","description":"URL to fetch"}},"required":["url"]}`,
	},
	{
		Name:        "web_search",
		Description: "Search the web and return result snippets",
		Category:    CategoryGeneric,
		InputSchema: `{"type":"object","properties":{"query":{"type":"string","description":"Search query"}},"required":["query"]}`,
	},
	{
		Name:        "serp_snapshot",
		Description: "Capture the rendered search results page for a query, including ranking positions and markup",
		Category:    CategoryGeneric,
		InputSchema: `{"type":"object","properties":{"query":{"type":"string"},"locale":{"type":"string"}},"required":["query"]}`,
	},
	{
		Name:        "keyword_metrics",
		Description: "Look up search volume, difficulty and related terms for keywords",
		Category:    CategoryGeneric,
		InputSchema: `{"type":"object","properties":{"keywords":{"type":"array","items":{"type":"string"}}},"required":["keywords"]}`,
	},
	{
		Name:        "read_record",
		Description: "Read a structured content record (page plan, brief, sitemap entry) by id",
		Category:    CategoryGeneric,
		InputSchema: `{"type":"object","properties":{"record_id":{"type":"string"}},"required":["record_id"]}`,
	},
	{
		Name:        "render_page",
		Description: "Render a page from structured sections into final HTML and persist it",
		Category:    CategoryArtifact,
		InputSchema: `{"type":"object","properties":{"target_id":{"type":"string"},"title":{"type":"string"},"sections":{"type":"array","items":{"type":"object"}}},"required":["target_id","sections"]}`,
	},
	{
		Name:        "export_asset",
		Description: "Upload a generated asset (image, open-graph card, sitemap) to storage",
		Category:    CategoryArtifact,
		InputSchema: `{"type":"object","properties":{"file_name":{"type":"string"},"content_type":{"type":"string"},"data":{"type":"string"}},"required":["file_name","data"]}`,
	},
	{
		Name:        "audit_page",
		Description: "Run an on-page SEO audit against a published URL and return findings",
		Category:    CategoryGeneric,
		InputSchema: `{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`,
	},
}

// DefaultSet is the generic tool set declared when no skill resolves
var DefaultSet = []string{"web_fetch", "web_search", "read_record"}

var byName map[string]Spec

func init() {
	byName = make(map[string]Spec, len(catalog))
	for _, s := range catalog {
		byName[s.Name] = s
	}
}

// CategoryOf returns the declared category for a tool name.
// Undeclared names map to CategoryUnknown.
func CategoryOf(name string) Category {
	if s, ok := byName[name]; ok {
		return s.Category
	}
	return CategoryUnknown
}

// Definitions resolves tool names to outbound definitions. Unknown names
// are skipped; a skill may declare a tool this build does not carry.
func Definitions(names []string) []ai.ToolDefinition {
	defs := make([]ai.ToolDefinition, 0, len(names))
	for _, name := range names {
		s, ok := byName[name]
		if !ok {
			continue
		}
		defs = append(defs, ai.ToolDefinition{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: json.RawMessage(s.InputSchema),
		})
	}
	return defs
}

// Names returns all declared tool names
func Names() []string {
	names := make([]string, 0, len(catalog))
	for _, s := range catalog {
		names = append(names, s.Name)
	}
	return names
}

package skills

import (
	"testing"
	"testing/fstest"
)

func TestSkillValidate(t *testing.T) {
	tests := []struct {
		skill   Skill
		wantErr bool
	}{
		{Skill{Name: "test", Description: "Test"}, false},
		{Skill{Name: "", Description: "Test"}, true}, // Missing name
		{Skill{Name: "test", Description: ""}, true}, // Missing description
		{Skill{}, true},                              // Empty
	}

	for _, tt := range tests {
		err := tt.skill.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
		}
	}
}

func TestParseSkillMD(t *testing.T) {
	content := `---
name: landing-page-writer
description: Writes landing pages
version: "2.0.0"
category: content
classifications:
  - landing_page
tools:
  - render_page
  - read_record
---

# Landing Page Writer

Write the page.
`

	skill, err := ParseSkillMD([]byte(content))
	if err != nil {
		t.Fatalf("ParseSkillMD() error = %v", err)
	}

	if skill.Name != "landing-page-writer" {
		t.Errorf("Name = %q, want %q", skill.Name, "landing-page-writer")
	}
	if skill.Category != "content" {
		t.Errorf("Category = %q, want %q", skill.Category, "content")
	}
	if len(skill.Classifications) != 1 || skill.Classifications[0] != "landing_page" {
		t.Errorf("Classifications = %v, want [landing_page]", skill.Classifications)
	}
	if len(skill.Tools) != 2 {
		t.Errorf("Tools = %v, want 2 entries", skill.Tools)
	}
	if skill.Instructions == "" || skill.Instructions[0] != '#' {
		t.Errorf("Instructions should start with markdown heading, got %q", skill.Instructions)
	}
}

func TestParseSkillMDMissingFrontmatter(t *testing.T) {
	if _, err := ParseSkillMD([]byte("# Just markdown\n")); err == nil {
		t.Error("expected error for missing frontmatter")
	}
	if _, err := ParseSkillMD([]byte("---\nname: x\n")); err == nil {
		t.Error("expected error for unclosed frontmatter")
	}
}

func testCatalog() fstest.MapFS {
	mk := func(body string) *fstest.MapFile {
		return &fstest.MapFile{Data: []byte(body)}
	}
	return fstest.MapFS{
		"catalog/blog-writer/SKILL.md": mk(`---
name: blog-writer
description: Writes blog posts
classifications: [blog]
tools: [render_page]
---
Write the post.
`),
		"catalog/guide-writer/SKILL.md": mk(`---
name: guide-writer
description: Writes guides
classifications: [guide]
---
Write the guide.
`),
		"catalog/page-auditor/SKILL.md": mk(`---
name: page-auditor
description: Audits pages
tools: [audit_page]
---
Audit the page.
`),
	}
}

func TestRegistryLoad(t *testing.T) {
	r, err := NewRegistryFromFS(testCatalog())
	if err != nil {
		t.Fatalf("NewRegistryFromFS() error = %v", err)
	}

	if r.Count() != 3 {
		t.Errorf("Count() = %d, want 3", r.Count())
	}

	skill, ok := r.Get("blog-writer")
	if !ok {
		t.Fatal("Get(blog-writer) not found")
	}
	if !skill.Enabled {
		t.Error("loaded skill should default to enabled")
	}
	if skill.Version != "1.0.0" {
		t.Errorf("Version default = %q, want 1.0.0", skill.Version)
	}

	list := r.List()
	if len(list) != 3 || list[0].Name != "blog-writer" {
		t.Errorf("List() order unexpected: %v", list)
	}
}

func TestRegistryDisabledBehavesAsAbsent(t *testing.T) {
	r, err := NewRegistryFromFS(testCatalog())
	if err != nil {
		t.Fatal(err)
	}

	if !r.SetEnabled("guide-writer", false) {
		t.Fatal("SetEnabled returned false for known skill")
	}

	if _, ok := r.Get("guide-writer"); ok {
		t.Error("Get should not return a disabled skill")
	}
	if _, ok := r.ByClassification("guide"); ok {
		t.Error("ByClassification should not match a disabled skill")
	}

	r.SetEnabled("guide-writer", true)
	if _, ok := r.Get("guide-writer"); !ok {
		t.Error("re-enabled skill should resolve again")
	}
}

func TestRegistryHonorsAuthoredDisabled(t *testing.T) {
	catalog := testCatalog()
	catalog["catalog/guide-writer/SKILL.md"] = &fstest.MapFile{Data: []byte(`---
name: guide-writer
description: Writes guides
classifications: [guide]
disabled: true
---
Write the guide.
`)}

	r, err := NewRegistryFromFS(catalog)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Get("guide-writer"); ok {
		t.Error("skill authored with disabled: true must not resolve")
	}
	if _, ok := r.ByClassification("guide"); ok {
		t.Error("disabled skill must not claim its classification")
	}

	// Still in the catalog listing, just off
	found := false
	for _, sk := range r.List() {
		if sk.Name == "guide-writer" {
			found = true
			if sk.Enabled {
				t.Error("listed skill should report disabled")
			}
		}
	}
	if !found {
		t.Error("disabled skill missing from List()")
	}

	// Runtime toggle can still bring it back
	r.SetEnabled("guide-writer", true)
	if _, ok := r.Get("guide-writer"); !ok {
		t.Error("re-enabled skill should resolve")
	}
}

func TestEmbeddedCatalog(t *testing.T) {
	r, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	if r.Count() == 0 {
		t.Fatal("embedded catalog is empty")
	}

	for _, want := range []struct{ classification, skill string }{
		{"landing_page", "landing-page-writer"},
		{"blog", "blog-writer"},
		{"guide", "guide-writer"},
		{"comparison", "comparison-writer"},
	} {
		skill, ok := r.ByClassification(want.classification)
		if !ok {
			t.Errorf("classification %q has no skill", want.classification)
			continue
		}
		if skill.Name != want.skill {
			t.Errorf("classification %q -> %q, want %q", want.classification, skill.Name, want.skill)
		}
	}
}

func TestResolverExplicitWins(t *testing.T) {
	r, err := NewRegistryFromFS(testCatalog())
	if err != nil {
		t.Fatal(err)
	}
	resolver := NewResolver(r)

	// Explicit id wins even when the record classification points elsewhere
	res := resolver.Resolve("blog-writer", []RecordRef{{ID: "p1", Classification: "guide"}})
	if res.Skill == nil || res.Skill.Name != "blog-writer" {
		t.Fatalf("Resolve() = %+v, want blog-writer", res)
	}
	if res.AutoRouted {
		t.Error("explicit selection must not be flagged auto-routed")
	}
}

func TestResolverAutoRoute(t *testing.T) {
	r, err := NewRegistryFromFS(testCatalog())
	if err != nil {
		t.Fatal(err)
	}
	resolver := NewResolver(r)

	res := resolver.Resolve("", []RecordRef{{ID: "p1", Classification: "guide"}})
	if res.Skill == nil || res.Skill.Name != "guide-writer" {
		t.Fatalf("Resolve() = %+v, want guide-writer", res)
	}
	if !res.AutoRouted || res.Classification != "guide" {
		t.Errorf("AutoRouted=%v Classification=%q, want true/guide", res.AutoRouted, res.Classification)
	}
}

func TestResolverAmbiguitySkipsAutoRoute(t *testing.T) {
	r, err := NewRegistryFromFS(testCatalog())
	if err != nil {
		t.Fatal(err)
	}
	resolver := NewResolver(r)

	// Two records: auto-routing is skipped even when both agree
	res := resolver.Resolve("", []RecordRef{
		{ID: "p1", Classification: "guide"},
		{ID: "p2", Classification: "guide"},
	})
	if res.Skill != nil {
		t.Errorf("Resolve() with two records = %+v, want none", res)
	}
}

func TestResolverUnknownAndDisabled(t *testing.T) {
	r, err := NewRegistryFromFS(testCatalog())
	if err != nil {
		t.Fatal(err)
	}
	resolver := NewResolver(r)

	// Unknown explicit id falls through to auto-routing
	res := resolver.Resolve("no-such-skill", []RecordRef{{ID: "p1", Classification: "blog"}})
	if res.Skill == nil || res.Skill.Name != "blog-writer" || !res.AutoRouted {
		t.Fatalf("Resolve() = %+v, want auto-routed blog-writer", res)
	}

	// Disabled explicit id behaves the same as unknown
	r.SetEnabled("guide-writer", false)
	res = resolver.Resolve("guide-writer", nil)
	if res.Skill != nil {
		t.Errorf("Resolve() disabled skill = %+v, want none", res)
	}

	// Unrecognized classification resolves nothing
	res = resolver.Resolve("", []RecordRef{{ID: "p1", Classification: "press_release"}})
	if res.Skill != nil {
		t.Errorf("Resolve() unknown classification = %+v, want none", res)
	}
}

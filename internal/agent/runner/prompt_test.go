package runner

import (
	"strings"
	"testing"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/skills"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/tools"
)

func TestComposePromptNoSkill(t *testing.T) {
	prompt := ComposePrompt(skills.Resolution{})

	if !strings.Contains(prompt, "Workflow Rules") {
		t.Error("global rules missing")
	}
	if strings.Contains(prompt, "Active Profile") {
		t.Error("no routing banner expected without a skill")
	}
}

func TestComposePromptExplicitSkill(t *testing.T) {
	skill := &skills.Skill{
		Name:         "blog-writer",
		Instructions: "# Blog Writer\n\nWrite the post.",
	}

	prompt := ComposePrompt(skills.Resolution{Skill: skill})

	globalIdx := strings.Index(prompt, "Workflow Rules")
	skillIdx := strings.Index(prompt, "# Blog Writer")
	if globalIdx == -1 || skillIdx == -1 {
		t.Fatal("prompt missing a section")
	}
	if globalIdx > skillIdx {
		t.Error("global rules must come before skill instructions")
	}
	if strings.Contains(prompt, "Active Profile") {
		t.Error("explicit selection must not add the routing banner")
	}
}

func TestComposePromptAutoRoutedBanner(t *testing.T) {
	skill := &skills.Skill{
		Name:         "guide-writer",
		Instructions: "# Guide Writer\n\nWrite the guide.",
	}

	prompt := ComposePrompt(skills.Resolution{
		Skill:          skill,
		AutoRouted:     true,
		Classification: "guide",
	})

	if !strings.Contains(prompt, "Active Profile") {
		t.Fatal("routing banner missing")
	}
	if !strings.Contains(prompt, `"guide"`) || !strings.Contains(prompt, `"guide-writer"`) {
		t.Error("banner must name the classification and the skill")
	}
	if bannerIdx, skillIdx := strings.Index(prompt, "Active Profile"), strings.Index(prompt, "# Guide Writer"); bannerIdx < skillIdx {
		t.Error("banner comes after the skill instructions")
	}
}

func TestToolSetForDefaultsWhenNoSkill(t *testing.T) {
	names := ToolSetFor(skills.Resolution{})
	if len(names) != len(tools.DefaultSet) {
		t.Fatalf("got %v, want the default set", names)
	}
	for _, want := range tools.DefaultSet {
		found := false
		for _, got := range names {
			if got == want {
				found = true
			}
		}
		if !found {
			t.Errorf("default tool %q missing", want)
		}
	}
}

func TestToolSetForUnionsSkillTools(t *testing.T) {
	skill := &skills.Skill{
		Name:  "landing-page-writer",
		Tools: []string{"render_page", "web_search"}, // web_search overlaps the default set
	}

	names := ToolSetFor(skills.Resolution{Skill: skill})

	seen := make(map[string]int)
	for _, n := range names {
		seen[n]++
	}
	if seen["render_page"] != 1 {
		t.Error("skill tool render_page missing")
	}
	if seen["web_search"] != 1 {
		t.Errorf("web_search should appear exactly once, got %d", seen["web_search"])
	}
	for _, want := range tools.DefaultSet {
		if seen[want] != 1 {
			t.Errorf("default tool %q missing from union", want)
		}
	}
}

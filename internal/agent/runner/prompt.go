package runner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/skills"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/tools"
)

// sectionGlobalRules is the invariant instruction block. It applies to every
// request regardless of which skill resolves, and always comes first.
const sectionGlobalRules = `You are an autonomous page-generation agent for an SEO content platform. You work on one page project per session.

## Workflow Rules

- Execute every phase of the requested work in one continuous run. Do not stop between phases to ask for confirmation; the request describes everything you need.
- When page content is complete, persist it with the rendering tool. Never paste full page HTML into your reply; reply with a short summary and the persisted location.
- Ground every factual claim in the provided context or in material you fetched this run. If the context does not support a claim, leave it out.
- Attached files and referenced knowledge appear earlier in this conversation. Use them as given; do not re-fetch material you already have.
- If a tool fails, try one reasonable alternative, then report the failure plainly. Never fabricate a tool result.
- Keep replies brief and concrete: what was done, what was produced, what (if anything) is blocked.`

// ComposePrompt builds the system instructions for one request: the global
// rules, then the resolved skill's instructions, then a routing banner when
// the skill was selected from a record classification rather than named by
// the caller.
func ComposePrompt(res skills.Resolution) string {
	parts := []string{sectionGlobalRules}

	if res.Skill != nil {
		parts = append(parts, res.Skill.Instructions)

		if res.AutoRouted {
			parts = append(parts, fmt.Sprintf(
				"## Active Profile\n\nThe referenced record is classified %q, so the %q profile above was selected for this run. Follow that profile's instructions; do not fall back to generic page writing.",
				res.Classification, res.Skill.Name))
		}
	}

	return strings.Join(parts, "\n\n")
}

// ToolSetFor returns the tool names to declare outbound: the default
// generic set plus whatever the resolved skill asks for, deduplicated and
// in stable order.
func ToolSetFor(res skills.Resolution) []string {
	seen := make(map[string]bool)
	var names []string
	add := func(list []string) {
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	add(tools.DefaultSet)
	if res.Skill != nil {
		add(res.Skill.Tools)
	}
	sort.Strings(names)
	return names
}

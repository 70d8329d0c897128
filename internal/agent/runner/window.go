package runner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/session"
)

// ContextItem is one piece of synthetic context (an attached file or a
// referenced knowledge entry) fetched by the caller before the build.
type ContextItem struct {
	Title string
	Body  string
}

// SyntheticContext carries the out-of-band material to prepend ahead of
// conversational history.
type SyntheticContext struct {
	Files     []ContextItem
	Knowledge []ContextItem
}

// BuildWindow produces the final ordered turn list for an outbound request:
// the most recent maxTurns conversational turns, preceded by synthetic
// system turns for attached files and referenced knowledge, in that order.
// Older turns are dropped outright, never summarized.
//
// The result never exceeds maxTurns plus the number of synthetic turns.
// When its serialized size passes warnChars a warning is logged; the
// completion endpoint enforces its own hard limit.
func BuildWindow(turns []session.Turn, maxTurns int, synth SyntheticContext, warnChars int) []session.Turn {
	if maxTurns > 0 && len(turns) > maxTurns {
		dropped := len(turns) - maxTurns
		turns = turns[dropped:]
		logging.Debugf("[Runner] Dropped %d oldest turns, keeping %d", dropped, maxTurns)
	}

	var out []session.Turn
	if turn, ok := syntheticTurn("Attached files", "file", synth.Files); ok {
		out = append(out, turn)
	}
	if turn, ok := syntheticTurn("Referenced knowledge", "knowledge", synth.Knowledge); ok {
		out = append(out, turn)
	}
	out = append(out, turns...)

	if warnChars > 0 {
		if size := serializedSize(out); size > warnChars {
			logging.Warnf("[Runner] Context window is %d chars, over the %d soft ceiling", size, warnChars)
		}
	}
	return out
}

// syntheticTurn renders one group of context items as a single system turn.
// The instructions tell the model the material is already in hand so it
// does not burn tool calls re-fetching it.
func syntheticTurn(heading, kind string, items []ContextItem) (session.Turn, bool) {
	if len(items) == 0 {
		return session.Turn{}, false
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\nThe following %s content is provided below in full. Do not fetch or request it again.\n", heading, kind)
	for _, item := range items {
		fmt.Fprintf(&sb, "\n<%s title=%q>\n%s\n</%s>\n", kind, item.Title, item.Body, kind)
	}

	return session.Turn{
		Role:    session.RoleSystem,
		Content: sb.String(),
	}, true
}

// serializedSize measures the outbound size of the turn list
func serializedSize(turns []session.Turn) int {
	data, err := json.Marshal(turns)
	if err != nil {
		size := 0
		for i := range turns {
			size += len(turns[i].Content) + len(turns[i].ToolCalls) + len(turns[i].ToolResults)
		}
		return size
	}
	return len(data)
}

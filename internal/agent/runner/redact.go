package runner

import (
	"encoding/json"
	"strings"
	"sync/atomic"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/tools"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/config"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/session"
)

// artifactFieldMaxChars is the cutoff separating identity metadata from
// content on artifact-tool results. Fields at or under it (urls, filenames,
// titles, content types) survive; anything larger is already persisted by
// the tool and is stripped outright.
const artifactFieldMaxChars = 256

// markupFieldNames identifies structured-markup fields, which get the
// tighter truncation threshold on generic tool results.
var markupFieldNames = map[string]bool{
	"html":       true,
	"raw_html":   true,
	"outer_html": true,
	"markup":     true,
	"dom":        true,
}

// Redactor shrinks historical tool results before they re-enter the model
// context. Artifact-tool results lose their content fields entirely (the
// content is persisted elsewhere); generic-tool results are truncated at a
// per-field-kind threshold; results from undeclared tools pass through
// untouched. Redaction is idempotent: marked fields are left alone on a
// second pass.
type Redactor struct {
	limits config.LimitsConfig

	bytesRemoved atomic.Int64
}

// NewRedactor creates a redactor with the given size limits
func NewRedactor(limits config.LimitsConfig) *Redactor {
	return &Redactor{limits: limits}
}

// BytesRemoved reports the total bytes stripped so far, across all calls.
// Informational only.
func (r *Redactor) BytesRemoved() int64 {
	return r.bytesRemoved.Load()
}

// RedactTurns returns a copy of turns with every tool result redacted.
// Callers pass historical turns only; the newest turn stays untouched so
// the model sees its latest results in full.
func (r *Redactor) RedactTurns(turns []session.Turn) []session.Turn {
	if len(turns) == 0 {
		return turns
	}

	out := make([]session.Turn, len(turns))
	copy(out, turns)

	removed := 0
	for i := range out {
		if len(out[i].ToolResults) == 0 {
			continue
		}

		var results []session.ToolResult
		if err := json.Unmarshal(out[i].ToolResults, &results); err != nil {
			// Unexpected shape: skip rather than fail the request
			continue
		}

		changed := false
		for j := range results {
			newPayload, n, redone := r.redactPayload(results[j].Name, results[j].Payload)
			if redone {
				results[j].Payload = newPayload
				removed += n
				changed = true
			}
		}

		if changed {
			if data, err := json.Marshal(results); err == nil {
				out[i].ToolResults = data
			}
		}
	}

	if removed > 0 {
		r.bytesRemoved.Add(int64(removed))
		logging.Debugf("[Runner] Redacted %d bytes from tool results (total: %d)", removed, r.bytesRemoved.Load())
	}
	return out
}

// redactPayload redacts one tool result payload, returning the new payload,
// the number of bytes removed, and whether anything changed. A payload that
// is not a JSON object or array is left unchanged, as is any result from a
// tool the catalog does not declare: with no category there is no policy,
// so the payload passes through rather than being guessed at.
func (r *Redactor) redactPayload(toolName string, payload json.RawMessage) (json.RawMessage, int, bool) {
	if len(payload) == 0 {
		return payload, 0, false
	}

	category := tools.CategoryOf(toolName)
	if category == tools.CategoryUnknown {
		logging.Debugf("[Runner] Tool %q not in catalog, leaving its result untouched", toolName)
		return payload, 0, false
	}

	var value any
	if err := json.Unmarshal(payload, &value); err != nil {
		return payload, 0, false
	}

	redacted, changed := r.redactValue(value, category)
	if !changed {
		return payload, 0, false
	}

	out, err := json.Marshal(redacted)
	if err != nil {
		return payload, 0, false
	}
	// Marker fields can outgrow the savings on small payloads; the ceiling
	// still applies, only the counter stays at zero.
	n := len(payload) - len(out)
	if n < 0 {
		n = 0
	}
	return out, n, true
}

// redactValue walks objects and arrays, applying the per-category field
// policy. Arrays are redacted element-wise; each element's oversized
// fields are handled independently of its siblings.
func (r *Redactor) redactValue(value any, category tools.Category) (any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, r.redactObject(v, category)
	case []any:
		changed := false
		for i := range v {
			out, c := r.redactValue(v[i], category)
			v[i] = out
			if c {
				changed = true
			}
		}
		return v, changed
	default:
		return value, false
	}
}

func (r *Redactor) redactObject(obj map[string]any, category tools.Category) bool {
	changed := false
	for key, val := range obj {
		str, isString := val.(string)
		if !isString {
			out, c := r.redactValue(val, category)
			obj[key] = out
			if c {
				changed = true
			}
			continue
		}

		// Already-marked fields stay as they are
		if marked, ok := obj[key+"Removed"].(bool); ok && marked {
			continue
		}
		if marked, ok := obj[key+"Truncated"].(bool); ok && marked {
			continue
		}

		if category == tools.CategoryArtifact {
			// Persisted-elsewhere guarantee: large content goes, small
			// identity metadata stays for later reference.
			if len(str) > artifactFieldMaxChars {
				delete(obj, key)
				obj[key+"Removed"] = true
				changed = true
			}
			continue
		}

		threshold := r.limits.GenericFieldMaxChars
		if markupFieldNames[strings.ToLower(key)] {
			threshold = r.limits.MarkupFieldMaxChars
		}
		if threshold > 0 && len(str) > threshold {
			obj[key] = str[:threshold]
			obj[key+"Truncated"] = true
			changed = true
		}
	}
	return changed
}

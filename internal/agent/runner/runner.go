// Package runner drives one generation run end to end: it shapes the
// context window, resolves the behavioral profile, composes the system
// prompt, streams the completion, and moves the task through its
// lifecycle. One run owns one task; a session runs at most one at a time.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/ai"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/skills"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/task"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/agent/tools"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/config"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/logging"
	"github.com/Joeyzzyy/seopages-pro-sub002/internal/session"
)

// Request describes one generation run
type Request struct {
	SessionKey string
	Prompt     string

	// SkillID names a behavioral profile explicitly. Optional; when empty
	// the resolver may auto-route from the referenced records.
	SkillID string

	// Records are the structured content records the request references
	Records []skills.RecordRef

	// TargetID is the artifact the run works on; empty for site-level work
	TargetID string
	Kind     task.Kind

	// Synthetic context fetched by the caller before the run
	Files     []ContextItem
	Knowledge []ContextItem

	// OnEvent receives stream events as they arrive. Optional.
	OnEvent func(ai.StreamEvent)
}

// Runner executes generation runs
type Runner struct {
	cfg       *config.Config
	sessions  *session.Manager
	tasks     *task.Manager
	resolver  *skills.Resolver
	redactor  *Redactor
	providers []ai.Provider
}

// New creates a runner. Providers are tried in order; the first one whose
// stream opens handles the run.
func New(cfg *config.Config, sessions *session.Manager, tasks *task.Manager, resolver *skills.Resolver, providers []ai.Provider) *Runner {
	return &Runner{
		cfg:       cfg,
		sessions:  sessions,
		tasks:     tasks,
		resolver:  resolver,
		redactor:  NewRedactor(cfg.Limits),
		providers: providers,
	}
}

// Run executes one generation run and returns the completed task result.
// The run fails fast when no provider is configured; every later failure
// lands the task in error with a synthetic explanatory turn.
func (r *Runner) Run(ctx context.Context, req Request) (*task.Result, error) {
	if len(r.providers) == 0 {
		return nil, ai.ErrNotConfigured
	}

	sess, err := r.sessions.GetOrCreate(ctx, req.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}

	t, err := r.tasks.Create(ctx, sess.ID, req.TargetID, req.Kind)
	if err != nil {
		return nil, err
	}
	if err := r.tasks.MarkRunning(ctx, sess.ID, t.ID); err != nil {
		// Rejected dispatch: remove the pending row so it does not linger
		if discardErr := r.tasks.Discard(context.WithoutCancel(ctx), sess.ID, t.ID); discardErr != nil {
			logging.Warnf("[Runner] Failed to discard rejected task %s: %v", t.ID, discardErr)
		}
		return nil, err
	}

	result, err := r.execute(ctx, sess, t, req)
	if err != nil {
		// Failure bookkeeping still has to land when ctx is already cancelled
		if failErr := r.tasks.Fail(context.WithoutCancel(ctx), sess.ID, t.ID, err.Error()); failErr != nil {
			logging.Errorf("[Runner] Failed to record task failure: %v", failErr)
		}
		return nil, err
	}
	return result, nil
}

func (r *Runner) execute(ctx context.Context, sess *session.Session, t *task.Task, req Request) (*task.Result, error) {
	userTurn := session.Turn{
		TaskID:  t.ID,
		Role:    session.RoleUser,
		Content: buildUserContent(req.Prompt, t.Kind),
	}
	if _, err := r.sessions.AppendTurn(ctx, sess.ID, userTurn); err != nil {
		return nil, fmt.Errorf("failed to persist user turn: %w", err)
	}

	history, err := r.sessions.Turns(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load turns: %w", err)
	}

	// Historical turns are redacted; the newest stays full
	if n := len(history); n > 1 {
		redacted := r.redactor.RedactTurns(history[:n-1])
		history = append(redacted, history[n-1])
	}

	window := BuildWindow(history, r.cfg.Limits.MaxTurns, SyntheticContext{
		Files:     req.Files,
		Knowledge: req.Knowledge,
	}, r.cfg.Limits.ContextWarnChars)

	res := r.resolver.Resolve(req.SkillID, req.Records)
	chatReq := &ai.ChatRequest{
		Turns:  window,
		System: ComposePrompt(res),
		Tools:  tools.Definitions(ToolSetFor(res)),
	}

	streamCtx, cancel := context.WithTimeout(ctx, r.cfg.Limits.CompletionTimeout)
	defer cancel()

	assistant, runErr := r.stream(streamCtx, chatReq, req.OnEvent)

	// Whatever the stream produced is kept, error or not: the turn is
	// written in a single insert, so it lands whole or not at all. The
	// write must survive a cancelled request context.
	persistCtx := context.WithoutCancel(ctx)
	assistant.TaskID = t.ID
	if _, persistErr := r.sessions.AppendTurn(persistCtx, sess.ID, assistant); persistErr != nil {
		if runErr == nil {
			runErr = fmt.Errorf("failed to persist assistant turn: %w", persistErr)
		} else {
			logging.Errorf("[Runner] Failed to persist partial assistant turn: %v", persistErr)
		}
	}

	if runErr != nil {
		return nil, runErr
	}

	resultID := task.ResultID(t.ID, assistant.Content+string(assistant.ToolCalls))
	return r.tasks.Complete(persistCtx, sess.ID, t.ID, resultID)
}

// stream opens a completion stream and accumulates it into one assistant
// turn. Providers are tried in order until one opens a stream; events from
// the chosen provider are final, there is no mid-stream failover.
func (r *Runner) stream(ctx context.Context, chatReq *ai.ChatRequest, onEvent func(ai.StreamEvent)) (session.Turn, error) {
	turn := session.Turn{Role: session.RoleAssistant}

	var events <-chan ai.StreamEvent
	var err error
	for _, provider := range r.providers {
		events, err = provider.Stream(ctx, chatReq)
		if err == nil {
			logging.Debugf("[Runner] Streaming via %s", provider.ID())
			break
		}
		logging.Warnf("[Runner] Provider %s unavailable: %v", provider.ID(), err)
	}
	if events == nil {
		return turn, fmt.Errorf("all completion providers failed: %w", err)
	}

	var text strings.Builder
	var calls []session.ToolCall
	finishTurn := func() {
		turn.Content = text.String()
		if len(calls) > 0 {
			if data, err := json.Marshal(calls); err == nil {
				turn.ToolCalls = data
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			finishTurn()
			return turn, fmt.Errorf("generation cancelled: %w", ctx.Err())
		case event, ok := <-events:
			if !ok {
				finishTurn()
				return turn, fmt.Errorf("completion stream closed without a terminal event")
			}
			if onEvent != nil {
				onEvent(event)
			}
			switch event.Type {
			case ai.EventTypeText:
				text.WriteString(event.Text)
			case ai.EventTypeToolCall:
				if event.ToolCall != nil {
					calls = append(calls, session.ToolCall{
						ID:    event.ToolCall.ID,
						Name:  event.ToolCall.Name,
						Input: event.ToolCall.Input,
					})
				}
			case ai.EventTypeError:
				finishTurn()
				return turn, fmt.Errorf("generation stream error: %v", event.Error)
			case ai.EventTypeDone:
				finishTurn()
				return turn, nil
			}
		}
	}
}

// buildUserContent appends the ordered work phases for the task kind to
// the caller's prompt. Phases are instructions the model works through in
// one uninterrupted run; nothing downstream tracks them.
func buildUserContent(prompt string, kind task.Kind) string {
	phases := kind.Phases()
	if len(phases) == 0 {
		return prompt
	}

	var sb strings.Builder
	sb.WriteString(prompt)
	sb.WriteString("\n\nWork through these phases in order, without pausing for confirmation:\n")
	for i, phase := range phases {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, phase)
	}
	return sb.String()
}

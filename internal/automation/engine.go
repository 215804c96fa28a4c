package automation

import (
	"context"
	"fmt"
	"time"
)

// RunContext carries everything a handler needs for one execution.
type RunContext struct {
	// Rule is a private deep copy; handlers may read parameters freely.
	Rule *Rule

	// Now is the instant the run was triggered. Handlers derive windows
	// and ages from it so a run is reproducible in tests.
	Now time.Time

	// Trigger records what asked for the run (api, startup, manual).
	Trigger string
}

// Handler executes one kind of rule.
//
// Implementations must be safe for concurrent use; the engine may run
// several rules at once.
type Handler interface {
	// Kind returns the rule kind this handler serves.
	Kind() Kind

	// Execute runs the rule once and reports what it found and did.
	Execute(ctx context.Context, rc RunContext) (Result, error)
}

// maxRuleExecutionTime is the hard limit for a single rule run. Every
// handler works over the current fleet snapshot, so even a full-fleet
// sweep finishes well inside this window.
const maxRuleExecutionTime = 60 * time.Second

// Engine executes rules on demand.
//
// Handlers are registered per kind; RunRule loads the rule from the
// registry, dispatches to the handler, and records the run outcome in
// the repository and on the rule itself.
//
// Thread Safety: RunRule is safe for concurrent use once registration
// is complete. Register is for wiring during startup only.
type Engine struct {
	registry *Registry
	repo     Repository // For run logging
	handlers map[Kind]Handler
	logger   Logger
	now      func() time.Time
}

// NewEngine creates a rule engine.
func NewEngine(registry *Registry, repo Repository, logger Logger) *Engine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		registry: registry,
		repo:     repo,
		handlers: make(map[Kind]Handler),
		logger:   logger,
		now:      time.Now,
	}
}

// Register installs a handler for its kind. A later registration for
// the same kind replaces the earlier one.
func (e *Engine) Register(h Handler) {
	e.handlers[h.Kind()] = h
}

// RunRule executes a rule once.
//
// It loads the rule, verifies it is enabled, dispatches to the handler
// registered for its kind, and persists a run record with the outcome.
//
// Returns the completed run, or:
//   - ErrRuleNotFound if the rule does not exist
//   - ErrRuleDisabled if the rule is disabled
//   - ErrNoHandler if no handler is registered for the rule's kind
//
// A handler failure is not returned as an error: the run is recorded
// with status failed and returned so callers see the outcome.
func (e *Engine) RunRule(ctx context.Context, ruleID, trigger string) (*RuleRun, error) {
	ctx, cancel := context.WithTimeout(ctx, maxRuleExecutionTime)
	defer cancel()

	rule, err := e.registry.GetRule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, ErrRuleDisabled
	}

	handler, ok := e.handlers[rule.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, rule.Kind)
	}

	now := e.now().UTC()
	run := &RuleRun{
		ID:          GenerateID(),
		RuleID:      ruleID,
		TriggeredAt: now,
		Trigger:     trigger,
		Status:      RunRunning,
	}
	if createErr := e.repo.CreateRun(ctx, run); createErr != nil {
		e.logger.Error("failed to create run record", "error", createErr)
		// Keep going; executing the rule matters more than the log row.
	}

	e.logger.Info("rule run started",
		"rule_id", ruleID,
		"rule_name", rule.Name,
		"kind", rule.Kind,
		"run_id", run.ID,
		"trigger", trigger,
	)

	result, execErr := handler.Execute(ctx, RunContext{
		Rule:    rule,
		Now:     now,
		Trigger: trigger,
	})

	completedAt := e.now().UTC()
	run.CompletedAt = &completedAt
	duration := int(completedAt.Sub(now).Milliseconds())
	run.DurationMS = &duration
	run.Matched = result.Matched
	run.Acted = result.Acted
	run.Message = result.Message

	if execErr != nil {
		run.Status = RunFailed
		msg := execErr.Error()
		run.Error = &msg
	} else {
		run.Status = RunCompleted
	}

	if updateErr := e.repo.UpdateRun(ctx, run); updateErr != nil {
		e.logger.Error("failed to update run record", "error", updateErr)
	}
	e.registry.recordLastRun(ctx, run)

	e.logger.Info("rule run complete",
		"rule_id", ruleID,
		"run_id", run.ID,
		"status", run.Status,
		"matched", run.Matched,
		"acted", run.Acted,
		"duration_ms", duration,
	)

	return run, nil
}

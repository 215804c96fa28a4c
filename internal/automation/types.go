package automation

import "time"

// Rule is a stored fleet automation rule. Rules are persisted in the
// repository and executed on demand; the Schedule field is descriptive
// metadata for external schedulers, nothing in-process ticks.
type Rule struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`

	// Description (optional)
	Description *string `json:"description,omitempty"`

	// Kind selects the handler that executes this rule.
	Kind Kind `json:"kind"`

	// Configuration
	Enabled bool `json:"enabled"`

	// Schedule is a cron expression recorded for operators; it is not
	// evaluated by this service.
	Schedule string `json:"schedule,omitempty"`

	// Parameters are handler-specific knobs (thresholds, windows).
	Parameters map[string]any `json:"parameters,omitempty"`

	// Last execution outcome, denormalised for list views.
	LastRunAt  *time.Time `json:"last_run_at,omitempty"`
	LastResult *string    `json:"last_result,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind identifies the behaviour of a rule.
type Kind string

const (
	KindMaintenanceReminder Kind = "maintenance_reminder"
	KindWarrantyAlert       Kind = "warranty_alert"
	KindOfflineDetection    Kind = "offline_detection"
	KindAgingUpdate         Kind = "aging_update"
	KindUserAssignment      Kind = "user_assignment"
)

// AllKinds returns all valid rule kinds.
func AllKinds() []Kind {
	return []Kind{
		KindMaintenanceReminder,
		KindWarrantyAlert,
		KindOfflineDetection,
		KindAgingUpdate,
		KindUserAssignment,
	}
}

// Result is what a handler reports back after one execution.
type Result struct {
	// Matched is how many devices (or schools) the rule inspected and
	// found relevant.
	Matched int `json:"matched"`

	// Acted is how many of those triggered an action (event published,
	// telemetry written).
	Acted int `json:"acted"`

	// Message is a one-line human summary stored as last_result.
	Message string `json:"message"`
}

// RunStatus represents the state of a rule run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RuleRun records a single execution of a rule.
type RuleRun struct {
	ID          string     `json:"id"`
	RuleID      string     `json:"rule_id"`
	TriggeredAt time.Time  `json:"triggered_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Trigger records what asked for the run (api, startup, manual).
	Trigger string    `json:"trigger"`
	Status  RunStatus `json:"status"`

	Matched int    `json:"matched"`
	Acted   int    `json:"acted"`
	Message string `json:"message,omitempty"`

	// Error holds the handler failure when Status is failed.
	Error *string `json:"error,omitempty"`

	DurationMS *int `json:"duration_ms,omitempty"`
}

// DeepCopy creates a complete independent copy of the Rule.
// The Parameters map is cloned so modifications to the copy do not
// affect the original. This is essential for cache isolation.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}

	cpy := *r
	cpy.Description = cloneStringPtr(r.Description)
	cpy.LastResult = cloneStringPtr(r.LastResult)
	if r.LastRunAt != nil {
		t := *r.LastRunAt
		cpy.LastRunAt = &t
	}
	if r.Parameters != nil {
		cpy.Parameters = deepCopyMap(r.Parameters)
	}
	return &cpy
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	default:
		return v // Primitives are immutable
	}
}

// cloneStringPtr creates an independent copy of a *string.
func cloneStringPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Package rules holds the workflow rule model, the TTL cache that serves the
// ordered list of active rules to the engine, and the admin service that
// mutates rules and invalidates the cache.
package rules

import (
	"sort"

	"github.com/gyaneshwarpardhi/docflow/internal/condition"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
)

// Workflow groups rules for one entity type. Higher Priority runs first.
type Workflow struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EntityType string `json:"entityType"`
	Priority   int    `json:"priority"`
	IsActive   bool   `json:"isActive"`
}

// ActionSpec is one declared action of a rule.
type ActionSpec struct {
	ActionType string                 `json:"actionType"`
	Params     map[string]interface{} `json:"params,omitempty"`
}

// Rule is a trigger plus condition plus ordered actions.
type Rule struct {
	ID           string              `json:"id"`
	WorkflowID   string              `json:"workflowId"`
	Name         string              `json:"name"`
	TriggerEvent string              `json:"triggerEvent"`
	Conditions   condition.Predicate `json:"conditions"`
	Actions      []ActionSpec        `json:"actions"`
	StopOnMatch  bool                `json:"stopOnMatch"`
	SortOrder    int                 `json:"sortOrder"`
	IsActive     bool                `json:"isActive"`
}

// Entry is a rule joined with its workflow, as returned by a Source.
type Entry struct {
	Rule     Rule
	Workflow Workflow
}

// ActiveRule is a cached entry with its condition compiled.
type ActiveRule struct {
	Rule
	Workflow  Workflow
	Condition condition.Expr
}

// Triggers reports whether the rule listens to ev: the trigger must be the
// event type or "*", and the workflow entity type must be the event entity
// type or "*".
func (r *ActiveRule) Triggers(ev event.Event) bool {
	if r.TriggerEvent != event.Wildcard && r.TriggerEvent != ev.Type {
		return false
	}
	return r.Workflow.EntityType == event.Wildcard || r.Workflow.EntityType == ev.EntityType
}

// Matches evaluates the compiled condition against ev.
func (r *ActiveRule) Matches(ev event.Event) (bool, error) {
	return condition.Evaluate(r.Condition, ev)
}

// sortRules orders by workflow priority DESC, then sort order ASC, then rule
// ID so the order is total.
func sortRules(rs []*ActiveRule) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Workflow.Priority != b.Workflow.Priority {
			return a.Workflow.Priority > b.Workflow.Priority
		}
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return a.ID < b.ID
	})
}

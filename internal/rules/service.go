package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/docflow/internal/apperr"
	"github.com/gyaneshwarpardhi/docflow/internal/condition"
	"github.com/gyaneshwarpardhi/docflow/internal/store"
)

// ActionValidator checks an action type and its params at save time.
type ActionValidator interface {
	Validate(actionType string, params map[string]interface{}) error
}

// Invalidator is the cache hook called after every mutation.
type Invalidator interface {
	Invalidate()
}

// Service is the admin surface for workflows and rules. Every successful
// mutation invalidates the cache before returning.
type Service struct {
	db      *store.DB
	cache   Invalidator
	actions ActionValidator
	now     func() time.Time
}

// NewService creates the admin service.
func NewService(db *store.DB, cache Invalidator, actions ActionValidator) *Service {
	return &Service{db: db, cache: cache, actions: actions, now: time.Now}
}

// CreateWorkflow stores a new workflow.
func (s *Service) CreateWorkflow(ctx context.Context, w Workflow) (*Workflow, error) {
	if err := ValidateWorkflow(w); err != nil {
		return nil, err
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	now := s.now().UTC()
	row := &store.Workflow{ID: w.ID, Name: w.Name, EntityType: w.EntityType, Priority: w.Priority,
		IsActive: w.IsActive, CreatedAt: now, UpdatedAt: now}
	if err := s.db.InsertWorkflow(ctx, row); err != nil {
		return nil, err
	}
	s.cache.Invalidate()
	return &w, nil
}

// UpdateWorkflow overwrites a workflow.
func (s *Service) UpdateWorkflow(ctx context.Context, w Workflow) error {
	if err := ValidateWorkflow(w); err != nil {
		return err
	}
	row := &store.Workflow{ID: w.ID, Name: w.Name, EntityType: w.EntityType, Priority: w.Priority,
		IsActive: w.IsActive, UpdatedAt: s.now().UTC()}
	if err := notFound(s.db.UpdateWorkflow(ctx, row), "workflow", w.ID); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

// DeleteWorkflow removes a workflow and its rules.
func (s *Service) DeleteWorkflow(ctx context.Context, id string) error {
	err := s.db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.DeleteWorkflow(ctx, id)
	})
	if err := notFound(err, "workflow", id); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

// CreateRule validates and stores a new rule.
func (s *Service) CreateRule(ctx context.Context, r Rule) (*Rule, error) {
	if err := s.ValidateRule(r); err != nil {
		return nil, err
	}
	if _, err := s.db.GetWorkflow(ctx, r.WorkflowID); err != nil {
		return nil, notFound(err, "workflow", r.WorkflowID)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	row, err := ruleRow(r)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now
	if err := s.db.InsertRule(ctx, row); err != nil {
		return nil, err
	}
	s.cache.Invalidate()
	return &r, nil
}

// UpdateRule validates and overwrites a rule.
func (s *Service) UpdateRule(ctx context.Context, r Rule) error {
	if err := s.ValidateRule(r); err != nil {
		return err
	}
	row, err := ruleRow(r)
	if err != nil {
		return err
	}
	row.UpdatedAt = s.now().UTC()
	if err := notFound(s.db.UpdateRule(ctx, row), "rule", r.ID); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule.
func (s *Service) DeleteRule(ctx context.Context, id string) error {
	if err := notFound(s.db.DeleteRule(ctx, id), "rule", id); err != nil {
		return err
	}
	s.cache.Invalidate()
	return nil
}

// GetRule reads one rule.
func (s *Service) GetRule(ctx context.Context, id string) (*Rule, error) {
	row, err := s.db.GetRule(ctx, id)
	if err != nil {
		return nil, notFound(err, "rule", id)
	}
	return RuleFromRow(*row)
}

// ValidateWorkflow checks required workflow fields.
func ValidateWorkflow(w Workflow) error {
	switch {
	case strings.TrimSpace(w.Name) == "":
		return apperr.Validation("name", "is required")
	case strings.TrimSpace(w.EntityType) == "":
		return apperr.Validation("entityType", "is required")
	}
	return nil
}

// ValidateRule checks the trigger, compiles the conditions and validates
// every action against the registered handlers.
func (s *Service) ValidateRule(r Rule) error {
	if strings.TrimSpace(r.WorkflowID) == "" {
		return apperr.Validation("workflowId", "is required")
	}
	if strings.TrimSpace(r.TriggerEvent) == "" {
		return apperr.Validation("triggerEvent", "is required")
	}
	if _, err := condition.Compile(r.Conditions); err != nil {
		return apperr.Wrap(apperr.ErrValidation, err, "conditions")
	}
	if len(r.Actions) == 0 {
		return apperr.Validation("actions", "at least one action is required")
	}
	for i, a := range r.Actions {
		if err := s.actions.Validate(a.ActionType, a.Params); err != nil {
			return apperr.Wrap(apperr.ErrValidation, err, "actions[%d]", i)
		}
	}
	return nil
}

func ruleRow(r Rule) (*store.RuleRow, error) {
	conds, err := json.Marshal(r.Conditions)
	if err != nil {
		return nil, fmt.Errorf("encode conditions: %w", err)
	}
	actions, err := json.Marshal(r.Actions)
	if err != nil {
		return nil, fmt.Errorf("encode actions: %w", err)
	}
	return &store.RuleRow{
		ID:           r.ID,
		WorkflowID:   r.WorkflowID,
		Name:         r.Name,
		TriggerEvent: r.TriggerEvent,
		Conditions:   string(conds),
		Actions:      string(actions),
		StopOnMatch:  r.StopOnMatch,
		SortOrder:    r.SortOrder,
		IsActive:     r.IsActive,
	}, nil
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(entity, id)
	}
	return err
}

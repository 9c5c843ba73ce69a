// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/autobrr/torboxd/internal/dbinterface"
)

// ConditionType selects which job measurement a rule compares.
type ConditionType string

const (
	ConditionSeedingTime  ConditionType = "seeding_time"
	ConditionSeedingRatio ConditionType = "seeding_ratio"
	ConditionStalledTime  ConditionType = "stalled_time"
)

// ConditionOperator compares the measured value against the threshold.
type ConditionOperator string

const (
	OperatorGreaterThan        ConditionOperator = "gt"
	OperatorLessThan           ConditionOperator = "lt"
	OperatorGreaterThanOrEqual ConditionOperator = "gte"
	OperatorLessThanOrEqual    ConditionOperator = "lte"
	OperatorEqual              ConditionOperator = "eq"
)

// ActionType is what a rule does to each matching job.
type ActionType string

const (
	ActionStopSeeding ActionType = "stop_seeding"
	ActionArchive     ActionType = "archive"
	ActionDelete      ActionType = "delete"
	ActionForceStart  ActionType = "force_start"
)

// RuleTrigger describes when a rule runs. Interval is the only trigger kind.
type RuleTrigger struct {
	Kind    string `json:"kind"`
	Minutes int    `json:"minutes"`
}

// RuleCondition is the single comparison a rule evaluates per job.
type RuleCondition struct {
	Type      ConditionType     `json:"type"`
	Operator  ConditionOperator `json:"operator"`
	Threshold float64           `json:"threshold"`
}

// RuleAction is the remote control action taken for each matching job.
type RuleAction struct {
	Kind ActionType `json:"kind"`
}

// RuleMetadata tracks execution history across restarts. Counts only ever
// increase; lastTriggeredAt advances once per evaluation cycle that matched
// at least one job, lastExecutedAt only on a successful action.
type RuleMetadata struct {
	ExecutionCount  int        `json:"executionCount"`
	LastExecutedAt  *time.Time `json:"lastExecutedAt,omitempty"`
	TriggeredCount  int        `json:"triggeredCount"`
	LastTriggeredAt *time.Time `json:"lastTriggeredAt,omitempty"`
	LastEnabledAt   *time.Time `json:"lastEnabledAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// AutomationRule is one declarative rule evaluated against live job state.
type AutomationRule struct {
	ID        int           `json:"id"`
	Name      string        `json:"name"`
	Enabled   bool          `json:"enabled"`
	Trigger   RuleTrigger   `json:"trigger"`
	Condition RuleCondition `json:"condition"`
	Action    RuleAction    `json:"action"`
	Metadata  RuleMetadata  `json:"metadata"`
}

// Validate rejects rules the engine could not schedule or evaluate.
func (r *AutomationRule) Validate() error {
	if r.Name == "" {
		return errors.New("rule name is required")
	}
	if r.Trigger.Minutes <= 0 {
		return errors.New("trigger interval must be at least one minute")
	}
	switch r.Condition.Type {
	case ConditionSeedingTime, ConditionSeedingRatio, ConditionStalledTime:
	default:
		return fmt.Errorf("unknown condition type %q", r.Condition.Type)
	}
	switch r.Condition.Operator {
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterThanOrEqual, OperatorLessThanOrEqual, OperatorEqual:
	default:
		return fmt.Errorf("unknown condition operator %q", r.Condition.Operator)
	}
	switch r.Action.Kind {
	case ActionStopSeeding, ActionArchive, ActionDelete, ActionForceStart:
	default:
		return fmt.Errorf("unknown action %q", r.Action.Kind)
	}
	return nil
}

// AutomationRuleStore persists rules and notifies listeners on every
// mutation, so the engine can reschedule without polling the table.
type AutomationRuleStore struct {
	db dbinterface.Querier

	listenersMu sync.Mutex
	listeners   []func()
}

func NewAutomationRuleStore(db dbinterface.Querier) *AutomationRuleStore {
	return &AutomationRuleStore{db: db}
}

// OnChange registers a callback invoked after any rule mutation. Callbacks
// run synchronously on the mutating goroutine.
func (s *AutomationRuleStore) OnChange(fn func()) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *AutomationRuleStore) notifyChanged() {
	s.listenersMu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.listenersMu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

const ruleColumns = `id, name, enabled, trigger_minutes, condition_type, condition_operator, condition_threshold,
	action_type, execution_count, last_executed_at, triggered_count, last_triggered_at, last_enabled_at, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*AutomationRule, error) {
	var rule AutomationRule
	var lastExecuted, lastTriggered, lastEnabled sql.NullTime

	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Enabled,
		&rule.Trigger.Minutes,
		&rule.Condition.Type,
		&rule.Condition.Operator,
		&rule.Condition.Threshold,
		&rule.Action.Kind,
		&rule.Metadata.ExecutionCount,
		&lastExecuted,
		&rule.Metadata.TriggeredCount,
		&lastTriggered,
		&lastEnabled,
		&rule.Metadata.CreatedAt,
		&rule.Metadata.UpdatedAt,
	); err != nil {
		return nil, err
	}

	rule.Trigger.Kind = "interval"
	if lastExecuted.Valid {
		rule.Metadata.LastExecutedAt = &lastExecuted.Time
	}
	if lastTriggered.Valid {
		rule.Metadata.LastTriggeredAt = &lastTriggered.Time
	}
	if lastEnabled.Valid {
		rule.Metadata.LastEnabledAt = &lastEnabled.Time
	}

	return &rule, nil
}

func (s *AutomationRuleStore) List(ctx context.Context) ([]*AutomationRule, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*AutomationRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *AutomationRuleStore) Get(ctx context.Context, id int) (*AutomationRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM automation_rules WHERE id = ?`, id)
	return scanRule(row)
}

func (s *AutomationRuleStore) Create(ctx context.Context, rule *AutomationRule) (*AutomationRule, error) {
	if rule == nil {
		return nil, errors.New("rule is nil")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	var lastEnabled sql.NullTime
	if rule.Enabled {
		lastEnabled = sql.NullTime{Time: now, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_rules
			(name, enabled, trigger_minutes, condition_type, condition_operator, condition_threshold, action_type, last_enabled_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rule.Name, rule.Enabled, rule.Trigger.Minutes, rule.Condition.Type, rule.Condition.Operator, rule.Condition.Threshold, rule.Action.Kind, lastEnabled, now, now)
	if err != nil {
		return nil, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}

	created, err := s.Get(ctx, int(id))
	if err != nil {
		return nil, err
	}

	s.notifyChanged()
	return created, nil
}

func (s *AutomationRuleStore) Update(ctx context.Context, rule *AutomationRule) (*AutomationRule, error) {
	if rule == nil {
		return nil, errors.New("rule is nil")
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, rule.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	lastEnabled := existing.Metadata.LastEnabledAt
	if rule.Enabled && !existing.Enabled {
		lastEnabled = &now
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET name = ?, enabled = ?, trigger_minutes = ?, condition_type = ?, condition_operator = ?, condition_threshold = ?, action_type = ?, last_enabled_at = ?, updated_at = ?
		WHERE id = ?
	`, rule.Name, rule.Enabled, rule.Trigger.Minutes, rule.Condition.Type, rule.Condition.Operator, rule.Condition.Threshold, rule.Action.Kind, nullTime(lastEnabled), now, rule.ID)
	if err != nil {
		return nil, err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, sql.ErrNoRows
	}

	updated, err := s.Get(ctx, rule.ID)
	if err != nil {
		return nil, err
	}

	s.notifyChanged()
	return updated, nil
}

func (s *AutomationRuleStore) Delete(ctx context.Context, id int) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM automation_rules WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return sql.ErrNoRows
	}

	s.notifyChanged()
	return nil
}

// RecordTriggered marks one evaluation cycle that matched at least one job.
// The count increments in SQL so it can never go backwards.
func (s *AutomationRuleStore) RecordTriggered(ctx context.Context, id int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET triggered_count = triggered_count + 1, last_triggered_at = ?, updated_at = ?
		WHERE id = ?
	`, at, at, id)
	return err
}

// RecordExecuted marks one successful action against a matching job.
func (s *AutomationRuleStore) RecordExecuted(ctx context.Context, id int, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE automation_rules
		SET execution_count = execution_count + 1, last_executed_at = ?, updated_at = ?
		WHERE id = ?
	`, at, at, id)
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

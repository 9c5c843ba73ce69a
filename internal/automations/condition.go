// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package automations evaluates user-defined rules against the live job
// snapshot on per-rule interval timers and applies their actions through the
// API client.
package automations

import (
	"time"

	"github.com/autobrr/torboxd/internal/models"
)

// measure extracts the value a condition compares for one job. The second
// return is false when the condition does not apply to the job at all, which
// is different from applying with value zero.
func measure(cond models.RuleCondition, job *models.Job, now time.Time) (float64, bool) {
	switch cond.Type {
	case models.ConditionSeedingTime:
		if !job.Active || job.CachedAt.IsZero() {
			return 0, false
		}
		return now.Sub(job.CachedAt).Hours(), true

	case models.ConditionSeedingRatio:
		if !job.Active {
			return 0, false
		}
		return job.Ratio, true

	case models.ConditionStalledTime:
		if !job.Active || !models.IsStalledState(job.DownloadState) || job.UpdatedAt.IsZero() {
			return 0, false
		}
		return now.Sub(job.UpdatedAt).Hours(), true
	}

	return 0, false
}

func compare(op models.ConditionOperator, value, threshold float64) bool {
	switch op {
	case models.OperatorGreaterThan:
		return value > threshold
	case models.OperatorLessThan:
		return value < threshold
	case models.OperatorGreaterThanOrEqual:
		return value >= threshold
	case models.OperatorLessThanOrEqual:
		return value <= threshold
	case models.OperatorEqual:
		return value == threshold
	}
	return false
}

// matchJobs returns the jobs a rule's condition currently selects.
func matchJobs(rule *models.AutomationRule, jobs []models.Job, now time.Time) []models.Job {
	var matched []models.Job
	for i := range jobs {
		value, ok := measure(rule.Condition, &jobs[i], now)
		if !ok {
			continue
		}
		if compare(rule.Condition.Operator, value, rule.Condition.Threshold) {
			matched = append(matched, jobs[i])
		}
	}
	return matched
}

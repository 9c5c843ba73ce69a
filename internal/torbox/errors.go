// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torbox

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes the API returns for failures that will not succeed on retry.
// This closed vocabulary is the permanent-failure classifier used by the
// executor: a payload carrying any of these short-circuits the retry loop.
var nonRetryableErrorCodes = []string{
	"DATABASE_ERROR",
	"NO_AUTH",
	"BAD_TOKEN",
	"AUTH_ERROR",
	"INVALID_OPTION",
	"ENDPOINT_NOT_FOUND",
	"ITEM_NOT_FOUND",
	"PLAN_RESTRICTED_FEATURE",
	"DUPLICATE_ITEM",
	"TOO_MUCH_DATA",
	"DOWNLOAD_TOO_LARGE",
	"MISSING_REQUIRED_OPTION",
	"TOO_MANY_OPTIONS",
	"MONTHLY_LIMIT",
	"COOLDOWN_LIMIT",
	"ACTIVE_LIMIT",
	"DOWNLOAD_SERVER_ERROR",
	"INVALID_DEVICE",
	"DIFF_ISSUE",
	"VENDOR_DISABLED",
}

// PermanentChecker inspects a failed API payload and reports whether the
// failure is permanent (no retry will help).
type PermanentChecker func(*APIResponse) bool

// KnownErrorCode is the default permanent checker: it matches the error or
// detail field against the non-retryable code vocabulary.
func KnownErrorCode(resp *APIResponse) bool {
	if resp == nil {
		return false
	}
	for _, code := range nonRetryableErrorCodes {
		if strings.Contains(resp.Error, code) || strings.Contains(resp.Detail, code) {
			return true
		}
	}
	return false
}

// PermanentError marks a failure the executor must not retry.
type PermanentError struct {
	Response *APIResponse
}

func (e *PermanentError) Error() string {
	if e.Response == nil {
		return "permanent API failure"
	}
	return fmt.Sprintf("permanent API failure: %s", e.Response.failureMessage())
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// apiError is a retryable application-level failure (success=false without a
// known permanent code).
type apiError struct {
	Response *APIResponse
}

func (e *apiError) Error() string {
	if e.Response == nil {
		return "API request failed"
	}
	return fmt.Sprintf("API request failed: %s", e.Response.failureMessage())
}

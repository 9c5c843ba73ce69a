// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avast/retry-go"
)

// APIResponse is the envelope every TorBox endpoint returns.
type APIResponse struct {
	Success     bool            `json:"success"`
	Error       string          `json:"error,omitempty"`
	Detail      string          `json:"detail,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	DownloadURL string          `json:"download_url,omitempty"`
}

func (r *APIResponse) failureMessage() string {
	if r.Error != "" {
		return r.Error
	}
	if r.Detail != "" {
		return r.Detail
	}
	return "unknown error"
}

// ExecuteOptions configures one retried request.
type ExecuteOptions struct {
	MaxRetries        uint
	Delay             time.Duration
	PermanentCheckers []PermanentChecker
}

// DefaultExecuteOptions matches the dashboard defaults: 3 attempts, 2s fixed
// delay, known error codes treated as permanent.
func DefaultExecuteOptions() ExecuteOptions {
	return ExecuteOptions{
		MaxRetries:        3,
		Delay:             2 * time.Second,
		PermanentCheckers: []PermanentChecker{KnownErrorCode},
	}
}

// RequestFunc performs one attempt of an API call. A transport failure is
// returned as an error; an application-level failure comes back as a decoded
// envelope with Success=false.
type RequestFunc func(ctx context.Context) (*APIResponse, error)

// Execute runs fn with bounded retries and a fixed inter-attempt delay.
// A payload matching any permanent checker fails immediately without further
// attempts; everything else retries up to MaxRetries total attempts and
// returns the last error.
func Execute(ctx context.Context, fn RequestFunc, opts ExecuteOptions) (*APIResponse, error) {
	if opts.MaxRetries == 0 {
		opts.MaxRetries = DefaultExecuteOptions().MaxRetries
	}

	var resp *APIResponse
	err := retry.Do(
		func() error {
			r, err := fn(ctx)
			if err != nil {
				return err
			}
			if !r.Success {
				for _, check := range opts.PermanentCheckers {
					if check(r) {
						return &PermanentError{Response: r}
					}
				}
				return &apiError{Response: r}
			}
			resp = r
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(opts.MaxRetries),
		retry.Delay(opts.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !IsPermanent(err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagrams

import (
	"errors"
	"fmt"
	"time"

	"github.com/jeranaias/rigrun-diagrams/timeout"
)

// =============================================================================
// STRUCTURED FAILURES
// =============================================================================

// FailureKind distinguishes why a render attempt failed, so the UI can show
// "still working, taking longer than usual" for timeouts instead of "broken".
type FailureKind string

const (
	// KindTimeout means acquisition or rendering exceeded its deadline.
	KindTimeout FailureKind = "timeout"

	// KindLoadFailure means the rendering engine could not be obtained.
	KindLoadFailure FailureKind = "load-failure"

	// KindRenderFailure means the content is invalid for a loaded engine.
	KindRenderFailure FailureKind = "render-failure"
)

// Failure is the structured error returned to the UI layer. Failures are
// values, not panics: a failed diagram never takes down its siblings.
type Failure struct {
	Kind    FailureKind
	Message string

	// Elapsed is how long the attempt ran before failing. Only set for
	// timeouts.
	Elapsed time.Duration
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// failureFrom wraps err as a Failure of the given kind, upgrading timeout
// errors to KindTimeout with their elapsed time.
func failureFrom(err error, kind FailureKind) *Failure {
	var tf *timeout.Failure
	if errors.As(err, &tf) {
		return &Failure{Kind: KindTimeout, Message: tf.Message, Elapsed: tf.Elapsed}
	}
	return &Failure{Kind: kind, Message: err.Error()}
}

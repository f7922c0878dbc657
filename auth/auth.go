// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package auth models the authorization derived from a connection's
// credentials.
package auth

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/z5labs/conduit"
)

// UnauthorizedMessage is the payload of the forbidden error returned by
// [Authorization.Require].
const UnauthorizedMessage = "Unauthorized"

// Authorization is the result of verifying a connection's credentials.
// The zero value is an absent Authorization.
type Authorization struct {
	Subject   string
	Principal map[string]any

	present bool
}

// Authorized returns a present Authorization for subject.
func Authorized(subject string, principal map[string]any) Authorization {
	return Authorization{
		Subject:   subject,
		Principal: principal,
		present:   true,
	}
}

// Present reports whether credentials were successfully verified.
func (a Authorization) Present() bool {
	return a.present
}

// HasSubject reports whether a subject identifier is known.
func (a Authorization) HasSubject() bool {
	return a.Subject != ""
}

// Require fails with the forbidden error for proto unless a is present.
func (a Authorization) Require(proto conduit.Protocol) error {
	if a.present {
		return nil
	}
	return conduit.ForbiddenFor(proto, UnauthorizedMessage)
}

// Verifier checks an authorization header value. The header is passed
// as received; interpreting its scheme is up to the implementation.
//
// An invalid credential must be reported as an absent Authorization, not
// an error. Errors are reserved for the Verifier failing to do its job.
type Verifier interface {
	Verify(ctx context.Context, header string) (Authorization, error)
}

// VerifierFunc is a functional implementation of [Verifier].
type VerifierFunc func(ctx context.Context, header string) (Authorization, error)

// Verify implements the [Verifier] interface.
func (f VerifierFunc) Verify(ctx context.Context, header string) (Authorization, error) {
	return f(ctx, header)
}

// BearerTokens verifies "Bearer <token>" credentials against a static
// mapping of token to subject.
type BearerTokens map[string]string

// Verify implements the [Verifier] interface.
func (bt BearerTokens) Verify(ctx context.Context, header string) (Authorization, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return Authorization{}, nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Authorization{}, nil
	}

	var (
		subject string
		matched bool
	)
	for known, sub := range bt {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			subject = sub
			matched = true
		}
	}
	if !matched {
		return Authorization{}, nil
	}
	return Authorized(subject, map[string]any{"scheme": "bearer"}), nil
}

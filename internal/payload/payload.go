// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package payload turns received message bytes into decoded and validated
// values, reporting failures with the bad request variant of a protocol.
package payload

import (
	"errors"

	"github.com/z5labs/conduit"
	"github.com/z5labs/conduit/codec"
	"github.com/z5labs/conduit/validate"
)

// ParseFailedMessage is the payload sent for bodies which are not valid JSON.
// The parser's own error is intentionally not included.
const ParseFailedMessage = "Failed to parse JSON"

// Parse decodes b, mapping any codec failure to a bad request.
func Parse(c codec.Codec, proto conduit.Protocol, b []byte) (any, error) {
	v, err := c.Parse(b)
	if err != nil {
		return nil, conduit.BadRequestFor(proto, ParseFailedMessage, conduit.WithCause(err))
	}
	return v, nil
}

// Validate checks raw against target. Structural failures become a bad
// request whose payload is the validator's structured error. Other
// failures are returned unchanged.
func Validate(v validate.Validator, proto conduit.Protocol, raw any, target any) error {
	err := v.Validate(raw, target)
	if err == nil {
		return nil
	}

	var verr *validate.Error
	if errors.As(err, &verr) {
		return conduit.BadRequestFor(proto, verr, conduit.WithCause(verr))
	}
	return err
}

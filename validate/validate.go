// Copyright (c) 2026 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package validate structurally validates decoded payloads against a Go type
// and converts them into that type.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/swaggest/jsonschema-go"
	"github.com/xeipuuv/gojsonschema"
)

// Validator checks that data matches the shape of target and, if so,
// stores the converted value in target. target must be a non-nil pointer.
//
// A structural mismatch is reported as an [*Error]. Any other error means
// the Validator itself could not do its job.
type Validator interface {
	Validate(data any, target any) error
}

// ValidatorFunc is a functional implementation of [Validator].
type ValidatorFunc func(data any, target any) error

// Validate implements the [Validator] interface.
func (f ValidatorFunc) Validate(data any, target any) error {
	return f(data, target)
}

// Checker is implemented by types which carry their own semantic checks.
// It runs after the structural checks have passed.
type Checker interface {
	Validate() error
}

// FieldError describes one structural problem found in a payload.
type FieldError struct {
	Field       string `json:"field"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Error is the structured validation failure. Its JSON encoding is the
// machine readable form sent back to peers.
type Error struct {
	Errors []FieldError `json:"errors"`
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	ss := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		ss[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Description)
	}
	return "validation failed: " + strings.Join(ss, "; ")
}

// InvalidTargetError is returned when the target is not a non-nil pointer.
type InvalidTargetError struct {
	Type reflect.Type
}

// Error implements the [error] interface.
func (e InvalidTargetError) Error() string {
	if e.Type == nil {
		return "validate: target must be a non-nil pointer, got nil"
	}
	return fmt.Sprintf("validate: target must be a non-nil pointer, got %s", e.Type)
}

// SchemaError is returned when a JSON Schema can not be derived for a type.
type SchemaError struct {
	Type  reflect.Type
	Cause error
}

// Error implements the [error] interface.
func (e SchemaError) Error() string {
	return fmt.Sprintf("validate: failed to build schema for %s: %s", e.Type, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e SchemaError) Unwrap() error {
	return e.Cause
}

// Schema reflects the target type into a JSON Schema and validates payloads
// against it. Compiled schemas are cached per type, so one Schema can be
// shared by every connection.
type Schema struct {
	mu        sync.Mutex
	reflector jsonschema.Reflector
	schemas   sync.Map
}

// Default is the [Validator] used when none is configured.
var Default Validator = &Schema{}

// Validate implements the [Validator] interface.
func (s *Schema) Validate(data any, target any) error {
	rv := reflect.ValueOf(target)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return InvalidTargetError{Type: reflect.TypeOf(target)}
	}

	schema, err := s.schemaFor(rv.Type().Elem())
	if err != nil {
		return err
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return &Error{Errors: []FieldError{{
			Field:       "(root)",
			Type:        "invalid_document",
			Description: err.Error(),
		}}}
	}
	if !res.Valid() {
		return fromResult(res)
	}

	err = convert(data, target)
	if err != nil {
		return &Error{Errors: []FieldError{{
			Field:       "(root)",
			Type:        "decode",
			Description: err.Error(),
		}}}
	}

	c, ok := target.(Checker)
	if !ok {
		return nil
	}
	err = c.Validate()
	if err == nil {
		return nil
	}
	var verr *Error
	if errors.As(err, &verr) {
		return verr
	}
	return &Error{Errors: []FieldError{{
		Field:       "(root)",
		Type:        "check",
		Description: err.Error(),
	}}}
}

func (s *Schema) schemaFor(t reflect.Type) (*gojsonschema.Schema, error) {
	if v, ok := s.schemas.Load(t); ok {
		return v.(*gojsonschema.Schema), nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	js, err := s.reflector.Reflect(
		reflect.New(t).Elem().Interface(),
		jsonschema.InlineRefs,
		jsonschema.InterceptNullability(nullablePointers),
	)
	if err != nil {
		return nil, SchemaError{Type: t, Cause: err}
	}
	b, err := json.Marshal(js)
	if err != nil {
		return nil, SchemaError{Type: t, Cause: err}
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(b))
	if err != nil {
		return nil, SchemaError{Type: t, Cause: err}
	}

	v, _ := s.schemas.LoadOrStore(t, schema)
	return v.(*gojsonschema.Schema), nil
}

// nullablePointers accepts null for every pointer field, omitempty or not,
// since a JSON null decodes into a nil pointer.
func nullablePointers(params jsonschema.InterceptNullabilityParams) {
	if params.Type.Kind() != reflect.Pointer || params.NullAdded {
		return
	}

	schema := params.Schema
	switch {
	case schema.Ref != nil:
		ref := *schema
		schema.Ref = nil
		schema.AnyOf = []jsonschema.SchemaOrBool{
			jsonschema.Null.ToSchemaOrBool(),
			ref.ToSchemaOrBool(),
		}
	case schema.Type != nil:
		schema.AddType(jsonschema.Null)
	}
}

func fromResult(res *gojsonschema.Result) *Error {
	errs := res.Errors()
	fes := make([]FieldError, len(errs))
	for i, re := range errs {
		fes[i] = FieldError{
			Field:       re.Field(),
			Type:        re.Type(),
			Description: re.Description(),
		}
	}
	return &Error{Errors: fes}
}

func convert(data any, target any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, target)
}

package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an unknown schema or index name.
	ErrNotFound = errors.New("not found")
	// ErrMissingParameter signals a required request parameter that was not supplied.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrUnknownField signals a parameter that does not name a schema field.
	ErrUnknownField = errors.New("unknown field")
	// ErrInvalidParameter signals a parameter with an unusable value.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrMalformedNumericField signals a raw hit whose score or similarity is not numeric.
	ErrMalformedNumericField = errors.New("malformed numeric field")
	// ErrInvalidDocument signals a document that does not fit its schema.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrInvalidToken signals a missing or rejected authentication token.
	ErrInvalidToken = errors.New("invalid token value")
	// ErrConfig signals an unusable registry configuration.
	ErrConfig = errors.New("config error")
)

// NotFoundError names the kind and value of a failed lookup.
type NotFoundError struct {
	Kind string // "schema" or "index"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("invalid '%s' parameter: %s", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewSchemaNotFound creates a NotFoundError for a schema name.
func NewSchemaNotFound(name string) error {
	return &NotFoundError{Kind: "schema", Name: name}
}

// NewIndexNotFound creates a NotFoundError for an index name.
func NewIndexNotFound(name string) error {
	return &NotFoundError{Kind: "index", Name: name}
}

// MissingParameterError names a required parameter absent from a request.
type MissingParameterError struct {
	Name string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing '%s' parameter", e.Name)
}

func (e *MissingParameterError) Unwrap() error { return ErrMissingParameter }

// MissingParameter creates a MissingParameterError.
func MissingParameter(name string) error {
	return &MissingParameterError{Name: name}
}

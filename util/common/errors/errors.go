package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("resource not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ValidationError reports a configuration or input field that failed a
// check. It matches ErrInvalidArgument.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Kind names the subsystem an OpError came from.
type Kind string

const (
	KindFile Kind = "file"
	KindVCS  Kind = "vcs"
)

// OpError records an operation that failed on a path, such as reading an
// extension file or resolving a git ref.
type OpError struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *OpError) Error() string {
	msg := fmt.Sprintf("%s %s %s", e.Kind, e.Op, e.Path)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *OpError) Unwrap() error {
	return e.Err
}

func NewFileError(path, op string, err error) error {
	return &OpError{Kind: KindFile, Op: op, Path: path, Err: err}
}

func NewVCSError(op, path string, err error) error {
	return &OpError{Kind: KindVCS, Op: op, Path: path, Err: err}
}

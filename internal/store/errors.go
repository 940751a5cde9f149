package store

import (
	"fmt"
)

type ErrorType int

const (
	ErrTypeNotFound ErrorType = iota
	ErrTypeRegistry
	ErrTypeFilesystem
	ErrTypeRelocation
)

type StoreError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Is(target error) bool {
	if t, ok := target.(*StoreError); ok {
		return e.Type == t.Type
	}
	return false
}

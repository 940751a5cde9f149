package gitcache

import (
	"fmt"
)

type ErrorType int

const (
	ErrTypeInvalidRef ErrorType = iota
	ErrTypeFetch
	ErrTypeFilesystem
)

type CacheError struct {
	Type    ErrorType
	Message string
	Ref     string
	Err     error
}

func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func (e *CacheError) Is(target error) bool {
	if t, ok := target.(*CacheError); ok {
		return e.Type == t.Type
	}
	return false
}

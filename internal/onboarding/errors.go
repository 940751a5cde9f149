package onboarding

import (
	"fmt"
)

type ErrorType int

const (
	ErrTypeScan ErrorType = iota
	ErrTypeImport
	ErrTypeCancelled
)

type OnboardingError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *OnboardingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *OnboardingError) Unwrap() error {
	return e.Err
}

func (e *OnboardingError) Is(target error) bool {
	if t, ok := target.(*OnboardingError); ok {
		return e.Type == t.Type
	}
	return false
}

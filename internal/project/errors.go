package project

import "errors"

var (
	ErrNotFound           = errors.New("project: not found")
	ErrInvalidInput       = errors.New("project: invalid input")
	ErrInvalidTransition  = errors.New("project: invalid phase transition")
	ErrPreconditionFailed = errors.New("project: phase precondition failed")
)

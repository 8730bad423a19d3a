package model

import "errors"

// Sentinel errors shared by stores and the domain.
var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already present in talent directory")
)

package service

import "errors"

// ErrInvalidFilter is returned for an unknown application status filter.
var ErrInvalidFilter = errors.New("invalid application filter")

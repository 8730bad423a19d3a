package repository

import (
	"errors"

	"github.com/okian/talentsync/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound       = model.ErrNotFound
	ErrDuplicateEmail = model.ErrDuplicateEmail
	ErrDuplicateID    = errors.New("record id already exists")
	ErrInvalidStatus  = errors.New("invalid sync status")
	ErrUnknownDriver  = errors.New("unknown store driver")
	ErrClosed         = errors.New("store closed")
)

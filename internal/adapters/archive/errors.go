package archive

import "errors"

var (
	ErrNoBucket = errors.New("archive bucket not configured")
	ErrUpload   = errors.New("archive upload failed")
)

package authz

import "errors"

// Gate outcomes. The HTTP layer maps them to 401, 403 and 500.
var (
	ErrUnauthorized          = errors.New("unauthorized")
	ErrPermissionDenied      = errors.New("permission denied")
	ErrPermissionCheckFailed = errors.New("permission check failed")
)

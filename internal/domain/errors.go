package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
	ErrRateLimited     = errors.New("rate limited")
	ErrProviderDown    = errors.New("provider unavailable")
)

package registry

import "errors"

var (
	ErrNotFound     = errors.New("registry: not found")
	ErrConflict     = errors.New("registry: already exists")
	ErrInvalidInput = errors.New("registry: invalid input")
	ErrUnavailable  = errors.New("registry: store unavailable")
)

package definition

import "errors"

var (
	ErrInvalidDefinition = errors.New("invalid machine definition")
	ErrDecode            = errors.New("failed to decode machine definition")
	ErrRead              = errors.New("failed to read machine definition")
)

package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrDuplicateAccount   = errors.New("auth: username already exists")
	ErrTokenMalformed     = errors.New("auth: token malformed")
	ErrTokenExpired       = errors.New("auth: token expired")
	ErrNotFound           = errors.New("auth: not found")
	ErrAlreadyExists      = errors.New("auth: already exists")
	ErrRoleInUse          = errors.New("auth: role is held by at least one user")
	ErrInvalidInput       = errors.New("auth: invalid input")
)

package auth

import (
	"errors"

	"github.com/kaitanna/kaitanna-backend/pkg/utils"
)

var (
	ErrInvalidCredentials = errors.New("invalid username/email or password")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrUnauthenticated    = errors.New("authentication required")
	ErrUserNotFound       = errors.New("user not found")
)

// ValidationError reports a rejected signup or profile field.
type ValidationError = utils.ValidationError

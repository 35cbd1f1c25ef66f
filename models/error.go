package models

import (
	"errors"
)

// custom error types (generic types found in apperror package)

// user
var (
	ErrUserNameNotAvailable = errors.New("user name is not available")
	ErrEMailAddressTaken    = errors.New("email-address is already used")
	ErrInvalidUser          = errors.New("invalid user name or password")
	ErrInvalidPassword      = errors.New("password does not meet rules")
)

// voting
var (
	ErrEntityKindInvalid = errors.New("unknown votable kind")
	ErrVoteTypeInvalid   = errors.New("vote must be support or opposition")
	ErrEntityNotFound    = errors.New("votable entity not found")
	ErrNotApproved       = errors.New("entity has not been approved for voting")
)

// protest / boycott
// transformed by controllers to respective Unprocessable Entity (422)
var (
	ErrTitleMissing  = errors.New("title is required")
	ErrTargetMissing = errors.New("boycott target is required")
)

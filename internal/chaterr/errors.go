// Package chaterr holds the sentinel errors shared by the relay packages.
// Callers branch on them with errors.Is.
package chaterr

import (
	"errors"
	"fmt"
)

var (
	ErrAuthFailure          = errors.New("authentication failed")
	ErrInvalidCredentials   = fmt.Errorf("%w: invalid username or password", ErrAuthFailure)
	ErrAlreadyLoggedIn      = fmt.Errorf("%w: user already logged in", ErrAuthFailure)
	ErrConnectionRegistered = fmt.Errorf("%w: connection already bound to a session", ErrAuthFailure)

	ErrNotFound        = errors.New("not found")
	ErrUserNotFound    = fmt.Errorf("user %w", ErrNotFound)
	ErrSessionNotFound = fmt.Errorf("session %w", ErrNotFound)
	ErrNoSuchGroup     = fmt.Errorf("group %w", ErrNotFound)

	ErrNotMember     = errors.New("not a member of group")
	ErrAlreadyExists = errors.New("group already exists")

	ErrTransport = errors.New("transport error")

	ErrInvalidCommand   = errors.New("invalid command")
	ErrInvalidGroupName = errors.New("invalid group name")
)

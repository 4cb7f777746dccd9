// Package auth holds the collaborator contracts the gateway authenticates
// against. Token issuance and user records live in external services; the
// realtime core only verifies and resolves.
package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrTokenInvalid = errors.New("token verification failed")
	ErrUserNotFound = errors.New("user not found")
)

// Identity is the result of a successful token verification.
type Identity struct {
	Subject string
	Expiry  time.Time
}

type Verifier interface {
	Verify(token string) (Identity, error)
}

// UserRecord is the directory's view of a logical user.
type UserRecord struct {
	ID          string
	DisplayName string
	Role        string
}

type UserDirectory interface {
	ResolveUser(ctx context.Context, subject string) (UserRecord, error)
}

// DirectoryFunc adapts a function to the UserDirectory interface.
type DirectoryFunc func(ctx context.Context, subject string) (UserRecord, error)

func (f DirectoryFunc) ResolveUser(ctx context.Context, subject string) (UserRecord, error) {
	return f(ctx, subject)
}

// PassthroughDirectory accepts any verified subject as-is. Deployments wire a
// real directory client instead.
func PassthroughDirectory() UserDirectory {
	return DirectoryFunc(func(_ context.Context, subject string) (UserRecord, error) {
		if subject == "" {
			return UserRecord{}, ErrUserNotFound
		}
		return UserRecord{ID: subject}, nil
	})
}

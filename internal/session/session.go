// Package session implements the browser session state machine.
//
// A session starts unauthenticated and becomes authenticated once the user
// logs in. Authenticating always creates a new session so the id a browser
// held before logging in can't be used to hijack the authenticated one.
// No operation moves an authenticated session back to unauthenticated, a
// logout removes it instead.
package session

import (
	"errors"
	"log/slog"
	"maps"

	"github.com/google/uuid"
	"github.com/luikyv/go-authority/internal/oidc"
	"github.com/luikyv/go-authority/pkg/goidc"
)

// Start creates an unauthenticated session for a browser's first contact.
// The user is optional.
func Start(ctx oidc.Context, userDN string, attrs map[string]string) (*goidc.Session, error) {
	now := ctx.TimestampNow()
	s := &goidc.Session{
		ID:                  uuid.NewString(),
		State:               goidc.SessionStateUnauthenticated,
		UserDN:              userDN,
		CreatedAtTimestamp:  now,
		LastUsedAtTimestamp: now,
		Deletable:           true,
		Attributes:          maps.Clone(attrs),
	}
	s.ExpiresAtTimestamp = expiresAt(ctx, s, now)

	if err := ctx.SaveSession(s); err != nil {
		return nil, goidc.StoreError("could not save the session", err)
	}

	ctx.Logger.Debug("session started", slog.String("session_id", s.ID))
	return s, nil
}

// Authenticate creates an authenticated session for the user. When the
// browser held a previous session, its attributes are carried over and, if
// it belonged to the same user, so are its consents. The previous session
// is removed.
func Authenticate(ctx oidc.Context, previousID, userDN string) (*goidc.Session, error) {
	if userDN == "" {
		return nil, goidc.NewError(goidc.ErrorCodeInvalidRequest, "the user is required to authenticate a session")
	}

	now := ctx.TimestampNow()
	s := &goidc.Session{
		ID:                  uuid.NewString(),
		State:               goidc.SessionStateAuthenticated,
		UserDN:              userDN,
		CreatedAtTimestamp:  now,
		LastUsedAtTimestamp: now,
		AuthTimestamp:       now,
		Deletable:           true,
	}

	var previous *goidc.Session
	if previousID != "" {
		var err error
		previous, err = active(ctx, previousID)
		if err != nil && !errors.Is(err, goidc.ErrNotFound) {
			return nil, err
		}
	}

	if previous != nil {
		s.Attributes = maps.Clone(previous.Attributes)
		if previous.UserDN == "" || previous.UserDN == userDN {
			s.Permissions = maps.Clone(previous.Permissions)
		}
	}
	s.ExpiresAtTimestamp = expiresAt(ctx, s, now)

	if err := ctx.SaveSession(s); err != nil {
		return nil, goidc.StoreError("could not save the session", err)
	}

	if previousID != "" {
		if err := ctx.DeleteSession(previousID); err != nil {
			// The previous session expires on its own.
			ctx.Logger.Warn("could not remove the previous session", slog.String("session_id", previousID),
				slog.String("error", err.Error()))
		}
	}

	ctx.Logger.Debug("session authenticated", slog.String("session_id", s.ID))
	return s, nil
}

// Session returns the session if it exists and didn't expire.
func Session(ctx oidc.Context, id string) (*goidc.Session, error) {
	return active(ctx, id)
}

// Touch records the session was used now. The idle expiration slides
// forward but never past the maximum lifetime.
func Touch(ctx oidc.Context, id string) (*goidc.Session, error) {
	return update(ctx, id, func(*goidc.Session) {})
}

func SetAttribute(ctx oidc.Context, id, key, value string) (*goidc.Session, error) {
	return update(ctx, id, func(s *goidc.Session) {
		if s.Attributes == nil {
			s.Attributes = make(map[string]string)
		}
		s.Attributes[key] = value
	})
}

// AddPermission records the consent decision of the user for the client so
// the consent screen can be skipped on later visits. The state of the
// session doesn't change.
func AddPermission(ctx oidc.Context, id, clientID string, granted bool) (*goidc.Session, error) {
	return update(ctx, id, func(s *goidc.Session) {
		if s.Permissions == nil {
			s.Permissions = make(map[string]bool)
		}
		s.Permissions[clientID] = granted
	})
}

func HasPermission(ctx oidc.Context, id, clientID string) (bool, error) {
	s, err := active(ctx, id)
	if err != nil {
		return false, err
	}
	return s.HasPermission(clientID), nil
}

// Remove ends the session. Removing a session that doesn't exist succeeds.
func Remove(ctx oidc.Context, id string) error {
	if err := ctx.DeleteSession(id); err != nil {
		return goidc.StoreError("could not remove the session", err)
	}

	ctx.Logger.Debug("session removed", slog.String("session_id", id))
	return nil
}

// update loads the session, applies fn, touches it and saves it. The
// stored session's state is never changed here.
func update(ctx oidc.Context, id string, fn func(*goidc.Session)) (*goidc.Session, error) {
	s, err := active(ctx, id)
	if err != nil {
		return nil, err
	}

	state := s.State
	fn(s)
	s.State = state

	now := ctx.TimestampNow()
	s.LastUsedAtTimestamp = now
	s.ExpiresAtTimestamp = expiresAt(ctx, s, now)

	if err := ctx.SaveSession(s); err != nil {
		return nil, goidc.StoreError("could not save the session", err)
	}
	return s, nil
}

func active(ctx oidc.Context, id string) (*goidc.Session, error) {
	s, err := ctx.Session(id)
	if err != nil {
		if errors.Is(err, goidc.ErrNotFound) {
			return nil, err
		}
		return nil, goidc.StoreError("could not load the session", err)
	}

	if s.IsExpired(ctx.TimestampNow()) {
		return nil, goidc.ErrNotFound
	}

	return s, nil
}

// expiresAt returns the expiration of a session used at now. Authenticated
// sessions live for the idle lifetime after their last use, capped by the
// maximum lifetime counted from their creation.
func expiresAt(ctx oidc.Context, s *goidc.Session, now int) int {
	if !s.IsAuthenticated() {
		if ctx.UnauthenticatedSessionSecs == 0 {
			return 0
		}
		return now + ctx.UnauthenticatedSessionSecs
	}

	exp := 0
	if ctx.SessionIdleLifetimeSecs != 0 {
		exp = now + ctx.SessionIdleLifetimeSecs
	}

	if ctx.SessionMaxLifetimeSecs != 0 {
		maxExp := s.CreatedAtTimestamp + ctx.SessionMaxLifetimeSecs
		if exp == 0 || maxExp < exp {
			exp = maxExp
		}
	}

	return exp
}

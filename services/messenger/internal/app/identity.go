package app

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"messenger/internal/util"
	"messenger/pkg/auth"
	"messenger/pkg/domain"
	"messenger/pkg/store"
)

const (
	maxDisplayNameRunes = 64
	maxStatusRunes      = 140
	maxSearchResults    = 20
)

var handlePattern = regexp.MustCompile(`^[a-z0-9_.]{3,32}$`)

// ProfileUpdate carries the profile fields to change; nil fields stay as they are.
type ProfileUpdate struct {
	DisplayName       *string
	StatusText        *string
	AvatarRef         *string
	Handle            *string
	AllowGroupInvites *bool
}

// NormalizeHandle lower-cases and trims a handle.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

func validateHandle(handle string) error {
	if !handlePattern.MatchString(handle) {
		return validationf("username must be 3-32 characters of a-z, 0-9, '_' or '.'")
	}
	return nil
}

func normalizeDisplayName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", validationf("name is required")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameRunes {
		return "", validationf("name must be at most %d characters", maxDisplayNameRunes)
	}
	return name, nil
}

func (a *App) validateRef(field, ref string) error {
	if ref == "" {
		return nil
	}
	if _, ok := a.uploads.KeyFromURL(ref); !ok {
		return validationf("%s must reference an uploaded file", field)
	}
	return nil
}

// Register creates an identity and issues its first credential token.
func (a *App) Register(ctx context.Context, name, handle, password string) (domain.Identity, string, error) {
	displayName, err := normalizeDisplayName(name)
	if err != nil {
		return domain.Identity{}, "", err
	}
	handle = NormalizeHandle(handle)
	if err := validateHandle(handle); err != nil {
		return domain.Identity{}, "", err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return domain.Identity{}, "", validationf("password %s", strings.TrimPrefix(err.Error(), auth.ErrWeakPassword.Error()+": "))
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.Identity{}, "", storageErr("hash password", err)
	}
	now := a.timestamp()
	identity := domain.Identity{
		ID:                util.NewOrderedID(),
		Handle:            handle,
		DisplayName:       displayName,
		AllowGroupInvites: true,
		PasswordHash:      passwordHash,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := a.store.CreateIdentity(ctx, identity); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return domain.Identity{}, "", ErrHandleTaken
		}
		return domain.Identity{}, "", storageErr("create identity", err)
	}
	token, err := a.sessions.NewSession(identity.ID, identity.Handle, identity.HandleVersion)
	if err != nil {
		return domain.Identity{}, "", storageErr("issue token", err)
	}
	util.LoggerFromContext(ctx).Info("identity registered", "user_id", identity.ID)
	return identity, token, nil
}

// Login verifies a handle and password and issues a credential token.
func (a *App) Login(ctx context.Context, handle, password string) (domain.Identity, string, error) {
	handle = NormalizeHandle(handle)
	if handle == "" || password == "" {
		return domain.Identity{}, "", validationf("username and password required")
	}
	identity, ok, err := a.store.GetIdentityByHandle(ctx, handle)
	if err != nil {
		return domain.Identity{}, "", storageErr("fetch identity", err)
	}
	if !ok || !auth.CheckPassword(password, identity.PasswordHash) {
		return domain.Identity{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(identity.ID, identity.Handle, identity.HandleVersion)
	if err != nil {
		return domain.Identity{}, "", storageErr("issue token", err)
	}
	return identity, token, nil
}

// Logout revokes the presented token.
func (a *App) Logout(ctx context.Context, token string) error {
	if err := a.sessions.DeleteSession(ctx, token); err != nil {
		return storageErr("revoke token", err)
	}
	return nil
}

// Authenticate resolves a credential token to its identity. Tokens issued
// before the identity's latest handle change are rejected, even when the
// handle has since been changed back.
func (a *App) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Identity{}, unauthenticated("missing token")
	}
	session, err := a.sessions.ParseSession(ctx, token)
	if err != nil {
		if errors.Is(err, store.ErrInvalidToken) || errors.Is(err, store.ErrTokenRevoked) {
			return domain.Identity{}, unauthenticated("invalid token")
		}
		return domain.Identity{}, storageErr("verify token", err)
	}
	identity, ok, err := a.store.GetIdentityByID(ctx, session.UserID)
	if err != nil {
		return domain.Identity{}, storageErr("fetch identity", err)
	}
	if !ok {
		return domain.Identity{}, unauthenticated("invalid token")
	}
	if identity.Handle != session.Handle || identity.HandleVersion != session.HandleVersion {
		return domain.Identity{}, unauthenticated("token was issued for a previous username, please sign in again")
	}
	return identity, nil
}

// GetIdentity returns the identity with the given id.
func (a *App) GetIdentity(ctx context.Context, id string) (domain.Identity, error) {
	identity, ok, err := a.store.GetIdentityByID(ctx, id)
	if err != nil {
		return domain.Identity{}, storageErr("fetch identity", err)
	}
	if !ok {
		return domain.Identity{}, ErrUserNotFound
	}
	return identity, nil
}

// UpdateProfile applies update to the identity. When the handle changes a
// fresh token is returned; otherwise the returned token is empty.
func (a *App) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (domain.Identity, string, error) {
	identity, err := a.GetIdentity(ctx, userID)
	if err != nil {
		return domain.Identity{}, "", err
	}
	if update.DisplayName != nil {
		name, err := normalizeDisplayName(*update.DisplayName)
		if err != nil {
			return domain.Identity{}, "", err
		}
		identity.DisplayName = name
	}
	if update.StatusText != nil {
		status := strings.TrimSpace(*update.StatusText)
		if utf8.RuneCountInString(status) > maxStatusRunes {
			return domain.Identity{}, "", validationf("status must be at most %d characters", maxStatusRunes)
		}
		identity.StatusText = status
	}
	if update.AvatarRef != nil {
		avatar := strings.TrimSpace(*update.AvatarRef)
		if err := a.validateRef("avatar", avatar); err != nil {
			return domain.Identity{}, "", err
		}
		identity.AvatarRef = avatar
	}
	if update.AllowGroupInvites != nil {
		identity.AllowGroupInvites = *update.AllowGroupInvites
	}
	handleChanged := false
	if update.Handle != nil {
		handle := NormalizeHandle(*update.Handle)
		if handle != identity.Handle {
			if err := validateHandle(handle); err != nil {
				return domain.Identity{}, "", err
			}
			identity.Handle = handle
			identity.HandleVersion++
			handleChanged = true
		}
	}
	identity.UpdatedAt = a.timestamp()
	if err := a.store.UpdateIdentity(ctx, identity); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return domain.Identity{}, "", ErrHandleTaken
		case errors.Is(err, store.ErrNotFound):
			return domain.Identity{}, "", ErrUserNotFound
		}
		return domain.Identity{}, "", storageErr("update identity", err)
	}
	if !handleChanged {
		return identity, "", nil
	}
	token, err := a.sessions.NewSession(identity.ID, identity.Handle, identity.HandleVersion)
	if err != nil {
		return domain.Identity{}, "", storageErr("issue token", err)
	}
	util.LoggerFromContext(ctx).Info("handle changed", "user_id", identity.ID)
	return identity, token, nil
}

// SearchUsers finds identities by handle or display name prefix, excluding the caller.
func (a *App) SearchUsers(ctx context.Context, userID, query string) ([]domain.Identity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.Identity{}, nil
	}
	res, err := a.store.SearchIdentities(ctx, strings.TrimPrefix(query, "@"), userID, maxSearchResults)
	if err != nil {
		return nil, storageErr("search identities", err)
	}
	return res, nil
}

// GetPreferences returns the caller's opaque preference blob, `{}` when unset.
func (a *App) GetPreferences(ctx context.Context, userID string) (json.RawMessage, error) {
	blob, ok, err := a.store.GetPreferences(ctx, userID)
	if err != nil {
		return nil, storageErr("fetch preferences", err)
	}
	if !ok {
		return nil, ErrUserNotFound
	}
	if len(blob) == 0 {
		return json.RawMessage("{}"), nil
	}
	return blob, nil
}

// PutPreferences replaces the caller's preference blob. Only well-formed JSON is accepted.
func (a *App) PutPreferences(ctx context.Context, userID string, blob json.RawMessage) error {
	if len(blob) == 0 || !json.Valid(blob) {
		return validationf("settings must be valid JSON")
	}
	if err := a.store.PutPreferences(ctx, userID, blob); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return storageErr("store preferences", err)
	}
	return nil
}

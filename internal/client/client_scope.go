package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/openmined/appsync/internal/client/manifest"
	"github.com/openmined/appsync/internal/snapi"
)

var ErrScopeMismatch = errors.New("session scope does not match the manifest scope")

// ScopeError reports a session in a different application than the manifest.
type ScopeError struct {
	Session  string
	Manifest string
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("%s: session is in %q, manifest is for %q", ErrScopeMismatch, e.Session, e.Manifest)
}

func (e *ScopeError) Unwrap() error {
	return ErrScopeMismatch
}

// CheckScope verifies that the user's session is in the manifest's application. With swap
// set a mismatched session is moved to the manifest's application first. Without a manifest
// there is nothing to check.
func (c *Client) CheckScope(ctx context.Context, swap bool) error {
	m, err := c.manifest.Current()
	if errors.Is(err, manifest.ErrNoManifestLoaded) {
		return nil
	} else if err != nil {
		return err
	}

	session, err := snapi.CurrentScope(ctx, c.remote, c.user)
	if err != nil {
		return fmt.Errorf("failed to read session scope: %w", err)
	}
	if session.Scope == m.Scope {
		return nil
	}
	if !swap {
		return &ScopeError{Session: session.Scope, Manifest: m.Scope}
	}

	slog.Info("switching session scope", "from", session.Scope, "to", m.Scope)
	if err := c.switchScope(ctx, m.Scope); err != nil {
		return fmt.Errorf("failed to switch scope: %w", err)
	}

	session, err = snapi.CurrentScope(ctx, c.remote, c.user)
	if err != nil {
		return fmt.Errorf("failed to read session scope: %w", err)
	}
	if session.Scope != m.Scope {
		return &ScopeError{Session: session.Scope, Manifest: m.Scope}
	}
	return nil
}

func (c *Client) switchScope(ctx context.Context, scope string) error {
	app, err := snapi.AppByScope(ctx, c.remote, scope)
	if err != nil {
		return err
	}
	userID, err := snapi.UserSysID(ctx, c.remote, c.user)
	if err != nil {
		return err
	}
	return snapi.SwitchApp(ctx, c.remote, userID, app.SysID)
}

// CreateUpdateSet creates an update set in the session's application and makes it the
// user's current one. It returns the new update set's sys_id.
func (c *Client) CreateUpdateSet(ctx context.Context, name string) (string, error) {
	session, err := snapi.CurrentScope(ctx, c.remote, c.user)
	if err != nil {
		return "", fmt.Errorf("failed to read session scope: %w", err)
	}

	id, err := snapi.CreateUpdateSet(ctx, c.remote, name, session.SysID)
	if err != nil {
		return "", fmt.Errorf("failed to create update set: %w", err)
	}

	userID, err := snapi.UserSysID(ctx, c.remote, c.user)
	if err != nil {
		return "", err
	}
	if err := snapi.AssignUpdateSet(ctx, c.remote, userID, id); err != nil {
		return "", fmt.Errorf("failed to assign update set: %w", err)
	}

	slog.Info("update set created", "name", name, "sysId", id)
	return id, nil
}

package services

import (
	"context"

	"github.com/ruralpay/ledger/internal/apperrors"
)

type callerKey struct{}

// Caller is the authenticated principal of a request.
type Caller struct {
	TenantID string
	Subject  string
}

// WithCaller attaches the authenticated caller to ctx.
func WithCaller(ctx context.Context, caller Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func CallerFrom(ctx context.Context) (Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(Caller)
	return caller, ok && caller.TenantID != ""
}

// ScopeTenant returns the tenant an operation must run under. requested is
// the tenant a client named explicitly, if any; it must be the caller's own.
func ScopeTenant(ctx context.Context, requested string) (string, error) {
	caller, ok := CallerFrom(ctx)
	if !ok {
		return "", apperrors.ErrUnauthenticated
	}
	if requested != "" && requested != caller.TenantID {
		return "", apperrors.New(apperrors.KindForbidden, "cannot act on behalf of tenant %s", requested)
	}
	return caller.TenantID, nil
}

// AuthorizeTenant refuses access to a row owned by another tenant. The row
// exists, so this is ForbiddenCrossTenant and never NotFound.
func AuthorizeTenant(callerTenant, ownerTenant, what, id string) error {
	if callerTenant != ownerTenant {
		return apperrors.New(apperrors.KindForbidden, "%s %s belongs to another tenant", what, id)
	}
	return nil
}

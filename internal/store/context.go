package store

import "context"

type contextKey string

// AccountIDKey is the context key for the authenticated account identifier.
// Session issuance itself is external; only its output is consumed here.
const AccountIDKey contextKey = "wpbridge_account_id"

// WithAccountID returns a new context carrying the account ID.
func WithAccountID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AccountIDKey, id)
}

// AccountIDFromContext extracts the account ID. Returns "" if not set
// (unauthenticated caller).
func AccountIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(AccountIDKey).(string); ok {
		return v
	}
	return ""
}

package userstore

import (
	"context"

	"github.com/dalemusser/studyhub/internal/app/system/auth"
	"github.com/dalemusser/studyhub/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Fetcher implements auth.UserFetcher so the signed-in user's display name
// and avatar reflect the current profile rather than what was stamped into
// the session or token.
type Fetcher struct {
	store *Store
}

// NewFetcher creates a UserFetcher backed by the given store.
func NewFetcher(store *Store) *Fetcher {
	return &Fetcher{store: store}
}

// FetchUser returns a refreshed SessionUser, or nil if the ID is malformed,
// the user is not found, or the lookup fails. A nil result leaves the
// identity from the session or token in place.
func (f *Fetcher) FetchUser(ctx context.Context, userID string) *auth.SessionUser {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeouts.Short())
	defer cancel()

	u, err := f.store.GetByID(ctx, oid)
	if err != nil {
		return nil
	}
	return &auth.SessionUser{
		ID:     u.ID.Hex(),
		Name:   u.Name,
		Avatar: u.Avatar,
	}
}

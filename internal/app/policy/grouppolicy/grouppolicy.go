// internal/app/policy/grouppolicy/grouppolicy.go
package grouppolicy

import (
	"github.com/dalemusser/studyhub/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// These functions decide access against an already-loaded group. They do no
// I/O; callers must have rejected a missing group before asking.

// RoleOf returns the member role of userID in g and whether userID is a member.
func RoleOf(g models.Group, userID primitive.ObjectID) (string, bool) {
	for _, m := range g.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// IsMember reports whether userID appears in g's member list.
func IsMember(g models.Group, userID primitive.ObjectID) bool {
	_, ok := RoleOf(g, userID)
	return ok
}

// CanRead reports whether userID may read g's messages:
// anyone may read a public group, only members may read a private one.
func CanRead(g models.Group, userID primitive.ObjectID) bool {
	if g.Privacy == models.PrivacyPublic {
		return true
	}
	return IsMember(g, userID)
}

// CanWrite reports whether userID may post to g. Any member may post,
// regardless of role.
func CanWrite(g models.Group, userID primitive.ObjectID) bool {
	return IsMember(g, userID)
}

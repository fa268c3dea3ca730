// internal/domain/models/group.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Privacy modes for a study group.
const (
	PrivacyPublic  = "public"
	PrivacyPrivate = "private"
)

// Member roles within a study group.
const (
	RoleMember    = "member"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Group is a study group and its member list.
//
// NOTE:
//   - Members are embedded on the group document. The creator is always
//     seeded as the first member with role "admin".
//   - A user_id appears at most once in Members; joins use a conditional
//     update so this holds under concurrent requests.
type Group struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	Name        string             `bson:"name" json:"name"`
	NameCI      string             `bson:"name_ci" json:"-"`
	Description string             `bson:"description" json:"description"`
	Privacy     string             `bson:"privacy" json:"privacy"` // "public" | "private"
	CreatedBy   primitive.ObjectID `bson:"created_by" json:"created_by"`

	Members []GroupMember `bson:"members" json:"members"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// GroupMember is one entry in a group's member list.
type GroupMember struct {
	UserID   primitive.ObjectID `bson:"user_id" json:"user_id"`
	Role     string             `bson:"role" json:"role"` // "member" | "moderator" | "admin"
	JoinedAt time.Time          `bson:"joined_at" json:"joined_at"`
}

// MemberProfile is a GroupMember with the member's display name.
type MemberProfile struct {
	GroupMember `bson:",inline"`
	Name        string `json:"name"`
}

// EnrichedGroup is a Group as returned by the read endpoints: the creator
// and every member carry their display name. Unknown users get an empty
// name.
type EnrichedGroup struct {
	Group   `bson:",inline"`
	Creator Author          `json:"creator"`
	Members []MemberProfile `json:"members"`
}

// IsValidPrivacy reports whether p is a known privacy mode.
func IsValidPrivacy(p string) bool {
	return p == PrivacyPublic || p == PrivacyPrivate
}

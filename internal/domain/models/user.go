// internal/domain/models/user.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is the profile owned by the identity service. This app only reads
// it to attach author display data to messages.
type User struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name   string             `bson:"name" json:"name"`
	Email  string             `bson:"email,omitempty" json:"email,omitempty"`
	Avatar string             `bson:"avatar,omitempty" json:"avatar,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

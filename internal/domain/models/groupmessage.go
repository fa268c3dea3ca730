// internal/domain/models/groupmessage.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// GroupMessage is one immutable chat message posted to a group.
// UserName is copied from the author's identity at write time so
// transcripts can be read without a user lookup.
type GroupMessage struct {
	ID        primitive.ObjectID `bson:"_id" json:"id"`
	GroupID   primitive.ObjectID `bson:"group_id" json:"group_id"`
	UserID    primitive.ObjectID `bson:"user_id" json:"user_id"`
	UserName  string             `bson:"user_name" json:"user_name"`
	Content   string             `bson:"content" json:"content"`
	Timestamp time.Time          `bson:"timestamp" json:"timestamp"`
}

// Author is the display data attached to a message when it is returned
// to a client.
type Author struct {
	ID     primitive.ObjectID `json:"id"`
	Name   string             `json:"name"`
	Avatar string             `json:"avatar,omitempty"`
}

// EnrichedMessage is a GroupMessage with its author's display data.
type EnrichedMessage struct {
	GroupMessage `bson:",inline"`
	Author       Author `json:"author"`
}

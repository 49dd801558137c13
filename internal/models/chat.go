package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chat sender roles, derived from the authenticated principal, never from
// the message payload.
const (
	SenderRoleUser      = "USER"
	SenderRoleCarCenter = "CAR_CENTER"
)

// ChatRoom is a conversation between one user and one car center, anchored
// to the quote request that spawned it. Counterpart display names are
// snapshotted for cheap room listings.
type ChatRoom struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID        primitive.ObjectID `bson:"userId" json:"userId"`
	CenterID      primitive.ObjectID `bson:"centerId" json:"centerId"`
	RequestID     primitive.ObjectID `bson:"requestId" json:"requestId"`
	UserName      string             `bson:"userName" json:"userName"`
	CenterName    string             `bson:"centerName" json:"centerName"`
	LastMessageAt time.Time          `bson:"lastMessageAt" json:"lastMessageAt"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// HasParticipant reports whether the given principal id belongs to the room.
func (r ChatRoom) HasParticipant(id primitive.ObjectID) bool {
	return r.UserID == id || r.CenterID == id
}

// ChatMessage is one append-only message in the room history. SentAt is
// always assigned by the server.
type ChatMessage struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RoomID     primitive.ObjectID `bson:"roomId" json:"roomId"`
	SenderID   primitive.ObjectID `bson:"senderId" json:"senderId"`
	SenderName string             `bson:"senderName" json:"senderName"`
	SenderRole string             `bson:"senderRole" json:"senderRole"`
	Content    string             `bson:"content" json:"content"`
	SentAt     time.Time          `bson:"sentAt" json:"sentAt"`
}

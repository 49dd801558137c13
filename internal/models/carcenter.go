package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Car center approval statuses. A center cannot log in or submit estimates
// until an admin moves it to ACTIVE.
const (
	CenterStatusPendingApproval = "PENDING_APPROVAL"
	CenterStatusActive          = "ACTIVE"
	CenterStatusRejected        = "REJECTED"
)

// CarCenter represents a repair shop responding to quote requests.
type CarCenter struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"passwordHash" json:"-"`
	CenterName   string             `bson:"centerName" json:"centerName"`
	Address      string             `bson:"address" json:"address"`
	Latitude     *float64           `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude    *float64           `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Phone        string             `bson:"phone,omitempty" json:"phone,omitempty"`
	OpeningHours string             `bson:"openingHours,omitempty" json:"openingHours,omitempty"`
	Status       string             `bson:"status" json:"status"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt" json:"updatedAt"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Estimate statuses. PENDING is the only non-terminal state: ACCEPTED and
// REJECTED are user-driven, CANCELED is center-driven.
const (
	EstimateStatusPending  = "PENDING"
	EstimateStatusAccepted = "ACCEPTED"
	EstimateStatusRejected = "REJECTED"
	EstimateStatusCanceled = "CANCELED"
)

// EstimateItem is a single line item of an estimate. Items are owned by the
// estimate document and only ever written through it.
type EstimateItem struct {
	ItemName      string `bson:"itemName" json:"itemName"`
	Price         int    `bson:"price" json:"price"`
	RequiredHours int    `bson:"requiredHours,omitempty" json:"requiredHours,omitempty"`
	PartType      string `bson:"partType,omitempty" json:"partType,omitempty"`
	Quantity      int    `bson:"quantity" json:"quantity"`
}

// Estimate is one car center's priced response to a quote request.
type Estimate struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RequestID     primitive.ObjectID `bson:"requestId" json:"requestId"`
	CenterID      primitive.ObjectID `bson:"centerId" json:"centerId"`
	CenterName    string             `bson:"centerName" json:"centerName"`
	EstimatedCost int                `bson:"estimatedCost" json:"estimatedCost"`
	Details       string             `bson:"details,omitempty" json:"details,omitempty"`
	Items         []EstimateItem     `bson:"items" json:"items"`
	Status        string             `bson:"status" json:"status"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// IsTerminal reports whether the status allows no further transitions.
func IsTerminalEstimateStatus(status string) bool {
	switch status {
	case EstimateStatusAccepted, EstimateStatusRejected, EstimateStatusCanceled:
		return true
	}
	return false
}

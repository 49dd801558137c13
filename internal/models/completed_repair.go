package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	RepairStatusInProgress = "IN_PROGRESS"
	RepairStatusCompleted  = "COMPLETED"
)

// CompletedRepair is the snapshot written when an estimate is accepted. It
// denormalizes party and car info so it stays valid after the originating
// request and estimate are gone.
type CompletedRepair struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"userId" json:"userId"`
	UserName     string             `bson:"userName" json:"userName"`
	CenterID     primitive.ObjectID `bson:"centerId" json:"centerId"`
	CenterName   string             `bson:"centerName" json:"centerName"`
	RequestID    primitive.ObjectID `bson:"requestId" json:"requestId"`
	EstimateID   primitive.ObjectID `bson:"estimateId" json:"estimateId"`
	FinalCost    int                `bson:"finalCost" json:"finalCost"`
	CarModel     string             `bson:"carModel" json:"carModel"`
	LicensePlate string             `bson:"licensePlate" json:"licensePlate"`
	RepairDetails string            `bson:"repairDetails" json:"repairDetails"`
	Status       string             `bson:"status" json:"status"`
	CreatedAt    time.Time          `bson:"createdAt" json:"createdAt"`
	CompletedAt  *time.Time         `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
}

// HasParty reports whether the given principal is the repair's user or
// center.
func (r CompletedRepair) HasParty(id primitive.ObjectID) bool {
	return r.UserID == id || r.CenterID == id
}

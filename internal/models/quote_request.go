package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Quote request statuses. A request closes (COMPLETED) when the user accepts
// one of its estimates.
const (
	RequestStatusPending   = "PENDING"
	RequestStatusCompleted = "COMPLETED"
	RequestStatusCanceled  = "CANCELED"
)

// RequestImage is a photo attached to a quote request, stored in object
// storage under ObjectKey and served via URL.
type RequestImage struct {
	ObjectKey string `bson:"objectKey" json:"objectKey"`
	URL       string `bson:"url" json:"url"`
}

// QuoteRequest is a user's ask for repair estimates on one of their cars.
// Car model and plate are snapshotted at creation so the request stays
// readable even if the car is later removed from the user's garage.
type QuoteRequest struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"userId" json:"userId"`
	CarID          primitive.ObjectID `bson:"carId" json:"carId"`
	CarModel       string             `bson:"carModel" json:"carModel"`
	CarNumber      string             `bson:"carNumber" json:"carNumber"`
	RequestDetails string             `bson:"requestDetails" json:"requestDetails"`
	Address        string             `bson:"address" json:"address"`
	Latitude       *float64           `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude      *float64           `bson:"longitude,omitempty" json:"longitude,omitempty"`
	Images         []RequestImage     `bson:"images" json:"images"`
	Status         string             `bson:"status" json:"status"`
	CreatedAt      time.Time          `bson:"createdAt" json:"createdAt"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User account statuses.
const (
	UserStatusActive    = "ACTIVE"
	UserStatusDormant   = "DORMANT"
	UserStatusWithdrawn = "WITHDRAWN"
)

// UserCar is a vehicle registered by a user; it lives inside the owning
// user document and is referenced by quote requests through its id.
type UserCar struct {
	ID        primitive.ObjectID `bson:"id" json:"id"`
	CarModel  string             `bson:"carModel" json:"carModel"`
	CarNumber string             `bson:"carNumber" json:"carNumber"`
	ModelYear int                `bson:"modelYear,omitempty" json:"modelYear,omitempty"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
}

// User represents a vehicle owner requesting repair quotes.
type User struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email           string             `bson:"email" json:"email"`
	PasswordHash    string             `bson:"passwordHash" json:"-"`
	Name            string             `bson:"name" json:"name"`
	Phone           string             `bson:"phone,omitempty" json:"phone,omitempty"`
	MarketingAgreed bool               `bson:"marketingAgreed" json:"marketingAgreed"`
	Status          string             `bson:"status" json:"status"`
	Cars            []UserCar          `bson:"cars" json:"cars"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// CarByID returns the embedded car with the given id, if present.
func (u User) CarByID(carID primitive.ObjectID) (UserCar, bool) {
	for _, car := range u.Cars {
		if car.ID == carID {
			return car, true
		}
	}
	return UserCar{}, false
}

package database

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureUserIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	emailIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetName("email_unique").
			SetUnique(true),
	}

	log.Println("EnsureUserIndexes: creating email_unique index")
	if _, err := db.Collection("users").Indexes().CreateOne(ctx, emailIndex); err != nil {
		log.Println("EnsureUserIndexes: email index error:", err)
		return err
	}
	return nil
}

func EnsureCarCenterIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	emailIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "email", Value: 1}},
		Options: options.Index().
			SetName("email_unique").
			SetUnique(true),
	}

	log.Println("EnsureCarCenterIndexes: creating email_unique index")
	if _, err := db.Collection("carcenters").Indexes().CreateOne(ctx, emailIndex); err != nil {
		log.Println("EnsureCarCenterIndexes: email index error:", err)
		return err
	}
	return nil
}

// EnsureQuoteRequestIndexes enforces the one-open-request-per-user rule at the
// storage layer: the unique index only covers documents still in PENDING.
func EnsureQuoteRequestIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	openRequestIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}},
		Options: options.Index().
			SetName("open_request_per_user_unique").
			SetUnique(true).
			SetPartialFilterExpression(bson.M{
				"status": "PENDING",
			}),
	}

	log.Println("EnsureQuoteRequestIndexes: creating open_request_per_user_unique index")
	if _, err := db.Collection("quote_requests").Indexes().CreateOne(ctx, openRequestIndex); err != nil {
		log.Println("EnsureQuoteRequestIndexes: open request index error:", err)
		return err
	}
	return nil
}

// EnsureEstimateIndexes enforces one estimate per (request, center) pair.
func EnsureEstimateIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	indexes := db.Collection("estimates").Indexes()

	pairIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "requestId", Value: 1},
			{Key: "centerId", Value: 1},
		},
		Options: options.Index().
			SetName("request_center_unique").
			SetUnique(true),
	}

	log.Println("EnsureEstimateIndexes: creating request_center_unique index")
	if _, err := indexes.CreateOne(ctx, pairIndex); err != nil {
		log.Println("EnsureEstimateIndexes: request/center index error:", err)
		return err
	}

	statusIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "requestId", Value: 1},
			{Key: "status", Value: 1},
		},
		Options: options.Index().SetName("request_status_index"),
	}

	log.Println("EnsureEstimateIndexes: creating request_status_index index")
	if _, err := indexes.CreateOne(ctx, statusIndex); err != nil {
		log.Println("EnsureEstimateIndexes: request/status index error:", err)
		return err
	}
	return nil
}

// EnsureChatIndexes makes the (user, center, request) room triple unique so a
// concurrent first-contact race resolves to a single room, and keeps history
// reads on (roomId, sentAt) indexed.
func EnsureChatIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	roomIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "centerId", Value: 1},
			{Key: "requestId", Value: 1},
		},
		Options: options.Index().
			SetName("room_participants_unique").
			SetUnique(true),
	}

	log.Println("EnsureChatIndexes: creating room_participants_unique index")
	if _, err := db.Collection("chat_rooms").Indexes().CreateOne(ctx, roomIndex); err != nil {
		log.Println("EnsureChatIndexes: room index error:", err)
		return err
	}

	messageIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "roomId", Value: 1},
			{Key: "sentAt", Value: 1},
		},
		Options: options.Index().SetName("room_sentAt_index"),
	}

	log.Println("EnsureChatIndexes: creating room_sentAt_index index")
	if _, err := db.Collection("messages").Indexes().CreateOne(ctx, messageIndex); err != nil {
		log.Println("EnsureChatIndexes: message index error:", err)
		return err
	}
	return nil
}

func EnsureCompletedRepairIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	userIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "userId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
		Options: options.Index().SetName("repair_user_createdAt_index"),
	}
	centerIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "centerId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
		Options: options.Index().SetName("repair_center_createdAt_index"),
	}

	log.Println("EnsureCompletedRepairIndexes: creating repair listing indexes")
	if _, err := db.Collection("completed_repairs").Indexes().CreateMany(ctx, []mongo.IndexModel{userIndex, centerIndex}); err != nil {
		log.Println("EnsureCompletedRepairIndexes: index error:", err)
		return err
	}
	return nil
}

func EnsureNotificationIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	receiverIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "receiverId", Value: 1},
			{Key: "createdAt", Value: -1},
		},
		Options: options.Index().SetName("receiver_createdAt_index"),
	}

	log.Println("EnsureNotificationIndexes: creating receiver_createdAt_index index")
	if _, err := db.Collection("notifications").Indexes().CreateOne(ctx, receiverIndex); err != nil {
		log.Println("EnsureNotificationIndexes: receiver index error:", err)
		return err
	}
	return nil
}

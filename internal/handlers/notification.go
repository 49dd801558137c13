package handlers

import (
	"context"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carparter/internal/middleware"
	"carparter/internal/models"
	"carparter/internal/notify"
)

// sendNotification persists the notification row (guaranteed delivery via
// the polling endpoints) and then pushes the live event (best-effort).
// Failures are logged and never propagate to the triggering workflow.
func sendNotification(ctx context.Context, db *mongo.Database, nd *notify.Dispatcher, receiverID primitive.ObjectID, message, url string) {
	notification := models.Notification{
		ReceiverID: receiverID,
		Message:    message,
		URL:        url,
		IsRead:     false,
		CreatedAt:  time.Now(),
	}

	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := db.Collection("notifications").InsertOne(insertCtx, notification); err != nil {
		log.Println("[NOTIFY] [ERROR] could not persist notification:", err)
	}

	nd.Dispatch(ctx, notify.Event{
		ReceiverID: receiverID.Hex(),
		Message:    message,
		URL:        url,
		CreatedAt:  notification.CreatedAt,
	})
}

// SubscribeNotifications opens the long-lived event stream for the caller.
// The registry entry is removed on every termination path: client
// disconnect, the configured timeout, or replacement by a newer connection.
func SubscribeNotifications(nd *notify.Dispatcher, subscribeTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/notifications/subscribe"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		events, cancel := nd.Subscribe(principalID.Hex())
		defer cancel()

		log.Println("[NOTIFY] [INFO] live stream opened for:", principalID.Hex())

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		// Handshake so clients know the stream is registered.
		c.SSEvent("connect", "stream established for "+principalID.Hex())
		c.Writer.Flush()

		deadline := time.NewTimer(subscribeTTL)
		defer deadline.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case ev, open := <-events:
				if !open {
					// Replaced by a newer connection.
					return false
				}
				c.SSEvent("notification", ev)
				return true
			case <-deadline.C:
				log.Println("[NOTIFY] [INFO] live stream timed out for:", principalID.Hex())
				return false
			case <-c.Request.Context().Done():
				log.Println("[NOTIFY] [INFO] live stream client gone:", principalID.Hex())
				return false
			}
		})
	}
}

// GetNotifications lists the caller's persisted notifications, newest first.
func GetNotifications(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/notifications"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		cursor, err := db.Collection("notifications").Find(ctx,
			bson.M{"receiverId": principalID},
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		notifications := []models.Notification{}
		if err := cursor.All(ctx, &notifications); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, notifications)
	}
}

// GetUnreadCount reports how many of the caller's notifications are unread.
func GetUnreadCount(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/notifications/unread-count"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		count, err := db.Collection("notifications").CountDocuments(ctx, bson.M{
			"receiverId": principalID,
			"isRead":     false,
		})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, gin.H{"unreadCount": count})
	}
}

// MarkNotificationRead flips the read flag. Only the receiver may do so.
func MarkNotificationRead(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/notifications/:id/read"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		notificationID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid notification id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		res, err := db.Collection("notifications").UpdateOne(ctx,
			bson.M{"_id": notificationID, "receiverId": principalID},
			bson.M{"$set": bson.M{"isRead": true}},
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "notification not found")
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "read"})
	}
}

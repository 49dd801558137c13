package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carparter/internal/chat"
	"carparter/internal/middleware"
	"carparter/internal/models"
	"carparter/internal/notify"
)

type findOrCreateRoomRequest struct {
	EstimateID string `json:"estimateId" binding:"required"`
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// loadRoomForParticipant fetches a room and checks the caller belongs to it.
func loadRoomForParticipant(ctx context.Context, db *mongo.Database, roomID, principalID primitive.ObjectID) (models.ChatRoom, int, string) {
	var room models.ChatRoom
	if err := db.Collection("chat_rooms").FindOne(ctx, bson.M{"_id": roomID}).Decode(&room); err != nil {
		return room, http.StatusNotFound, "chat room not found"
	}
	if !room.HasParticipant(principalID) {
		return room, http.StatusForbidden, "not a participant of this room"
	}
	return room, 0, ""
}

// FindOrCreateRoom resolves the room for an estimate's (user, center, request)
// triple, creating it on first contact. Two racing creators collapse onto the
// same room through the unique participants index.
func FindOrCreateRoom(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/chat/rooms"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req findOrCreateRoomRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		estimateID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.EstimateID))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid estimate id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var estimate models.Estimate
		if err := db.Collection("estimates").FindOne(ctx, bson.M{"_id": estimateID}).Decode(&estimate); err != nil {
			respondWithError(c, http.StatusNotFound, route, "estimate not found")
			return
		}

		var request models.QuoteRequest
		if err := db.Collection("quote_requests").FindOne(ctx, bson.M{"_id": estimate.RequestID}).Decode(&request); err != nil {
			respondWithError(c, http.StatusNotFound, route, "quote request not found")
			return
		}

		if principalID != request.UserID && principalID != estimate.CenterID {
			respondWithError(c, http.StatusForbidden, route, "not a party to this estimate")
			return
		}

		filter := bson.M{
			"userId":    request.UserID,
			"centerId":  estimate.CenterID,
			"requestId": request.ID,
		}

		var room models.ChatRoom
		err = db.Collection("chat_rooms").FindOne(ctx, filter).Decode(&room)
		if err == nil {
			c.JSON(http.StatusOK, room)
			return
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": request.UserID}).Decode(&user); err != nil {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}

		now := time.Now()
		room = models.ChatRoom{
			UserID:        request.UserID,
			UserName:      user.Name,
			CenterID:      estimate.CenterID,
			CenterName:    estimate.CenterName,
			RequestID:     request.ID,
			CreatedAt:     now,
			LastMessageAt: now,
		}

		res, err := db.Collection("chat_rooms").InsertOne(ctx, room)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				// Lost the race: the other party created it first.
				if err := db.Collection("chat_rooms").FindOne(ctx, filter).Decode(&room); err == nil {
					c.JSON(http.StatusOK, room)
					return
				}
			}
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			room.ID = id
		}

		log.Println("[CHAT] [INFO] room created:", room.ID.Hex())
		c.JSON(http.StatusCreated, room)
	}
}

// ListChatRooms returns the caller's rooms, most recently active first. The
// role decides which side of the participant pair is matched.
func ListChatRooms(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/chat/rooms"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		filter := bson.M{"userId": principalID}
		if middleware.Role(c) == middleware.RoleCarCenter {
			filter = bson.M{"centerId": principalID}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		cursor, err := db.Collection("chat_rooms").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}}),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		rooms := []models.ChatRoom{}
		if err := cursor.All(ctx, &rooms); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, rooms)
	}
}

// SendMessage persists a message and fans it out to the room's live
// subscribers. Sender name is resolved fresh so a rename shows up on the
// next message rather than being frozen into the room.
func SendMessage(db *mongo.Database, hub *chat.Hub, nd *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/chat/rooms/:roomId/messages"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		roomID, err := primitive.ObjectIDFromHex(c.Param("roomId"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid room id")
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}
		content := strings.TrimSpace(req.Content)
		if content == "" {
			respondWithError(c, http.StatusBadRequest, route, "message content is required")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		room, status, msg := loadRoomForParticipant(ctx, db, roomID, principalID)
		if status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		senderRole := models.SenderRoleUser
		senderName := room.UserName
		receiverID := room.CenterID
		if middleware.Role(c) == middleware.RoleCarCenter {
			senderRole = models.SenderRoleCarCenter
			receiverID = room.UserID
			var center models.CarCenter
			if err := db.Collection("carcenters").FindOne(ctx, bson.M{"_id": principalID}).Decode(&center); err == nil {
				senderName = center.CenterName
			} else {
				senderName = room.CenterName
			}
		} else {
			var user models.User
			if err := db.Collection("users").FindOne(ctx, bson.M{"_id": principalID}).Decode(&user); err == nil {
				senderName = user.Name
			}
		}

		message := models.ChatMessage{
			RoomID:     roomID,
			SenderID:   principalID,
			SenderRole: senderRole,
			SenderName: senderName,
			Content:    content,
			SentAt:     time.Now(),
		}

		res, err := db.Collection("messages").InsertOne(ctx, message)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			message.ID = id
		}

		if _, err := db.Collection("chat_rooms").UpdateOne(ctx,
			bson.M{"_id": roomID},
			bson.M{"$set": bson.M{"lastMessageAt": message.SentAt}},
		); err != nil {
			log.Println("[CHAT] [WARN] lastMessageAt bump failed:", err)
		}

		hub.Broadcast(roomID.Hex(), message)

		sendNotification(c.Request.Context(), db, nd, receiverID,
			senderName+": "+truncateMessage(content, 50),
			"/chat/rooms/"+roomID.Hex())

		c.JSON(http.StatusCreated, message)
	}
}

func truncateMessage(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

// StreamRoom is the SSE feed of a room's live messages. Messages sent before
// the stream opened are fetched through the history endpoint instead.
func StreamRoom(db *mongo.Database, hub *chat.Hub, subscribeTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/chat/rooms/:roomId/stream"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		roomID, err := primitive.ObjectIDFromHex(c.Param("roomId"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid room id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()
		if _, status, msg := loadRoomForParticipant(ctx, db, roomID, principalID); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}
		cancel()

		messages, leave := hub.Join(roomID.Hex())
		defer leave()

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		c.SSEvent("connect", gin.H{"roomId": roomID.Hex()})
		c.Writer.Flush()

		deadline := time.NewTimer(subscribeTTL)
		defer deadline.Stop()

		c.Stream(func(w io.Writer) bool {
			select {
			case msg, open := <-messages:
				if !open {
					return false
				}
				c.SSEvent("message", msg)
				return true
			case <-deadline.C:
				return false
			case <-c.Request.Context().Done():
				return false
			}
		})
	}
}

// GetChatHistory returns a room's messages oldest first.
func GetChatHistory(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/chat/history/:roomId"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		roomID, err := primitive.ObjectIDFromHex(c.Param("roomId"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid room id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		if _, status, msg := loadRoomForParticipant(ctx, db, roomID, principalID); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		cursor, err := db.Collection("messages").Find(ctx,
			bson.M{"roomId": roomID},
			options.Find().SetSort(bson.D{{Key: "sentAt", Value: 1}}),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		messages := []models.ChatMessage{}
		if err := cursor.All(ctx, &messages); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, messages)
	}
}

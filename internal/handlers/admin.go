package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"carparter/internal/middleware"
	"carparter/internal/models"
	"carparter/internal/notify"
)

type adminAccount struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Email        string             `bson:"email"`
	PasswordHash string             `bson:"passwordHash"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type centerApprovalRequest struct {
	Approved *bool `json:"approved" binding:"required"`
}

// EnsureAdminAccount seeds the configured admin credential at boot so
// moderation endpoints are reachable on a fresh deployment.
func EnsureAdminAccount(db *mongo.Database, email, password string) error {
	if email == "" || password == "" {
		log.Println("[ADMIN] [WARN] no admin credentials configured, skipping seed")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))
	count, err := db.Collection("admins").CountDocuments(ctx, bson.M{"email": email})
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = db.Collection("admins").InsertOne(ctx, adminAccount{
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	})
	if err == nil {
		log.Println("[ADMIN] [INFO] admin account seeded:", email)
	}
	return err
}

// LoginAdmin authenticates a moderator.
func LoginAdmin(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/admin/login"
		defer handlePanic(c, route)

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var admin adminAccount
		err := db.Collection("admins").FindOne(ctx, bson.M{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
		}).Decode(&admin)
		if err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}

		token, err := issueToken(admin.ID, middleware.RoleAdmin, admin.Email, jwtSecret, accessTTL)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"accessToken": token,
			"expiresIn":   int64(accessTTL.Seconds()),
		})
	}
}

// ListCarCenters lists centers for moderation, optionally filtered by status.
func ListCarCenters(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/admin/centers"
		defer handlePanic(c, route)

		filter := bson.M{}
		if status := strings.TrimSpace(c.Query("status")); status != "" {
			filter["status"] = status
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		cursor, err := db.Collection("carcenters").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		centers := []models.CarCenter{}
		if err := cursor.All(ctx, &centers); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, centers)
	}
}

// SetCenterApproval resolves a pending center registration and notifies the
// center of the outcome.
func SetCenterApproval(db *mongo.Database, nd *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/admin/centers/:id/approval"
		defer handlePanic(c, route)

		centerID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid center id")
			return
		}

		var req centerApprovalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		status := models.CenterStatusRejected
		message := "가입 신청이 거절되었습니다."
		if *req.Approved {
			status = models.CenterStatusActive
			message = "가입 신청이 승인되었습니다. 이제 견적 요청을 확인할 수 있습니다."
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		res, err := db.Collection("carcenters").UpdateOne(ctx,
			bson.M{"_id": centerID, "status": models.CenterStatusPendingApproval},
			bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusNotFound, route, "pending center not found")
			return
		}

		log.Printf("[ADMIN] [INFO] center %s approval resolved: %s", centerID.Hex(), status)
		sendNotification(c.Request.Context(), db, nd, centerID, message, "/center/profile")

		c.JSON(http.StatusOK, gin.H{"id": centerID.Hex(), "status": status})
	}
}

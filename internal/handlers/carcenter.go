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
	"golang.org/x/crypto/bcrypt"

	"carparter/internal/geo"
	"carparter/internal/middleware"
	"carparter/internal/models"
)

type registerCenterRequest struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	CenterName   string `json:"centerName" binding:"required"`
	Address      string `json:"address" binding:"required"`
	Phone        string `json:"phone"`
	OpeningHours string `json:"openingHours"`
}

// RegisterCarCenter creates a repair-shop account awaiting admin approval.
// The address is geocoded best-effort: a geocoding failure is logged and the
// center is stored without coordinates.
func RegisterCarCenter(db *mongo.Database, geocoder geo.Geocoder) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/centers/register"
		defer handlePanic(c, route)

		var req registerCenterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "could not hash password")
			return
		}

		now := time.Now()
		center := models.CarCenter{
			Email:        strings.ToLower(strings.TrimSpace(req.Email)),
			PasswordHash: string(hash),
			CenterName:   strings.TrimSpace(req.CenterName),
			Address:      strings.TrimSpace(req.Address),
			Phone:        strings.TrimSpace(req.Phone),
			OpeningHours: strings.TrimSpace(req.OpeningHours),
			Status:       models.CenterStatusPendingApproval,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if geocoder != nil {
			coords, err := geocoder.Geocode(c.Request.Context(), center.Address)
			if err != nil {
				log.Println("[CENTER] [WARN] geocoding failed, registering without coordinates:", err)
			} else {
				center.Latitude = &coords.Latitude
				center.Longitude = &coords.Longitude
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		res, err := db.Collection("carcenters").InsertOne(ctx, center)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusConflict, route, "email already registered")
				return
			}
			log.Println("[CENTER] [ERROR] register insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		id, _ := res.InsertedID.(primitive.ObjectID)
		log.Println("[CENTER] [INFO] car center registered, awaiting approval:", id.Hex())
		c.JSON(http.StatusCreated, gin.H{
			"id":         id.Hex(),
			"centerName": center.CenterName,
			"status":     center.Status,
		})
	}
}

// LoginCarCenter authenticates a repair shop. Centers that are not yet
// approved (or were rejected) cannot log in.
func LoginCarCenter(db *mongo.Database, jwtSecret string, accessTTL time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/centers/login"
		defer handlePanic(c, route)

		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var center models.CarCenter
		err := db.Collection("carcenters").FindOne(ctx, bson.M{
			"email": strings.ToLower(strings.TrimSpace(req.Email)),
		}).Decode(&center)
		if err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(center.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, http.StatusUnauthorized, route, "invalid credentials")
			return
		}

		if center.Status != models.CenterStatusActive {
			respondWithError(c, http.StatusForbidden, route, "center not approved")
			return
		}

		token, err := issueToken(center.ID, middleware.RoleCarCenter, center.Email, jwtSecret, accessTTL)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.Println("[CENTER] [INFO] car center login:", center.ID.Hex())
		c.JSON(http.StatusOK, gin.H{
			"accessToken": token,
			"expiresIn":   int64(accessTTL.Seconds()),
			"center": gin.H{
				"id":         center.ID.Hex(),
				"centerName": center.CenterName,
			},
		})
	}
}

// GetCarCenter returns a center's public profile.
func GetCarCenter(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/centers/:id"
		defer handlePanic(c, route)

		centerID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid center id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var center models.CarCenter
		if err := db.Collection("carcenters").FindOne(ctx, bson.M{"_id": centerID}).Decode(&center); err != nil {
			respondWithError(c, http.StatusNotFound, route, "center not found")
			return
		}

		c.JSON(http.StatusOK, center)
	}
}

package handlers

import (
	"context"
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

// repairViewError checks read access to a repair record. Both parties of
// the accepted estimate may see it.
func repairViewError(repair models.CompletedRepair, principalID primitive.ObjectID) (int, string) {
	if !repair.HasParty(principalID) {
		return http.StatusForbidden, "not a party to this repair"
	}
	return 0, ""
}

// repairCompletionError checks the center-driven IN_PROGRESS -> COMPLETED
// transition.
func repairCompletionError(repair models.CompletedRepair, centerID primitive.ObjectID) (int, string) {
	if repair.CenterID != centerID {
		return http.StatusForbidden, "not your repair"
	}
	if repair.Status != models.RepairStatusInProgress {
		return http.StatusConflict, "repair already completed"
	}
	return 0, ""
}

// ListRepairs returns the caller's repair records, newest first. The role
// decides which side of the record is matched.
func ListRepairs(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/repairs"
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

		cursor, err := db.Collection("completed_repairs").Find(ctx, filter,
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		repairs := []models.CompletedRepair{}
		if err := cursor.All(ctx, &repairs); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, repairs)
	}
}

// GetRepair returns one repair record for either party.
func GetRepair(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/repairs/:id"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		repairID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid repair id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var repair models.CompletedRepair
		if err := db.Collection("completed_repairs").FindOne(ctx, bson.M{"_id": repairID}).Decode(&repair); err != nil {
			respondWithError(c, http.StatusNotFound, route, "repair not found")
			return
		}
		if status, msg := repairViewError(repair, principalID); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		c.JSON(http.StatusOK, repair)
	}
}

// CompleteRepair marks the repair done and asks the user for a review. The
// status filter keeps a double completion from firing two notifications.
func CompleteRepair(db *mongo.Database, nd *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/repairs/:id/complete"
		defer handlePanic(c, route)

		centerID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		repairID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid repair id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var repair models.CompletedRepair
		if err := db.Collection("completed_repairs").FindOne(ctx, bson.M{"_id": repairID}).Decode(&repair); err != nil {
			respondWithError(c, http.StatusNotFound, route, "repair not found")
			return
		}
		if status, msg := repairCompletionError(repair, centerID); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		now := time.Now()
		res, err := db.Collection("completed_repairs").UpdateOne(ctx,
			bson.M{"_id": repairID, "status": models.RepairStatusInProgress},
			bson.M{"$set": bson.M{"status": models.RepairStatusCompleted, "completedAt": now}},
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusConflict, route, "repair already completed")
			return
		}

		sendNotification(c.Request.Context(), db, nd, repair.UserID,
			"'"+repair.CenterName+"'의 수리가 완료되었습니다. 리뷰를 남겨주세요.",
			"/user/repairs/"+repairID.Hex())

		c.JSON(http.StatusOK, gin.H{"id": repairID.Hex(), "status": models.RepairStatusCompleted})
	}
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
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

type estimateItemRequest struct {
	ItemName      string `json:"itemName" binding:"required"`
	Price         int    `json:"price"`
	RequiredHours int    `json:"requiredHours"`
	PartType      string `json:"partType"`
	Quantity      int    `json:"quantity"`
}

type submitEstimateRequest struct {
	RequestID     string                `json:"requestId" binding:"required"`
	EstimatedCost int                   `json:"estimatedCost"`
	Details       string                `json:"details"`
	Items         []estimateItemRequest `json:"items"`
}

type updateEstimateRequest struct {
	EstimatedCost int                   `json:"estimatedCost"`
	Details       string                `json:"details"`
	Items         []estimateItemRequest `json:"items"`
}

type estimateConflictError struct {
	Reason string
}

func (e estimateConflictError) Error() string {
	return e.Reason
}

// buildEstimateItems validates and converts line items. Items are attached
// through the estimate only, never written independently.
func buildEstimateItems(items []estimateItemRequest) ([]models.EstimateItem, error) {
	built := make([]models.EstimateItem, 0, len(items))
	for _, item := range items {
		name := strings.TrimSpace(item.ItemName)
		if name == "" {
			return nil, errors.New("item name is required")
		}
		if item.Price < 0 {
			return nil, errors.New("item price must not be negative")
		}
		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		if quantity < 0 {
			return nil, errors.New("item quantity must be positive")
		}
		built = append(built, models.EstimateItem{
			ItemName:      name,
			Price:         item.Price,
			RequiredHours: item.RequiredHours,
			PartType:      strings.TrimSpace(item.PartType),
			Quantity:      quantity,
		})
	}
	return built, nil
}

// userEstimateActionError checks the user-driven transitions (accept,
// reject). The caller must own the parent request, and only a pending
// estimate may leave its state.
func userEstimateActionError(estimate models.Estimate, request models.QuoteRequest, userID primitive.ObjectID, verb string) (int, string) {
	if request.UserID != userID {
		return http.StatusForbidden, "not your quote request"
	}
	if models.IsTerminalEstimateStatus(estimate.Status) {
		return http.StatusConflict, "only pending estimates can be " + verb
	}
	return 0, ""
}

// estimateUpdateError checks the center-driven revision.
func estimateUpdateError(estimate models.Estimate, centerID primitive.ObjectID) (int, string) {
	if estimate.CenterID != centerID {
		return http.StatusForbidden, "not your estimate"
	}
	if models.IsTerminalEstimateStatus(estimate.Status) {
		return http.StatusConflict, "only pending estimates can be updated"
	}
	return 0, ""
}

// estimateWithdrawError checks the center-driven withdrawal. A rejected
// estimate may still be withdrawn; an accepted one has a completion record
// hanging off it and may not.
func estimateWithdrawError(estimate models.Estimate, centerID primitive.ObjectID) (int, string) {
	if estimate.CenterID != centerID {
		return http.StatusForbidden, "not your estimate"
	}
	if estimate.Status == models.EstimateStatusAccepted {
		return http.StatusConflict, "accepted estimates cannot be withdrawn"
	}
	return 0, ""
}

// newCompletedRepair snapshots an accepted estimate. The estimate must be
// the committed document, so a concurrent revision cannot leave a stale
// cost in the record.
func newCompletedRepair(user models.User, request models.QuoteRequest, estimate models.Estimate) models.CompletedRepair {
	return models.CompletedRepair{
		UserID:        request.UserID,
		UserName:      user.Name,
		CenterID:      estimate.CenterID,
		CenterName:    estimate.CenterName,
		RequestID:     request.ID,
		EstimateID:    estimate.ID,
		FinalCost:     estimate.EstimatedCost,
		CarModel:      request.CarModel,
		LicensePlate:  request.CarNumber,
		RepairDetails: request.RequestDetails,
		Status:        models.RepairStatusInProgress,
		CreatedAt:     time.Now(),
	}
}

// estimateTotal returns the explicit cost when given, otherwise the sum of
// the line items.
func estimateTotal(estimatedCost int, items []models.EstimateItem) int {
	if estimatedCost > 0 {
		return estimatedCost
	}
	total := 0
	for _, item := range items {
		total += item.Price * item.Quantity
	}
	return total
}

// SubmitEstimate lets a car center respond to an open quote request. One
// estimate per (request, center) pair, enforced by the storage layer.
func SubmitEstimate(db *mongo.Database, nd *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/estimates"
		defer handlePanic(c, route)

		centerID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		var req submitEstimateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		requestID, err := primitive.ObjectIDFromHex(strings.TrimSpace(req.RequestID))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request id")
			return
		}

		items, err := buildEstimateItems(req.Items)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var center models.CarCenter
		if err := db.Collection("carcenters").FindOne(ctx, bson.M{"_id": centerID}).Decode(&center); err != nil {
			respondWithError(c, http.StatusNotFound, route, "car center not found")
			return
		}

		var request models.QuoteRequest
		if err := db.Collection("quote_requests").FindOne(ctx, bson.M{"_id": requestID}).Decode(&request); err != nil {
			respondWithError(c, http.StatusNotFound, route, "quote request not found")
			return
		}
		if request.Status != models.RequestStatusPending {
			respondWithError(c, http.StatusConflict, route, "quote request is closed")
			return
		}

		now := time.Now()
		estimate := models.Estimate{
			RequestID:     requestID,
			CenterID:      centerID,
			CenterName:    center.CenterName,
			EstimatedCost: estimateTotal(req.EstimatedCost, items),
			Details:       strings.TrimSpace(req.Details),
			Items:         items,
			Status:        models.EstimateStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}

		res, err := db.Collection("estimates").InsertOne(ctx, estimate)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusConflict, route, "estimate already submitted for this request")
				return
			}
			log.Println("[ESTIMATE] [ERROR] insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			estimate.ID = id
		}

		log.Println("[ESTIMATE] [INFO] estimate submitted:", estimate.ID.Hex())
		sendNotification(c.Request.Context(), db, nd, request.UserID,
			fmt.Sprintf("'%s'에서 새로운 견적을 보냈습니다.", center.CenterName),
			"/user/estimates/"+estimate.ID.Hex())

		c.JSON(http.StatusCreated, estimate)
	}
}

// UpdateEstimate lets the submitting center revise a still-pending estimate.
func UpdateEstimate(db *mongo.Database, nd *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/estimates/:id"
		defer handlePanic(c, route)

		centerID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		estimateID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid estimate id")
			return
		}

		var req updateEstimateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		items, err := buildEstimateItems(req.Items)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var estimate models.Estimate
		if err := db.Collection("estimates").FindOne(ctx, bson.M{"_id": estimateID}).Decode(&estimate); err != nil {
			respondWithError(c, http.StatusNotFound, route, "estimate not found")
			return
		}
		if status, msg := estimateUpdateError(estimate, centerID); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		// The status filter keeps a concurrent accept/reject from being
		// overwritten between the read above and this write.
		res, err := db.Collection("estimates").UpdateOne(ctx,
			bson.M{"_id": estimateID, "status": models.EstimateStatusPending},
			bson.M{"$set": bson.M{
				"estimatedCost": estimateTotal(req.EstimatedCost, items),
				"details":       strings.TrimSpace(req.Details),
				"items":         items,
				"updatedAt":     time.Now(),
			}},
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusConflict, route, "only pending estimates can be updated")
			return
		}

		var request models.QuoteRequest
		if err := db.Collection("quote_requests").FindOne(ctx, bson.M{"_id": estimate.RequestID}).Decode(&request); err == nil {
			sendNotification(c.Request.Context(), db, nd, request.UserID,
				fmt.Sprintf("'%s'에서 견적을 수정했습니다.", estimate.CenterName),
				"/user/estimates/"+estimateID.Hex())
		}

		c.JSON(http.StatusOK, gin.H{"id": estimateID.Hex(), "status": models.EstimateStatusPending})
	}
}

// AcceptEstimate is the user-driven PENDING -> ACCEPTED transition. The
// status flip, the closing of the parent request, the rejection of sibling
// estimates and the CompletedRepair snapshot commit in one transaction; the
// center is only notified after the commit, so a rolled-back accept never
// fires a misleading notification.
func AcceptEstimate(db *mongo.Database, nd *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/estimates/:id/accept"
		defer handlePanic(c, route)

		if err := ensureDBConnection(c.Request.Context(), db); err != nil {
			respondWithError(c, http.StatusServiceUnavailable, route, "database unavailable")
			return
		}

		userID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		estimateID, err := primitive.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid estimate id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
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
		if status, msg := userEstimateActionError(estimate, request, userID, "accepted"); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err != nil {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}

		session, err := db.Client().StartSession()
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer session.EndSession(ctx)

		_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
			// Status filters make each step conditional: a concurrent
			// transition loses here and surfaces as Conflict.
			res, err := db.Collection("estimates").UpdateOne(sessCtx,
				bson.M{"_id": estimateID, "status": models.EstimateStatusPending},
				bson.M{"$set": bson.M{"status": models.EstimateStatusAccepted, "updatedAt": time.Now()}},
			)
			if err != nil {
				return nil, err
			}
			if res.MatchedCount == 0 {
				return nil, estimateConflictError{Reason: "only pending estimates can be accepted"}
			}

			// Re-read inside the transaction: a revision committed after
			// the pre-check must not leave a stale cost in the snapshot.
			var accepted models.Estimate
			if err := db.Collection("estimates").FindOne(sessCtx, bson.M{"_id": estimateID}).Decode(&accepted); err != nil {
				return nil, err
			}

			res, err = db.Collection("quote_requests").UpdateOne(sessCtx,
				bson.M{"_id": request.ID, "status": models.RequestStatusPending},
				bson.M{"$set": bson.M{"status": models.RequestStatusCompleted}},
			)
			if err != nil {
				return nil, err
			}
			if res.MatchedCount == 0 {
				return nil, estimateConflictError{Reason: "quote request already completed"}
			}

			_, err = db.Collection("estimates").UpdateMany(sessCtx,
				bson.M{
					"requestId": request.ID,
					"status":    models.EstimateStatusPending,
					"_id":       bson.M{"$ne": estimateID},
				},
				bson.M{"$set": bson.M{"status": models.EstimateStatusRejected, "updatedAt": time.Now()}},
			)
			if err != nil {
				return nil, err
			}

			repair := newCompletedRepair(user, request, accepted)
			if _, err := db.Collection("completed_repairs").InsertOne(sessCtx, repair); err != nil {
				return nil, err
			}
			return nil, nil
		})
		if err != nil {
			var conflict estimateConflictError
			if errors.As(err, &conflict) {
				respondWithError(c, http.StatusConflict, route, conflict.Reason)
				return
			}
			log.Println("[ESTIMATE] [ERROR] accept transaction failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		log.Println("[ESTIMATE] [INFO] estimate accepted:", estimateID.Hex())
		sendNotification(c.Request.Context(), db, nd, estimate.CenterID,
			"회원님이 보내신 견적이 수락되었습니다. 수리를 진행해주세요.", "/center/repairs")

		c.JSON(http.StatusOK, gin.H{"id": estimateID.Hex(), "status": models.EstimateStatusAccepted})
	}
}

// RejectEstimate is the user-driven PENDING -> REJECTED transition.
func RejectEstimate(db *mongo.Database, nd *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /api/estimates/:id/reject"
		defer handlePanic(c, route)

		userID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		estimateID, err := primitive.ObjectIDFromHex(c.Param("id"))
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
		if status, msg := userEstimateActionError(estimate, request, userID, "rejected"); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		res, err := db.Collection("estimates").UpdateOne(ctx,
			bson.M{"_id": estimateID, "status": models.EstimateStatusPending},
			bson.M{"$set": bson.M{"status": models.EstimateStatusRejected, "updatedAt": time.Now()}},
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if res.MatchedCount == 0 {
			respondWithError(c, http.StatusConflict, route, "only pending estimates can be rejected")
			return
		}

		log.Println("[ESTIMATE] [INFO] estimate rejected:", estimateID.Hex())
		sendNotification(c.Request.Context(), db, nd, estimate.CenterID,
			fmt.Sprintf("회원님이 보내신 견적이 거절되었습니다. (견적 ID: %s)", estimateID.Hex()),
			"/center/estimates")

		c.JSON(http.StatusOK, gin.H{"id": estimateID.Hex(), "status": models.EstimateStatusRejected})
	}
}

// DeleteEstimate is the center-driven withdrawal. An accepted estimate has a
// completion record hanging off it and can no longer be withdrawn.
func DeleteEstimate(db *mongo.Database, nd *notify.Dispatcher) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/estimates/:id"
		defer handlePanic(c, route)

		centerID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		estimateID, err := primitive.ObjectIDFromHex(c.Param("id"))
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
		if status, msg := estimateWithdrawError(estimate, centerID); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		if _, err := db.Collection("estimates").DeleteOne(ctx, bson.M{"_id": estimateID}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		var request models.QuoteRequest
		if err := db.Collection("quote_requests").FindOne(ctx, bson.M{"_id": estimate.RequestID}).Decode(&request); err == nil {
			sendNotification(c.Request.Context(), db, nd, request.UserID,
				fmt.Sprintf("'%s'에서 견적을 취소했습니다.", estimate.CenterName),
				"/user/quote-requests/"+request.ID.Hex())
		}

		log.Println("[ESTIMATE] [INFO] estimate withdrawn:", estimateID.Hex())
		c.Status(http.StatusNoContent)
	}
}

// GetEstimate returns one estimate with its line items.
func GetEstimate(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/estimates/:id"
		defer handlePanic(c, route)

		estimateID, err := primitive.ObjectIDFromHex(c.Param("id"))
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

		c.JSON(http.StatusOK, estimate)
	}
}

// GetMyEstimates lists the calling center's submitted estimates.
func GetMyEstimates(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/estimates/my-estimates"
		defer handlePanic(c, route)

		centerID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		cursor, err := db.Collection("estimates").Find(ctx,
			bson.M{"centerId": centerID},
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		estimates := []models.Estimate{}
		if err := cursor.All(ctx, &estimates); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, estimates)
	}
}

// GetEstimatesForRequest lists all estimates on a request. Only the request
// owner may see them.
func GetEstimatesForRequest(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/estimates/request/:requestId"
		defer handlePanic(c, route)

		userID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		requestID, err := primitive.ObjectIDFromHex(c.Param("requestId"))
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid request id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var request models.QuoteRequest
		if err := db.Collection("quote_requests").FindOne(ctx, bson.M{"_id": requestID}).Decode(&request); err != nil {
			respondWithError(c, http.StatusNotFound, route, "quote request not found")
			return
		}
		if request.UserID != userID {
			respondWithError(c, http.StatusForbidden, route, "not your quote request")
			return
		}

		cursor, err := db.Collection("estimates").Find(ctx,
			bson.M{"requestId": requestID},
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		estimates := []models.Estimate{}
		if err := cursor.All(ctx, &estimates); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		c.JSON(http.StatusOK, estimates)
	}
}

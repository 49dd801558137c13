package handlers

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"carparter/internal/geo"
	"carparter/internal/middleware"
	"carparter/internal/models"
	"carparter/internal/notify"
	"carparter/internal/storage"
)

const maxRequestImages = 5

// CreateQuoteRequest opens a quote request for one of the caller's cars.
// Accepts multipart form data: carId, requestDetails, address and up to
// maxRequestImages image files. The address is geocoded best-effort and
// every active car center is notified.
func CreateQuoteRequest(db *mongo.Database, nd *notify.Dispatcher, geocoder geo.Geocoder, images storage.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /api/quote-requests"
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

		carIDValue := strings.TrimSpace(c.PostForm("carId"))
		details := strings.TrimSpace(c.PostForm("requestDetails"))
		address := strings.TrimSpace(c.PostForm("address"))
		if carIDValue == "" || details == "" || address == "" {
			respondWithError(c, http.StatusBadRequest, route, "carId, requestDetails and address are required")
			return
		}

		carID, err := primitive.ObjectIDFromHex(carIDValue)
		if err != nil {
			respondWithError(c, http.StatusBadRequest, route, "invalid car id")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		var user models.User
		if err := db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&user); err != nil {
			respondWithError(c, http.StatusNotFound, route, "user not found")
			return
		}
		car, ok := user.CarByID(carID)
		if !ok {
			respondWithError(c, http.StatusNotFound, route, "car not found")
			return
		}

		request := models.QuoteRequest{
			UserID:         userID,
			CarID:          car.ID,
			CarModel:       car.CarModel,
			CarNumber:      car.CarNumber,
			RequestDetails: details,
			Address:        address,
			Images:         []models.RequestImage{},
			Status:         models.RequestStatusPending,
			CreatedAt:      time.Now(),
		}

		// Location is an enrichment: on geocoding failure the request is
		// stored without coordinates.
		if geocoder != nil {
			coords, err := geocoder.Geocode(c.Request.Context(), address)
			if err != nil {
				log.Println("[REQUEST] [WARN] geocoding failed, storing without coordinates:", err)
			} else {
				request.Latitude = &coords.Latitude
				request.Longitude = &coords.Longitude
			}
		}

		if images != nil {
			form, err := c.MultipartForm()
			if err == nil && form != nil {
				files := form.File["images"]
				if len(files) > maxRequestImages {
					respondWithError(c, http.StatusBadRequest, route, "too many images")
					return
				}
				for _, file := range files {
					src, err := file.Open()
					if err != nil {
						log.Println("[REQUEST] [WARN] skipping unreadable image:", err)
						continue
					}
					objectKey := "requests/" + uuid.NewString() + filepath.Ext(file.Filename)
					url, err := images.Upload(ctx, objectKey, src, file.Size, file.Header.Get("Content-Type"))
					src.Close()
					if err != nil {
						log.Println("[REQUEST] [WARN] image upload failed:", err)
						continue
					}
					request.Images = append(request.Images, models.RequestImage{ObjectKey: objectKey, URL: url})
				}
			}
		}

		res, err := db.Collection("quote_requests").InsertOne(ctx, request)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				respondWithError(c, http.StatusConflict, route, "an open quote request already exists")
				return
			}
			log.Println("[REQUEST] [ERROR] insert failed:", err)
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		if id, ok := res.InsertedID.(primitive.ObjectID); ok {
			request.ID = id
		}

		log.Println("[REQUEST] [INFO] quote request created:", request.ID.Hex())
		notifyActiveCenters(c.Request.Context(), db, nd,
			"새로운 견적 요청이 등록되었습니다: "+details, "/center/requests/"+request.ID.Hex())

		c.JSON(http.StatusCreated, request)
	}
}

// notifyActiveCenters fans a notification out to every approved car center.
// Best-effort: a failure here never fails the creating request.
func notifyActiveCenters(ctx context.Context, db *mongo.Database, nd *notify.Dispatcher, message, url string) {
	findCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cursor, err := db.Collection("carcenters").Find(findCtx,
		bson.M{"status": models.CenterStatusActive},
		options.Find().SetProjection(bson.M{"_id": 1}),
	)
	if err != nil {
		log.Println("[REQUEST] [ERROR] could not list centers to notify:", err)
		return
	}
	defer cursor.Close(findCtx)

	for cursor.Next(findCtx) {
		var center struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cursor.Decode(&center); err != nil {
			continue
		}
		sendNotification(ctx, db, nd, center.ID, message, url)
	}
}

// GetMyQuoteRequest returns the caller's open quote request, if any, with
// the number of estimates received so far.
// quoteRequestViewError checks read access to a single request. Car centers
// may inspect any request (they estimate against them); a user sees only
// their own.
func quoteRequestViewError(request models.QuoteRequest, principalID primitive.ObjectID, role string) (int, string) {
	if role == middleware.RoleCarCenter {
		return 0, ""
	}
	if role == middleware.RoleUser && request.UserID == principalID {
		return 0, ""
	}
	return http.StatusForbidden, "not your quote request"
}

// withFreshImageURLs fills in short-lived links for images stored in a
// bucket without a public base URL. Stored public URLs pass through as-is.
func withFreshImageURLs(ctx context.Context, store storage.ImageStore, images []models.RequestImage) []models.RequestImage {
	if store == nil {
		return images
	}
	out := make([]models.RequestImage, len(images))
	copy(out, images)
	for i := range out {
		if out[i].URL != "" {
			continue
		}
		link, err := store.PresignedURL(ctx, out[i].ObjectKey, time.Hour)
		if err != nil {
			log.Println("[REQUEST] [WARN] presign failed:", err)
			continue
		}
		out[i].URL = link
	}
	return out
}

func GetMyQuoteRequest(db *mongo.Database, images storage.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/quote-requests/my"
		defer handlePanic(c, route)

		userID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		var request models.QuoteRequest
		err := db.Collection("quote_requests").FindOne(ctx, bson.M{
			"userId": userID,
			"status": models.RequestStatusPending,
		}).Decode(&request)
		if err == mongo.ErrNoDocuments {
			respondWithError(c, http.StatusNotFound, route, "no open quote request")
			return
		}
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		count, err := db.Collection("estimates").CountDocuments(ctx, bson.M{"requestId": request.ID})
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		request.Images = withFreshImageURLs(ctx, images, request.Images)
		c.JSON(http.StatusOK, gin.H{"request": request, "estimateCount": count})
	}
}

// ListAvailableQuoteRequests lists open requests for car centers, each with
// its estimate count and whether the calling center already responded.
func ListAvailableQuoteRequests(db *mongo.Database) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/quote-requests"
		defer handlePanic(c, route)

		centerID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
		defer cancel()

		cursor, err := db.Collection("quote_requests").Find(ctx,
			bson.M{"status": models.RequestStatusPending},
			options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
		)
		if err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}
		defer cursor.Close(ctx)

		requests := []models.QuoteRequest{}
		if err := cursor.All(ctx, &requests); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		views := make([]gin.H, 0, len(requests))
		for _, request := range requests {
			count, err := db.Collection("estimates").CountDocuments(ctx, bson.M{"requestId": request.ID})
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "db error")
				return
			}
			mine, err := db.Collection("estimates").CountDocuments(ctx, bson.M{
				"requestId": request.ID,
				"centerId":  centerID,
			})
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "db error")
				return
			}
			views = append(views, gin.H{
				"request":              request,
				"estimateCount":        count,
				"alreadyEstimatedByMe": mine > 0,
			})
		}

		c.JSON(http.StatusOK, views)
	}
}

// GetQuoteRequest returns one request's detail. Car centers may inspect any
// request; users only their own.
func GetQuoteRequest(db *mongo.Database, images storage.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /api/quote-requests/:id"
		defer handlePanic(c, route)

		principalID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
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
		if status, msg := quoteRequestViewError(request, principalID, middleware.Role(c)); status != 0 {
			respondWithError(c, status, route, msg)
			return
		}

		request.Images = withFreshImageURLs(ctx, images, request.Images)

		if middleware.Role(c) == middleware.RoleCarCenter {
			mine, err := db.Collection("estimates").CountDocuments(ctx, bson.M{
				"requestId": requestID,
				"centerId":  principalID,
			})
			if err != nil {
				respondWithError(c, http.StatusInternalServerError, route, "db error")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"request":              request,
				"alreadyEstimatedByMe": mine > 0,
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"request": request})
	}
}

// DeleteQuoteRequest removes the caller's request along with its uploaded
// images. Image cleanup is best-effort.
func DeleteQuoteRequest(db *mongo.Database, images storage.ImageStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /api/quote-requests/:id"
		defer handlePanic(c, route)

		userID, ok := middleware.PrincipalID(c)
		if !ok {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}

		requestID, err := primitive.ObjectIDFromHex(c.Param("id"))
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
		if request.Status == models.RequestStatusCompleted {
			respondWithError(c, http.StatusConflict, route, "completed requests cannot be deleted")
			return
		}

		if _, err := db.Collection("quote_requests").DeleteOne(ctx, bson.M{"_id": requestID}); err != nil {
			respondWithError(c, http.StatusInternalServerError, route, "db error")
			return
		}

		if images != nil {
			for _, image := range request.Images {
				if err := images.Delete(ctx, image.ObjectKey); err != nil {
					log.Println("[REQUEST] [WARN] image cleanup failed:", err)
				}
			}
		}

		c.Status(http.StatusNoContent)
	}
}

package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"carparter/internal/chat"
	"carparter/internal/config"
	"carparter/internal/database"
	"carparter/internal/geo"
	"carparter/internal/handlers"
	"carparter/internal/middleware"
	"carparter/internal/notify"
	"carparter/internal/storage"
)

func main() {
	config.Load()

	client, err := database.Connect(config.AppEnv.MongoURI)
	if err != nil {
		log.Fatal(err)
	}

	db := client.Database(config.AppEnv.DBName)

	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureUserIndexes(db); err != nil {
		log.Println("⚠️ user index warning:", err)
	}
	if err := database.EnsureCarCenterIndexes(db); err != nil {
		log.Println("⚠️ car center index warning:", err)
	}
	if err := database.EnsureQuoteRequestIndexes(db); err != nil {
		log.Println("⚠️ quote request index warning:", err)
	}
	if err := database.EnsureEstimateIndexes(db); err != nil {
		log.Println("⚠️ estimate index warning:", err)
	}
	if err := database.EnsureCompletedRepairIndexes(db); err != nil {
		log.Println("⚠️ repair index warning:", err)
	}
	if err := database.EnsureChatIndexes(db); err != nil {
		log.Println("⚠️ chat index warning:", err)
	}
	if err := database.EnsureNotificationIndexes(db); err != nil {
		log.Println("⚠️ notification index warning:", err)
	}

	if err := handlers.EnsureAdminAccount(db, config.AppEnv.AdminEmail, config.AppEnv.AdminPassword); err != nil {
		log.Println("⚠️ admin account warning:", err)
	}

	var rdb *redis.Client
	if config.AppEnv.RedisURL != "" {
		opts, err := redis.ParseURL(config.AppEnv.RedisURL)
		if err != nil {
			log.Fatal("invalid REDIS_URL: ", err)
		}
		rdb = redis.NewClient(opts)
	} else {
		log.Println("⚠️ REDIS_URL not set, notifications stay instance local")
	}

	dispatcher := notify.NewDispatcher(rdb)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go dispatcher.Run(ctx)
	defer dispatcher.Close()

	hub := chat.NewHub()

	var geocoder geo.Geocoder
	if config.AppEnv.KakaoAPIKey != "" {
		geocoder = geo.NewKakaoClient(config.AppEnv.KakaoAPIKey, config.AppEnv.KakaoBaseURL)
	} else {
		log.Println("⚠️ KAKAO_API_KEY not set, addresses will not be geocoded")
	}

	var images storage.ImageStore
	if config.AppEnv.MinioEndpoint != "" {
		store, err := storage.NewMinioStore(
			config.AppEnv.MinioEndpoint,
			config.AppEnv.MinioAccessKey,
			config.AppEnv.MinioSecretKey,
			config.AppEnv.MinioBucket,
			config.AppEnv.MinioPublicURL,
		)
		if err != nil {
			log.Fatal("minio init failed: ", err)
		}
		images = store
	} else {
		log.Println("⚠️ MINIO_ENDPOINT not set, request images disabled")
	}

	secret := config.AppEnv.JWTSecret
	accessTTL := config.AppEnv.AccessTokenTTL

	r := gin.Default()

	r.POST("/api/auth/register", handlers.RegisterUser(db))
	r.POST("/api/auth/login", handlers.LoginUser(db, secret, accessTTL))

	r.POST("/api/centers/register", handlers.RegisterCarCenter(db, geocoder))
	r.POST("/api/centers/login", handlers.LoginCarCenter(db, secret, accessTTL))
	r.GET("/api/centers/:id", handlers.GetCarCenter(db))

	r.POST("/api/admin/login", handlers.LoginAdmin(db, secret, accessTTL))

	admin := r.Group("/api/admin", middleware.AuthGuard(secret, middleware.RoleAdmin))
	{
		admin.GET("/centers", handlers.ListCarCenters(db))
		admin.PUT("/centers/:id/approval", handlers.SetCenterApproval(db, dispatcher))
	}

	users := r.Group("/api/users", middleware.AuthGuard(secret, middleware.RoleUser))
	{
		users.GET("/me", handlers.GetMe(db))
		users.POST("/me/cars", handlers.AddUserCar(db))
		users.DELETE("/me/cars/:carId", handlers.DeleteUserCar(db))
		users.DELETE("/me", handlers.WithdrawUser(db))
	}

	requests := r.Group("/api/quote-requests", middleware.AuthGuard(secret, middleware.RoleUser, middleware.RoleCarCenter))
	{
		requests.POST("", middleware.AuthGuard(secret, middleware.RoleUser), handlers.CreateQuoteRequest(db, dispatcher, geocoder, images))
		requests.GET("", middleware.AuthGuard(secret, middleware.RoleCarCenter), handlers.ListAvailableQuoteRequests(db))
		requests.GET("/my", middleware.AuthGuard(secret, middleware.RoleUser), handlers.GetMyQuoteRequest(db, images))
		requests.GET("/:id", handlers.GetQuoteRequest(db, images))
		requests.DELETE("/:id", middleware.AuthGuard(secret, middleware.RoleUser), handlers.DeleteQuoteRequest(db, images))
	}

	estimates := r.Group("/api/estimates", middleware.AuthGuard(secret, middleware.RoleUser, middleware.RoleCarCenter))
	{
		estimates.POST("", middleware.AuthGuard(secret, middleware.RoleCarCenter), handlers.SubmitEstimate(db, dispatcher))
		estimates.GET("/my-estimates", middleware.AuthGuard(secret, middleware.RoleCarCenter), handlers.GetMyEstimates(db))
		estimates.GET("/request/:requestId", middleware.AuthGuard(secret, middleware.RoleUser), handlers.GetEstimatesForRequest(db))
		estimates.GET("/:id", handlers.GetEstimate(db))
		estimates.PUT("/:id", middleware.AuthGuard(secret, middleware.RoleCarCenter), handlers.UpdateEstimate(db, dispatcher))
		estimates.PUT("/:id/accept", middleware.AuthGuard(secret, middleware.RoleUser), handlers.AcceptEstimate(db, dispatcher))
		estimates.PUT("/:id/reject", middleware.AuthGuard(secret, middleware.RoleUser), handlers.RejectEstimate(db, dispatcher))
		estimates.DELETE("/:id", middleware.AuthGuard(secret, middleware.RoleCarCenter), handlers.DeleteEstimate(db, dispatcher))
	}

	repairs := r.Group("/api/repairs", middleware.AuthGuard(secret, middleware.RoleUser, middleware.RoleCarCenter))
	{
		repairs.GET("", handlers.ListRepairs(db))
		repairs.GET("/:id", handlers.GetRepair(db))
		repairs.PUT("/:id/complete", middleware.AuthGuard(secret, middleware.RoleCarCenter), handlers.CompleteRepair(db, dispatcher))
	}

	chatRoutes := r.Group("/api/chat", middleware.AuthGuard(secret, middleware.RoleUser, middleware.RoleCarCenter))
	{
		chatRoutes.POST("/rooms", handlers.FindOrCreateRoom(db))
		chatRoutes.GET("/rooms", handlers.ListChatRooms(db))
		chatRoutes.POST("/rooms/:roomId/messages", handlers.SendMessage(db, hub, dispatcher))
		chatRoutes.GET("/history/:roomId", handlers.GetChatHistory(db))
		chatRoutes.GET("/rooms/:roomId/stream", handlers.StreamRoom(db, hub, config.AppEnv.SubscribeTTL))
	}

	notifications := r.Group("/api/notifications", middleware.AuthGuard(secret, middleware.RoleUser, middleware.RoleCarCenter))
	{
		notifications.GET("/subscribe", handlers.SubscribeNotifications(dispatcher, config.AppEnv.SubscribeTTL))
		notifications.GET("", handlers.GetNotifications(db))
		notifications.GET("/unread-count", handlers.GetUnreadCount(db))
		notifications.PUT("/:id/read", handlers.MarkNotificationRead(db))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	r.Run(":" + port)
}

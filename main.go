package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/scholarchat/chat_backend/auth"
	"github.com/scholarchat/chat_backend/chat"
	"github.com/scholarchat/chat_backend/config"
	"github.com/scholarchat/chat_backend/controllers"
	"github.com/scholarchat/chat_backend/database"
	"github.com/scholarchat/chat_backend/logger"
	"github.com/scholarchat/chat_backend/middleware"
	"github.com/scholarchat/chat_backend/store"
	"github.com/scholarchat/chat_backend/websocket"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		zlog.Fatal("database connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zlog.Fatal("database migration failed", zap.Error(err))
	}
	zlog.Info("database connection established")

	users := store.NewGormUserStore(db)
	groups := store.NewGormGroupStore(db)
	messages := store.NewGormMessageStore(db)

	tokens := auth.NewTokenManager(cfg.JWT.Secret, time.Duration(cfg.JWT.ExpireHours)*time.Hour)

	hub := websocket.NewHub(zlog)
	go hub.Run()

	chatService := chat.NewService(groups, messages, hub, zlog)

	authController := controllers.NewAuthController(users, tokens)
	groupController := controllers.NewGroupController(chatService)
	messageController := controllers.NewMessageController(chatService)
	wsHandler := websocket.NewHandler(hub, chatService, tokens, zlog)

	gin.SetMode(cfg.Server.Mode)
	router := gin.Default()

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Authentication routes
	public := router.Group("/api")
	{
		public.POST("/register", authController.Register)
		public.POST("/login", authController.Login)
	}

	// Protected routes
	api := router.Group("/api")
	api.Use(middleware.JWTAuth(tokens))
	{
		// Group routes
		api.GET("/groups", groupController.GetGroups)
		api.POST("/groups", groupController.CreateGroup)
		api.GET("/groups/:id", groupController.GetGroup)
		api.POST("/groups/:id/join", groupController.JoinGroup)
		api.GET("/groups/:id/members", groupController.GetMembers)
		api.DELETE("/groups/:id", groupController.DeleteGroup)

		// Message routes
		api.GET("/groups/:id/messages", messageController.GetMessages)
		api.POST("/groups/:id/messages", messageController.CreateMessage)
	}

	// WebSocket route
	router.GET("/ws", middleware.JWTAuth(tokens), wsHandler.HandleConnection)

	zlog.Info("server starting", zap.String("port", cfg.Server.Port))
	if err := router.Run(":" + cfg.Server.Port); err != nil {
		zlog.Fatal("server failed", zap.Error(err))
	}
}

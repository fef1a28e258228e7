package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"knowchat/internal/ai"
	"knowchat/internal/analysis"
	"knowchat/internal/answer"
	appsvc "knowchat/internal/app"
	"knowchat/internal/bootstrap"
	"knowchat/internal/cache"
	rabbitmqClient "knowchat/internal/platform/rabbitmq"
	"knowchat/internal/repository"
	"knowchat/internal/transport/http/handler"
	"knowchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	memberRepo := repository.NewMemberRepository(app.MySQL)
	companyRepo := repository.NewCompanyRepository(app.MySQL)
	teamRepo := repository.NewTeamRepository(app.MySQL)
	threadRepo := repository.NewThreadRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	sourceRepo := repository.NewSourceRepository(app.MySQL)

	llmCfg := ai.ChatConfig{
		BaseURL: app.Config.LLM.BaseURL,
		APIKey:  app.Config.LLM.APIKey,
		Model:   app.Config.LLM.Model,
	}
	llmClient := ai.NewClient()
	pipeline := analysis.NewPipeline(llmClient, llmCfg)
	engine := answer.NewEngine(llmClient, llmCfg)

	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	publisher := rabbitmqClient.NewMessagePublisher(app.MQConn, app.Config.RabbitMQ.MessagePersistQueue)

	authService := appsvc.NewAuthService(
		memberRepo,
		companyRepo,
		teamRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	orgService := appsvc.NewOrgService(memberRepo, teamRepo)
	knowledgeService := appsvc.NewKnowledgeService(sourceRepo, threadRepo, teamRepo, app.Blobs, pipeline, app.Watch)
	threadService := appsvc.NewThreadService(
		threadRepo,
		teamRepo,
		messageRepo,
		sourceRepo,
		publisher,
		historyCache,
		engine,
		app.Watch,
	)

	authHandler := handler.NewAuthHandler(authService)
	teamHandler := handler.NewTeamHandler(orgService)
	sourceHandler := handler.NewSourceHandler(knowledgeService, threadService, app.Watch)
	threadHandler := handler.NewThreadHandler(threadService, knowledgeService)
	chatHandler := handler.NewChatHandler(threadService)

	v1 := router.Group("/api/v1")
	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(app.Config.Auth.JWTSecret), authHandler.Me)

	authed := v1.Group("")
	authed.Use(middleware.AuthJWT(app.Config.Auth.JWTSecret))

	sourceGroup := authed.Group("/sources")
	sourceGroup.POST("/pdf", sourceHandler.UploadPDF)
	sourceGroup.POST("/text", sourceHandler.AddText)
	sourceGroup.POST("/url", sourceHandler.AddURL)
	sourceGroup.GET("", sourceHandler.List)
	sourceGroup.GET("/watch", sourceHandler.Watch)
	sourceGroup.DELETE("/:id", sourceHandler.Delete)

	threadGroup := authed.Group("/threads")
	threadGroup.POST("", threadHandler.Create)
	threadGroup.GET("", threadHandler.List)

	chatGroup := authed.Group("/chat")
	chatGroup.POST("/ask", chatHandler.Ask)
	chatGroup.GET("/history", chatHandler.History)

	teamGroup := authed.Group("/teams")
	teamGroup.POST("", teamHandler.Create)
	teamGroup.GET("", teamHandler.List)
	teamGroup.POST("/invites", teamHandler.CreateInvite)
	teamGroup.GET("/members", teamHandler.ListMembers)

	return router
}

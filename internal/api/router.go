package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rebinmas/printserver/internal/api/handlers"
	"github.com/rebinmas/printserver/internal/api/middleware"
)

type Dependencies struct {
	Logger   *slog.Logger
	Auth     *middleware.AuthMiddleware
	Jobs     *handlers.JobHandler
	Printers *handlers.PrinterHandler
	Files    *handlers.FileHandler
	Webhooks *handlers.WebhookHandler
	Settings *handlers.SettingsHandler
}

func NewRouter(deps *Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(requestLogger(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "printserver"})
	})

	auth := r.Group("/api/auth")
	{
		auth.POST("/setup", deps.Auth.SetupHandler)
		auth.POST("/login", deps.Auth.LoginHandler)
		auth.POST("/logout", deps.Auth.LogoutHandler)
		auth.GET("/status", deps.Auth.StatusHandler)
	}

	api := r.Group("/api")
	api.Use(deps.Auth.RequireAuth())
	{
		jobs := api.Group("/jobs")
		{
			jobs.POST("", deps.Jobs.CreateJob)
			jobs.GET("", deps.Jobs.ListJobs)
			jobs.GET("/history", deps.Jobs.GetHistory)
			jobs.GET("/:id", deps.Jobs.GetJob)
			jobs.POST("/:id/cancel", deps.Jobs.CancelJob)
			jobs.POST("/:id/retry", deps.Jobs.RetryJob)
		}

		printers := api.Group("/printers")
		{
			printers.GET("", deps.Printers.ListPrinters)
			printers.POST("", deps.Printers.CreatePrinter)
			printers.GET("/:id", deps.Printers.GetPrinter)
			printers.GET("/:id/status", deps.Printers.GetPrinterStatus)
			printers.PUT("/:id", deps.Printers.UpdatePrinter)
			printers.DELETE("/:id", deps.Printers.DeletePrinter)
		}

		files := api.Group("/files")
		{
			files.POST("", deps.Files.UploadFile)
			files.DELETE("/:id", deps.Files.DeleteFile)
		}

		webhooks := api.Group("/webhooks")
		{
			webhooks.GET("", deps.Webhooks.ListWebhooks)
			webhooks.POST("", deps.Webhooks.CreateWebhook)
			webhooks.GET("/:id", deps.Webhooks.GetWebhook)
			webhooks.PUT("/:id", deps.Webhooks.UpdateWebhook)
			webhooks.DELETE("/:id", deps.Webhooks.DeleteWebhook)
		}

		settings := api.Group("/settings")
		{
			settings.GET("/limits", deps.Settings.GetLimits)
			settings.GET("/default-printer", deps.Settings.GetDefaultPrinter)
			settings.PUT("/default-printer", deps.Settings.SetDefaultPrinter)
			settings.DELETE("/default-printer", deps.Settings.ClearDefaultPrinter)
		}
	}

	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("http request",
			slog.Int("status", c.Writer.Status()),
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("ip", c.ClientIP()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}

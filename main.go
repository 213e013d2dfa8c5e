package main

import (
	"log"

	"github.com/aquaparkhq/booking-backend/config"
	"github.com/aquaparkhq/booking-backend/internal/gateway"
	"github.com/aquaparkhq/booking-backend/internal/handler"
	"github.com/aquaparkhq/booking-backend/internal/middleware"
	"github.com/aquaparkhq/booking-backend/internal/notification"
	"github.com/aquaparkhq/booking-backend/internal/repository"
	"github.com/aquaparkhq/booking-backend/internal/service"
	"github.com/aquaparkhq/booking-backend/pkg/cache"
	"github.com/aquaparkhq/booking-backend/pkg/database"
	"github.com/aquaparkhq/booking-backend/pkg/rabbitmq"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
)

func main() {
	cfg := config.Load()

	db := database.NewPostgresDB(cfg.DSN())

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	rdb := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword)

	// Repositories
	bookingRepo := repository.NewBookingRepository(db)
	sequenceRepo := repository.NewSequenceRepository(db)
	webhookRepo := repository.NewWebhookEventRepository(db)

	// Gateway client + notification dispatcher
	gw := gateway.NewClient(gateway.Config{
		BaseURL:       cfg.GatewayBaseURL,
		ClientID:      cfg.GatewayClientID,
		ClientSecret:  cfg.GatewayClientSecret,
		ClientVersion: cfg.GatewayClientVersion,
		Timeout:       cfg.GatewayTimeout,
	})
	dispatcher := notification.NewAMQPDispatcher(publisher)

	// Service
	bookingSvc := service.NewBookingService(bookingRepo, sequenceRepo, webhookRepo, gw, dispatcher, cfg.WebhookSecret)

	// Echo
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			log.Printf("%s %s %d", v.Method, v.URI, v.Status)
			return nil
		},
	}))
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok", "service": "booking-backend"})
	})

	pollLimiter := middleware.RateLimit(rdb, cfg.PollRateLimit, cfg.PollRateWindow)
	handler.NewBookingHandler(bookingSvc).RegisterRoutes(e, pollLimiter)

	log.Printf("Booking backend starting on :%s", cfg.ServerPort)
	e.Logger.Fatal(e.Start(":" + cfg.ServerPort))
}

// README: Entry point; loads config, wires services, starts HTTP server and background workers.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"rxflow/internal/config"
	"rxflow/internal/events"
	httptransport "rxflow/internal/http"
	"rxflow/internal/infra"
	"rxflow/internal/maps"
	"rxflow/internal/modules/delivery"
	"rxflow/internal/modules/notification"
	"rxflow/internal/modules/order"
	"rxflow/internal/modules/realtime"
	"rxflow/internal/modules/user"
	"rxflow/internal/modules/zone"
	"rxflow/internal/types"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load(os.Getenv("RXFLOW_CONFIG_FILE"))
	if err != nil {
		log.Fatal(err)
	}
	logger, err := infra.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("rxflow-api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("starting rxflow-api", zap.Stringer("config", cfg))

	verifier, err := newVerifier(ctx, cfg)
	if err != nil {
		return err
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	if err := infra.EnsureSchema(ctx, dbPool); err != nil {
		return err
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	defer redisClient.Close()

	mongoClient, err := infra.NewMongo(ctx, cfg.Mongo.URI)
	if err != nil {
		return err
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	auditor := notification.NewMongoAuditor(mongoClient.Database(cfg.Mongo.Database), cfg.Mongo.AuditCollection)
	if err := auditor.EnsureIndexes(ctx); err != nil {
		logger.Warn("notification audit indexes", zap.Error(err))
	}

	bus := events.NewBus(cfg.Events.BufferSize, logger.Named("events"))
	registry := realtime.NewRegistry()
	broadcaster := realtime.NewBroadcaster(registry, logger.Named("realtime"))

	orderStore := order.NewStore(dbPool)
	orderSvc := order.NewService(orderStore, order.NewRedisSequence(redisClient, orderStore), broadcaster, bus, logger.Named("order"))

	var distance zone.DistanceProvider = zone.HaversineDistance{}
	var geocoder delivery.Geocoder
	var travel delivery.TravelEstimator
	if cfg.Maps.APIKey != "" {
		routes, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			return err
		}
		distance = routes
		travel = routes
		geo, err := maps.NewGeocodeService(cfg.Maps.APIKey, cfg.Maps.Region)
		if err != nil {
			return err
		}
		geocoder = geo
	}
	zoneSvc := zone.NewService(zone.NewStore(dbPool), distance, logger.Named("zone"))

	deliveryDeps := delivery.Deps{
		Orders:    orderSvc,
		Zones:     zoneSvc,
		Tracker:   delivery.NewRedisTracker(redisClient),
		Publisher: bus,
		Logger:    logger.Named("delivery"),
	}
	if geocoder != nil {
		deliveryDeps.Geocoder = geocoder
	}
	if travel != nil {
		deliveryDeps.Travel = travel
	}
	deliverySvc := delivery.NewService(delivery.NewStore(dbPool), deliveryDeps)

	users := user.NewStore(dbPool)
	notificationSvc := notification.NewService(notification.NewStore(dbPool), notification.Config{
		Enabled:        cfg.Notifications.Enabled,
		SystemSenderID: types.ID(cfg.Notifications.SystemSenderID),
		Workers:        cfg.Notifications.Workers,
	}, notification.Deps{
		Directory: users,
		Senders:   newSenders(cfg),
		Auditor:   auditor,
		Orders:    orderSvc,
		Logger:    logger.Named("notification"),
	})
	notification.NewEventHandler(notificationSvc).Register(bus)

	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httptransport.NewRouter(httptransport.RouterDeps{
			Verifier:     verifier,
			Order:        orderSvc,
			Delivery:     deliverySvc,
			Zone:         zoneSvc,
			Notification: notificationSvc,
			Users:        users,
			Registry:     registry,
			Logger:       logger.Named("http"),
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go bus.Run(ctx)
	go notificationSvc.RunScheduler(ctx, cfg.Notifications.ScheduleInterval)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if n := bus.Drain(shutdownCtx); n > 0 {
		logger.Info("drained pending events", zap.Int("count", n))
	}
	return nil
}

// newVerifier prefers Firebase when a project is configured and falls back to HS256 JWTs.
func newVerifier(ctx context.Context, cfg config.Config) (infra.TokenVerifier, error) {
	if cfg.Firebase.ProjectID != "" {
		return infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
	}
	return infra.NewJWTVerifier(cfg.Auth.JWTSecret)
}

func newSenders(cfg config.Config) map[notification.Channel]notification.Sender {
	senders := map[notification.Channel]notification.Sender{}
	if cfg.WhatsApp.Token != "" && cfg.WhatsApp.PhoneNumberID != "" {
		senders[notification.ChannelWhatsApp] = notification.NewWhatsAppSender(notification.WhatsAppConfig{
			APIURL:        cfg.WhatsApp.APIURL,
			PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
			Token:         cfg.WhatsApp.Token,
			Timeout:       cfg.WhatsApp.Timeout,
		})
	}
	if cfg.SMTP.Host != "" {
		senders[notification.ChannelEmail] = notification.NewEmailSender(notification.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
		})
	}
	return senders
}

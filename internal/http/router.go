// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rxflow/internal/http/handlers"
	"rxflow/internal/http/middleware"
	"rxflow/internal/infra"
	"rxflow/internal/modules/delivery"
	"rxflow/internal/modules/notification"
	"rxflow/internal/modules/order"
	"rxflow/internal/modules/realtime"
	"rxflow/internal/modules/user"
	"rxflow/internal/modules/zone"
)

const (
	roleAdmin    = string(user.RoleAdmin)
	roleStaff    = string(user.RolePharmacyStaff)
	roleOfficer  = string(user.RoleDeliveryOfficer)
	roleCustomer = string(user.RoleCustomer)
	roleDoctor   = string(user.RoleDoctor)
)

type RouterDeps struct {
	Verifier     infra.TokenVerifier
	Order        *order.Service
	Delivery     *delivery.Service
	Zone         *zone.Service
	Notification *notification.Service
	Users        handlers.ContactStore
	Registry     *realtime.Registry
	Logger       *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(middleware.Logging(logger), middleware.Recovery(logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	socketHandler := handlers.NewSocketHandler(deps.Registry, logger)
	r.GET("/ws", middleware.SocketAuth(deps.Verifier), socketHandler.Connect)

	api := r.Group("/api", middleware.Auth(deps.Verifier))
	roles := middleware.RequireRoles

	orderHandler := handlers.NewOrderHandler(deps.Order)
	api.POST("/orders", roles(roleCustomer, roleDoctor, roleAdmin), orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.PATCH("/orders/:id", roles(roleAdmin, roleStaff), orderHandler.Update)
	api.DELETE("/orders/:id", roles(roleAdmin), orderHandler.Delete)
	api.PUT("/orders/:id/status", roles(roleAdmin, roleStaff, roleOfficer), orderHandler.UpdateStatus)

	deliveryHandler := handlers.NewDeliveryHandler(deps.Delivery)
	api.POST("/deliveries", roles(roleAdmin, roleStaff), deliveryHandler.Create)
	api.GET("/deliveries/:id", roles(roleAdmin, roleStaff), deliveryHandler.Get)
	api.DELETE("/deliveries/:id", roles(roleAdmin, roleStaff), deliveryHandler.Delete)
	api.PUT("/deliveries/:id/status", roles(roleAdmin, roleStaff, roleOfficer), deliveryHandler.UpdateStatus)
	api.POST("/deliveries/:id/location", roles(roleOfficer, roleAdmin), deliveryHandler.AppendLocation)
	api.POST("/deliveries/:id/feedback", roles(roleCustomer, roleAdmin), deliveryHandler.Feedback)
	api.GET("/officers/nearby", roles(roleAdmin, roleStaff), deliveryHandler.NearbyOfficers)

	zoneHandler := handlers.NewZoneHandler(deps.Zone)
	api.POST("/zones", roles(roleAdmin), zoneHandler.Create)
	api.POST("/zones/locate", zoneHandler.Locate)
	api.GET("/zones/:id", zoneHandler.Get)
	api.POST("/zones/:id/price", zoneHandler.Price)
	api.POST("/zones/:id/quote", zoneHandler.Quote)
	api.POST("/zones/:id/validate", zoneHandler.ValidateAddress)

	notificationHandler := handlers.NewNotificationHandler(deps.Notification)
	api.POST("/notifications", roles(roleAdmin, roleStaff), notificationHandler.Create)
	api.POST("/notifications/process", roles(roleAdmin), notificationHandler.Process)
	api.GET("/notifications/:id", notificationHandler.Get)
	api.GET("/notifications/:id/history", roles(roleAdmin), notificationHandler.History)
	api.POST("/orders/:id/notify", roles(roleAdmin, roleStaff), notificationHandler.OrderMessage)

	userHandler := handlers.NewUserHandler(deps.Users)
	api.PUT("/users/:id", roles(roleAdmin), userHandler.Upsert)
	api.GET("/users/:id", roles(roleAdmin), userHandler.Get)

	return r
}

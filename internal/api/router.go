package api

import (
	"database/sql"
	"net/http"

	"github.com/erazemk/tiskarna/internal/model"
	"github.com/erazemk/tiskarna/internal/reserve"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, engine *reserve.Engine, jwtSecret string) http.Handler {
	mux := http.NewServeMux()

	authHandler := &AuthHandler{DB: db, JWTSecret: jwtSecret}
	usersHandler := &UsersHandler{DB: db}
	materialsHandler := &MaterialsHandler{DB: db, Engine: engine}
	reservationsHandler := &ReservationsHandler{Engine: engine}
	alertsHandler := &AlertsHandler{DB: db}

	authMW := AuthMiddleware(jwtSecret, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireManager := RequireRole(model.RoleManager)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Materials: read (all roles), write (manager+).
	mux.Handle("GET /api/materials", authMW(http.HandlerFunc(materialsHandler.List)))
	mux.Handle("POST /api/materials", authMW(requireManager(http.HandlerFunc(materialsHandler.Create))))
	mux.Handle("GET /api/materials/{id}", authMW(http.HandlerFunc(materialsHandler.Get)))
	mux.Handle("PUT /api/materials/{id}", authMW(requireManager(http.HandlerFunc(materialsHandler.Update))))
	mux.Handle("DELETE /api/materials/{id}", authMW(requireManager(http.HandlerFunc(materialsHandler.Delete))))
	mux.Handle("GET /api/materials/{id}/availability", authMW(http.HandlerFunc(materialsHandler.GetAvailability)))
	mux.Handle("POST /api/materials/{id}/stock", authMW(requireManager(http.HandlerFunc(materialsHandler.AddStock))))
	mux.Handle("PUT /api/materials/{id}/image", authMW(requireManager(http.HandlerFunc(materialsHandler.UploadImage))))
	mux.Handle("GET /api/materials/{id}/image", authMW(http.HandlerFunc(materialsHandler.GetImage)))

	// Reservations (all roles create/manage their holds; fulfillment and
	// maintenance are manager+).
	mux.Handle("POST /api/reservations", authMW(http.HandlerFunc(reservationsHandler.Create)))
	mux.Handle("GET /api/reservations", authMW(http.HandlerFunc(reservationsHandler.List)))
	mux.Handle("GET /api/reservations/{id}", authMW(http.HandlerFunc(reservationsHandler.Get)))
	mux.Handle("PUT /api/reservations/{id}", authMW(http.HandlerFunc(reservationsHandler.Update)))
	mux.Handle("POST /api/reservations/{id}/cancel", authMW(http.HandlerFunc(reservationsHandler.Cancel)))
	mux.Handle("POST /api/reservations/{id}/fulfill", authMW(requireManager(http.HandlerFunc(reservationsHandler.Fulfill))))
	mux.Handle("POST /api/reservations/sweep", authMW(requireManager(http.HandlerFunc(reservationsHandler.Sweep))))

	// Low-stock alerts: read (all), acknowledge (manager+).
	mux.Handle("GET /api/alerts", authMW(http.HandlerFunc(alertsHandler.List)))
	mux.Handle("POST /api/alerts/{id}/ack", authMW(requireManager(http.HandlerFunc(alertsHandler.Acknowledge))))

	return mux
}

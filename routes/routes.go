package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/imu-filing/app"
	"github.com/upb/imu-filing/handlers"
	"github.com/upb/imu-filing/middleware"
	"github.com/upb/imu-filing/models"
	"github.com/upb/imu-filing/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	health := handlers.NewHealthHandler(deps.DB.DB, deps.Drafts, handlers.StatusResponse{
		Service:     app.ServiceName,
		Version:     app.Version,
		Environment: deps.Config.Environment,
		Gateway:     deps.Gateway.Name(),
	}, deps.Pricing, deps.Logger)
	submissions := handlers.NewSubmissionHandler(deps.Submissions, deps.Checkout, deps.Logger)
	draftsHandler := handlers.NewDraftHandler(deps.Drafts, deps.Logger)
	authHandler := handlers.NewAuthHandler(deps.Users, handlers.CookieConfig{
		Secure: deps.Config.Auth.CookieSecure,
	}, deps.Logger)
	adminSubmissions := handlers.NewAdminSubmissionHandler(deps.Submissions, deps.Export, deps.Logger)
	adminPayments := handlers.NewAdminPaymentHandler(deps.Checkout, deps.Logger)
	adminUsers := handlers.NewAdminUserHandler(deps.Users, deps.Logger)
	auditHandler := handlers.NewAuditHandler(deps.Audit, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", authHandler.HandleLogin)
		r.Post("/logout", authHandler.HandleLogout)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", health.HandleStatus)
		r.Post("/pricing/quote", submissions.HandleQuote)

		r.Route("/submissions", func(r chi.Router) {
			r.Post("/", submissions.HandleCreate)
			r.Get("/{id}", submissions.HandleGet)
			r.Post("/{id}/checkout", submissions.HandleCheckout)
		})
		r.Post("/checkout/verify", submissions.HandleVerify)

		r.Route("/drafts", func(r chi.Router) {
			r.Post("/", draftsHandler.HandleCreate)
			r.Get("/{id}", draftsHandler.HandleLoad)
			r.Put("/{id}", draftsHandler.HandleSave)
			r.Delete("/{id}", draftsHandler.HandleDelete)
		})

		r.With(deps.AuthMiddleware.RequireAuth).Get("/users/me", authHandler.HandleMe)

		// Back office
		r.Route("/admin", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)

			// Read access and payment verification for operators and admins
			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(models.RoleAdmin, models.RoleOperator))
				r.Get("/submissions", adminSubmissions.HandleList)
				r.Get("/submissions/export", adminSubmissions.HandleExport)
				r.Get("/submissions/{id}", adminSubmissions.HandleGet)
				r.Get("/submissions/{id}/payments", adminSubmissions.HandlePayments)
				r.Get("/payments", adminPayments.HandleList)
				r.Get("/payments/{id}", adminPayments.HandleGet)
				r.Post("/payments/{id}/verify", adminPayments.HandleVerify)
			})

			// Admin only
			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole(models.RoleAdmin))
				r.Patch("/submissions/{id}/status", adminSubmissions.HandleUpdateStatus)
				r.Post("/submissions/{id}/cancel", adminSubmissions.HandleCancel)

				r.Route("/users", func(r chi.Router) {
					r.Get("/", adminUsers.HandleList)
					r.Post("/", adminUsers.HandleCreate)
					r.Get("/{id}", adminUsers.HandleGet)
					r.Patch("/{id}", adminUsers.HandleUpdate)
					r.Delete("/{id}", adminUsers.HandleDelete)
					r.Post("/{id}/reset-password", adminUsers.HandleResetPassword)
				})

				r.Get("/audit/logs", auditHandler.HandleList)
				r.Get("/audit/logs/{id}", auditHandler.HandleGet)
				r.Get("/security/logins", auditHandler.HandleSecurityEvents)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	})

	return r
}

package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kaitanna/kaitanna-backend/internal/auth"
	"github.com/kaitanna/kaitanna-backend/internal/handlers"
	"github.com/kaitanna/kaitanna-backend/internal/middleware"
	"github.com/kaitanna/kaitanna-backend/internal/services"
	"go.uber.org/zap"
)

// Deps are the services behind the HTTP API. Avatars and GenerationLimiter
// may be nil.
type Deps struct {
	Auth              *auth.Service
	Moods             *services.MoodStore
	Journals          *services.JournalStore
	Chat              *services.ChatService
	Avatars           services.AvatarUploader
	GenerationLimiter middleware.Limiter
	Location          *time.Location
	Log               *zap.Logger
}

func SetupRoutes(r chi.Router, d Deps) {
	authHandler := handlers.NewAuthHandler(d.Auth, d.Log)
	profile := handlers.NewProfileHandler(d.Auth, d.Avatars, d.Log)
	moods := handlers.NewMoodHandler(d.Moods, d.Location, d.Log)
	journals := handlers.NewJournalHandler(d.Journals, d.Log)
	dashboard := handlers.NewDashboardHandler(d.Moods, d.Journals, d.Location, d.Log)
	chat := handlers.NewChatHandler(d.Chat, d.Log)

	// Public auth routes
	r.Post("/api/auth/signup", authHandler.Signup)
	r.Post("/api/auth/login", authHandler.Login)
	r.Post("/api/auth/logout", authHandler.Logout)
	r.Get("/api/auth/me", authHandler.Me)

	// Session push (authenticates the handshake itself)
	r.Method("GET", "/ws/session", handlers.NewSessionSocketHandler(d.Auth, d.Log))

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Auth))

		r.Delete("/api/auth/account", authHandler.DeleteAccount)

		r.Get("/api/profile", profile.GetProfile)
		r.Put("/api/profile", profile.UpdateProfile)
		r.Post("/api/profile/avatar", profile.UploadAvatar)

		r.Get("/api/moods/catalog", moods.Catalog)
		r.Post("/api/moods", moods.Create)
		r.Get("/api/moods", moods.List)
		r.Get("/api/moods/chart", moods.Chart)
		r.Get("/api/moods/distribution", moods.Distribution)
		r.Delete("/api/moods/{id}", moods.Delete)

		r.Post("/api/journals", journals.CreateJournal)
		r.Get("/api/journals", journals.GetJournals)
		r.Put("/api/journals/{id}", journals.UpdateJournal)
		r.Delete("/api/journals/{id}", journals.DeleteJournal)

		r.Get("/api/dashboard", dashboard.GetDashboard)

		r.Get("/api/chat/sessions", chat.ListSessions)
		r.Post("/api/chat/sessions", chat.CreateSession)
		r.Put("/api/chat/sessions/{id}", chat.RenameSession)
		r.Delete("/api/chat/sessions/{id}", chat.DeleteSession)
		r.Get("/api/chat/sessions/{id}/messages", chat.Messages)
		r.Group(func(r chi.Router) {
			if d.GenerationLimiter != nil {
				r.Use(middleware.UserRateLimit(d.GenerationLimiter, d.Log))
			}
			r.Post("/api/chat/sessions/{id}/messages", chat.SendMessage)
		})
	})
}

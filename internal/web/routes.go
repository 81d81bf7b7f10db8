package web

import (
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/vision-assist/internal/web/handlers"
	"github.com/kozaktomas/vision-assist/internal/web/middleware"
	"github.com/kozaktomas/vision-assist/internal/web/static"
)

func (s *Server) setupRoutes() {
	// Create handlers
	configHandler := handlers.NewConfigHandler(s.config)
	facesHandler := handlers.NewFacesHandler(s.deps.Faces, s.deps.Enroll)
	recognizeHandler := handlers.NewRecognizeHandler(s.deps.Processor)
	galleryHandler := handlers.NewGalleryHandler(s.deps.Gallery)
	streamHandler := handlers.NewStreamHandler(s.deps.Hub, s.deps.Announcer, s.deps.Stats)
	announcementsHandler := handlers.NewAnnouncementsHandler(s.deps.Announcer)
	summarizeHandler := handlers.NewSummarizeHandler(s.deps.Summarizer)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.config.Web.APIToken))

		// Event stream runs until the client disconnects
		r.Get("/stream/events", streamHandler.Events)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(5 * time.Minute))

			r.Get("/config", configHandler.Get)

			// Enrollment
			r.Get("/faces", facesHandler.List)
			r.Post("/faces", facesHandler.Create)
			r.Delete("/faces", facesHandler.DeleteAll)
			r.Get("/faces/{id}", facesHandler.Get)
			r.Put("/faces/{id}", facesHandler.Update)
			r.Delete("/faces/{id}", facesHandler.Delete)

			// Recognition
			r.Post("/recognize", recognizeHandler.Recognize)
			r.Get("/gallery", galleryHandler.Get)

			// Monitor
			r.Get("/stream/latest.jpg", streamHandler.Latest)
			r.Get("/stream/stats", streamHandler.Stats)
			r.Get("/announcements", announcementsHandler.Get)
			r.Put("/announcements", announcementsHandler.Update)

			// Documents
			r.Post("/summarize", summarizeHandler.Summarize)
		})
	})

	// Browser viewer
	s.router.Handle("/*", static.Handler())
}

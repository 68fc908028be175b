package web

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	kioskHandler := handlers.NewKioskHandler(s.kiosk, s.logger.With("component", "api"))
	configHandler := handlers.NewConfigHandler(s.config)
	eventsHandler := handlers.NewEventsHandler(s.kiosk, s.notes)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Event stream, no request timeout
		r.Get("/events", eventsHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(constants.RequestTimeout))

			r.Get("/health", handlers.HealthCheck)
			r.Get("/config", configHandler.Get)
			r.Get("/state", kioskHandler.State)
			r.Post("/home", kioskHandler.Home)

			// Registration
			r.Put("/form", kioskHandler.UpdateForm)
			r.Delete("/form", kioskHandler.CancelForm)
			r.Post("/capture", kioskHandler.OpenCapture)
			r.Delete("/capture", kioskHandler.LeaveCapture)
			r.Post("/capture/images", kioskHandler.CaptureImage)
			r.Get("/capture/images/{index}", kioskHandler.Image)
			r.Post("/registrations", kioskHandler.Register)
			r.Get("/students", kioskHandler.Students)
			r.Get("/debug/students", kioskHandler.Students)

			// Recognition
			r.Post("/recognition", kioskHandler.OpenRecognition)
			r.Post("/train", kioskHandler.Train)
			r.Post("/attendance", kioskHandler.StartAttendance)
			r.Delete("/attendance", kioskHandler.StopAttendance)
			r.Get("/attendance/frame", kioskHandler.Frame)
		})
	})
}

package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/ws"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(Identity)

	r.Get("/healthz", s.Healthz)
	r.Get("/ws", ws.Handler(s.deps.Sessions, s.deps.WS, s.log))

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", s.QueueStatus)
		r.With(RequireIdentity).Post("/join", s.JoinQueue)
		r.With(RequireIdentity).Post("/leave", s.LeaveQueue)
	})

	r.Route("/matches/{id}", func(r chi.Router) {
		// Public reads
		r.Get("/draft", s.Draft)
		r.Get("/votes", s.Tally)

		r.Group(func(r chi.Router) {
			r.Use(RequireIdentity)
			r.Post("/actions", s.ProcessAction)
			r.Post("/pick", s.ChangePick)
			r.Post("/confirm", s.Confirm)
			r.Post("/cancel", s.Cancel)
			r.Post("/votes", s.CastVote)
			r.Delete("/votes", s.RemoveVote)
			r.With(s.requireAdmin).Post("/link", s.Link)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.requireAdmin)
		r.Post("/queue/bots", s.AddBots)
		r.Post("/queue/bots/reset", s.ResetBots)
		r.Post("/queue/reset", s.ResetQueue)
	})

	return r
}

package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func (c controller) GetMux() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(c.requestIdMw)
	r.Use(c.requestLoggingMw)
	r.Use(cors.AllowAll().Handler)

	r.Handle("/metrics", c.metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		r.Get("/time", c.getTime)
		r.Route("/parties", func(r chi.Router) {
			r.Post("/", c.createParty)
			r.Route("/{party-id}", func(r chi.Router) {
				r.Post("/members", c.joinParty)
				r.Get("/state", c.getState)
			})
		})
		r.Get("/ws/parties/{party-id}", c.connect)
	})

	return r
}

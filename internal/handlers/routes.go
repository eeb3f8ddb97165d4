package handlers

import "github.com/go-chi/chi/v5"

func RegisterExchangeRoutes(r chi.Router, h *ExchangeHandler) {
	r.Route("/api/messages", func(r chi.Router) {
		r.Post("/", h.Submit)
		r.Post("/intent", h.SubmitIntent)
		r.Get("/confirm", h.Confirm)
		r.Get("/last", h.Last)
	})
}

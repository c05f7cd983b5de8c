package health

import (
	"net/http"

	"github.com/go-chi/render"
)

type Core interface {
	BotConnected() bool
}

type Status struct {
	Status       string `json:"status"`
	BotConnected bool   `json:"bot_connected"`
}

// Health always answers 200; a disconnected bot shows up in the body only.
func Health(handler Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, Status{
			Status:       "healthy",
			BotConnected: handler.BotConnected(),
		})
	}
}

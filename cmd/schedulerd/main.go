// Command schedulerd runs the WhatsApp message scheduler daemon: one
// managed WhatsApp session, the delivery scheduler and the HTTP/WebSocket
// surface for the frontend.
package main

import (
	"github.com/ivangillig/whatsapp-scheduler/internal/daemon"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

func main() {
	// Secrets (ADMIN_USER, ADMIN_PASSWORD, JWT_SECRET) come from the
	// environment; a local .env is a convenience for development.
	_ = godotenv.Load()

	app := fx.New(
		daemon.Module(),
	)

	app.Run()
}

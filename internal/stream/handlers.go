package stream

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes mounts the live comment feed of an activity. Clients only
// listen; anything they send is read and dropped.
func RegisterRoutes(r fiber.Router, hub *Hub) {
	r.Get("/activities/:slug/comments", websocket.New(func(c *websocket.Conn) {
		client := hub.Register(c.Params("slug"))
		defer hub.Unregister(client)

		done := make(chan struct{})
		go func() {
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					break
				}
			}
			close(done)
		}()

		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}
		hub.Unregister(client)
		<-done
	}))
}

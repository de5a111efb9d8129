package relay

import (
	"github.com/GOOTEAKIM/RunUs/internal/auth"
	"github.com/GOOTEAKIM/RunUs/internal/room"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

func RegisterRoutes(r fiber.Router, hub *Hub, signer *auth.Signer) {
	r.Post("/api/v1/rooms", auth.JWTMiddleware(signer), func(c *fiber.Ctx) error {
		info, err := hub.CreateRoom(c.Context(), room.UserID(auth.UserID(c)))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.Status(fiber.StatusCreated).JSON(info)
	})

	r.Get("/api/v1/rooms/:roomID", func(c *fiber.Ctx) error {
		info, ok := hub.Room(c.Params("roomID"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "room not found")
		}
		return c.JSON(info)
	})

	r.Get("/ws/rooms/:roomID", auth.SocketMiddleware(signer), websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals(auth.LocalUserID).(string)
		client := hub.Register(c.Params("roomID"), room.UserID(userID))

		done := make(chan struct{})
		go func() {
			defer close(done)
			for msg := range client.Send {
				if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
		}()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				break
			}
			hub.Handle(client, msg)
		}

		// Unregister closes Send, which ends the writer.
		hub.Unregister(client)
		<-done
	}))
}

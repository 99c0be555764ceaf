package socket

import (
	socketio "github.com/googollee/go-socket.io"
	"github.com/sirupsen/logrus"

	"party_server/services"
)

func room(partyID string) string { return "party:" + partyID }

// NewSocketServer initializes the delivery glue: a Socket.IO server whose
// clients subscribe to a partyId, plus a bus subscription that forwards
// every party event into the matching room.
func NewSocketServer(bus services.Bus) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(c socketio.Conn) error {
		logrus.WithField("socketId", c.ID()).Debug("socket connected")
		return nil
	})

	server.OnEvent("/", "subscribe", func(c socketio.Conn, partyID string) {
		if partyID == "" {
			logrus.Warn("subscribe without partyId")
			return
		}
		c.Join(room(partyID))
	})

	server.OnEvent("/", "unsubscribe", func(c socketio.Conn, partyID string) {
		if partyID == "" {
			return
		}
		c.Leave(room(partyID))
	})

	server.OnDisconnect("/", func(c socketio.Conn, reason string) {
		logrus.WithFields(logrus.Fields{"socketId": c.ID(), "reason": reason}).Debug("socket disconnected")
	})

	bus.Subscribe(func(event services.Event) {
		server.BroadcastToRoom("/", room(event.PartyID), event.Type, event)
	})

	return server
}

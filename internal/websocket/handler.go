package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"
	"github.com/rs/zerolog"
)

// HandleWebSocket upgrades connections and runs them as hub clients. Only
// same-host origins and the listed patterns may connect.
func HandleWebSocket(hub *Hub, logger zerolog.Logger, originPatterns ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("websocket accept")
			return
		}

		client := NewClient(hub, conn)
		client.Run(r.Context())
		logger.Debug().Msg("websocket client disconnected")
	}
}

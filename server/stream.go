package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"curveExchange/entity"
)

const streamClientBuffer = 16

type streamClient struct {
	ws *websocket.Conn
	sync.Mutex
	events chan entity.MarketAsset
	done   chan struct{}
	once   sync.Once
}

func (wsClient *streamClient) close() {
	wsClient.once.Do(func() {
		close(wsClient.done)
		wsClient.ws.Close()
	})
}

// forwardPriceChanges fans every update out to all stream clients. A client
// that cannot keep up loses updates instead of stalling the others.
func (s *server) forwardPriceChanges(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-s.priceUpdates:
			if !ok {
				return
			}

			s.streamClientsMu.RLock()
			for client := range s.streamClients {
				select {
				case client.events <- ev:
				default:
					s.log.Debugf("client %v is behind, dropped update of %v", client.ws.RemoteAddr(), ev.Symbol)
				}
			}
			s.streamClientsMu.RUnlock()
		}
	}
}

func (s *server) register(client *streamClient) {
	s.streamClientsMu.Lock()
	defer s.streamClientsMu.Unlock()
	s.streamClients[client] = struct{}{}
}

func (s *server) unregister(client *streamClient) {
	s.streamClientsMu.Lock()
	defer s.streamClientsMu.Unlock()
	delete(s.streamClients, client)
}

func (s *server) closeStreamClients() {
	s.streamClientsMu.RLock()
	defer s.streamClientsMu.RUnlock()
	for client := range s.streamClients {
		client.close()
	}
}

func (s *server) handlePriceStream() gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		HandshakeTimeout: 2 * time.Second,
		WriteBufferSize:  1024,
		CheckOrigin:      func(*http.Request) bool { return true },
	}

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// the upgrader already answered the client
			s.log.Warnf("websocket handshake failed: %v", err)
			return
		}

		wsClient := &streamClient{
			ws:     ws,
			events: make(chan entity.MarketAsset, streamClientBuffer),
			done:   make(chan struct{}),
		}
		s.register(wsClient)
		defer s.unregister(wsClient)
		defer wsClient.close()

		// clients only listen; reading is needed to notice a close
		go func() {
			for {
				if _, _, err := ws.NextReader(); err != nil {
					wsClient.close()
					return
				}
			}
		}()

		for {
			select {
			case <-wsClient.done:
				return
			case ev := <-wsClient.events:
				if err := wsClient.sendEvent(ev); err != nil {
					s.log.Infof("client %v send over websocket failed: %v", ws.RemoteAddr(), err)
					return
				}
			}
		}
	}
}

func (wsClient *streamClient) sendEvent(ev entity.MarketAsset) error {
	wsClient.Lock()
	defer wsClient.Unlock()

	// enforce fast client readout
	wsClient.ws.SetWriteDeadline(time.Now().Add(1 * time.Second))
	defer wsClient.ws.SetWriteDeadline(time.Time{})

	return wsClient.ws.WriteJSON(ev)
}

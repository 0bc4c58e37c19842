package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"promptpot-backend/internal/middleware"
	"promptpot-backend/internal/models"
	"promptpot-backend/internal/services"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	clientBuffer    = 64
	broadcastBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Client struct {
	Address common.Address
	Conn    *websocket.Conn
	// send is owned by the hub, which closes it on unregister.
	send chan []byte
	// replies carries answers to the client's own messages and is never closed.
	replies chan []byte
}

// WebSocketHub fans ledger events out to every connected client. Broadcast
// never blocks: when the hub or a client falls behind, events are dropped
// for it and slow clients are disconnected.
type WebSocketHub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
	closeOnce  sync.Once
}

func NewWebSocketHub() *WebSocketHub {
	hub := &WebSocketHub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastBuffer),
		done:       make(chan struct{}),
	}

	go hub.run()

	return hub
}

func (hub *WebSocketHub) Broadcast(event *models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Warnw("event not encodable", "event", event.ID, "err", err)
		return
	}
	select {
	case hub.broadcast <- data:
	default:
		log.Warnw("websocket hub behind, event dropped", "event", event.ID, "type", event.Type)
	}
}

func (hub *WebSocketHub) Close() {
	hub.closeOnce.Do(func() { close(hub.done) })
}

func (hub *WebSocketHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.clients[client] = true
			log.Debugw("client registered", "address", client.Address.Hex())

		case client := <-hub.unregister:
			if _, ok := hub.clients[client]; ok {
				delete(hub.clients, client)
				close(client.send)
				log.Debugw("client unregistered", "address", client.Address.Hex())
			}

		case data := <-hub.broadcast:
			for client := range hub.clients {
				select {
				case client.send <- data:
				default:
					delete(hub.clients, client)
					close(client.send)
					log.Infow("slow client dropped", "address", client.Address.Hex())
				}
			}

		case <-hub.done:
			for client := range hub.clients {
				delete(hub.clients, client)
				close(client.send)
			}
			return
		}
	}
}

type WebSocketHandler struct {
	ledger *services.GameLedger
	hub    *WebSocketHub
}

func NewWebSocketHandler(ledger *services.GameLedger, hub *WebSocketHub) *WebSocketHandler {
	return &WebSocketHandler{
		ledger: ledger,
		hub:    hub,
	}
}

func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	caller, _ := middleware.Caller(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnw("failed to upgrade to websocket", "err", err)
		return
	}

	client := &Client{
		Address: caller,
		Conn:    conn,
		send:    make(chan []byte, clientBuffer),
		replies: make(chan []byte, 4),
	}

	if data, err := json.Marshal(Message{Type: "GAME_STATE", Data: models.NewGameStatsView(h.ledger.Stats())}); err == nil {
		client.send <- data
	}

	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump(h.hub)
}

func (cl *Client) readPump(hub *WebSocketHub) {
	defer func() {
		select {
		case hub.unregister <- cl:
		case <-hub.done:
		}
		cl.Conn.Close()
	}()

	cl.Conn.SetReadLimit(4096)
	cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.Conn.SetPongHandler(func(string) error {
		return cl.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := cl.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debugw("websocket read error", "address", cl.Address.Hex(), "err", err)
			}
			return
		}

		switch msg.Type {
		case "PING":
			data, _ := json.Marshal(Message{
				Type: "PONG",
				Data: gin.H{"timestamp": time.Now().Unix()},
			})
			select {
			case cl.replies <- data:
			default:
			}
		}
	}
}

func (cl *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.Conn.Close()
	}()

	for {
		select {
		case data, ok := <-cl.send:
			cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case data := <-cl.replies:
			cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			cl.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

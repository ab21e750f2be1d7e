package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"minigames-backend/internal/models"
)

const (
	MessageState      = "STATE"
	MessageRoundStart = "ROUND_START"
	MessageTick       = "TICK"
	MessageCashOut    = "CASHOUT"
	MessageCrash      = "CRASH"
	MessagePing       = "PING"
	MessagePong       = "PONG"

	writeWait  = 10 * time.Second
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHub fans crash round events out to every connected client. It implements
// services.Broadcaster; slow clients are dropped instead of stalling the round.
type WebSocketHub struct {
	log      *zap.Logger
	snapshot func() models.CrashStatus

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	done       chan struct{}
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

type Message struct {
	Type    string      `json:"type"`
	RoundID string      `json:"roundId,omitempty"`
	Data    interface{} `json:"data"`

	// to restricts delivery to a single client.
	to *Client
}

func NewWebSocketHub(snapshot func() models.CrashStatus, log *zap.Logger) *WebSocketHub {
	return &WebSocketHub{
		log:        log.Named("ws"),
		snapshot:   snapshot,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		done:       make(chan struct{}),
	}
}

func (c *Client) Close() {
	c.once.Do(func() {
		c.conn.Close()
	})
}

// Run owns the client set until ctx is cancelled.
func (hub *WebSocketHub) Run(ctx context.Context) {
	defer close(hub.done)

	for {
		select {
		case <-ctx.Done():
			for client := range hub.clients {
				hub.drop(client)
			}
			return

		case client := <-hub.register:
			hub.clients[client] = true
			hub.deliver(client, hub.encode(&Message{Type: MessageState, Data: hub.snapshot()}))
			hub.log.Debug("client registered", zap.Int("clients", len(hub.clients)))

		case client := <-hub.unregister:
			if hub.clients[client] {
				hub.drop(client)
				hub.log.Debug("client unregistered", zap.Int("clients", len(hub.clients)))
			}

		case message := <-hub.broadcast:
			hub.broadcastMessage(message)
		}
	}
}

func (hub *WebSocketHub) encode(message *Message) []byte {
	data, err := json.Marshal(message)
	if err != nil {
		hub.log.Error("failed to encode message", zap.String("type", message.Type), zap.Error(err))
		return nil
	}
	return data
}

func (hub *WebSocketHub) drop(client *Client) {
	delete(hub.clients, client)
	close(client.send)
}

func (hub *WebSocketHub) deliver(client *Client, data []byte) {
	if data == nil {
		return
	}
	select {
	case client.send <- data:
	default:
		hub.log.Warn("dropping slow client")
		hub.drop(client)
	}
}

func (hub *WebSocketHub) broadcastMessage(message *Message) {
	data := hub.encode(message)

	if message.to != nil {
		if hub.clients[message.to] {
			hub.deliver(message.to, data)
		}
		return
	}

	for client := range hub.clients {
		hub.deliver(client, data)
	}
}

func (hub *WebSocketHub) publish(message *Message) {
	select {
	case hub.broadcast <- message:
	case <-hub.done:
	default:
		hub.log.Warn("broadcast queue full, dropping message", zap.String("type", message.Type))
	}
}

func (hub *WebSocketHub) BroadcastRoundStart(status models.CrashStatus) {
	hub.publish(&Message{Type: MessageRoundStart, RoundID: status.RoundID, Data: status})
}

func (hub *WebSocketHub) BroadcastTick(status models.CrashStatus) {
	hub.publish(&Message{Type: MessageTick, RoundID: status.RoundID, Data: status})
}

func (hub *WebSocketHub) BroadcastCashOut(roundID string, bet models.CrashBet) {
	hub.publish(&Message{Type: MessageCashOut, RoundID: roundID, Data: bet})
}

func (hub *WebSocketHub) BroadcastCrash(result models.CrashRoundResult) {
	hub.publish(&Message{Type: MessageCrash, RoundID: result.RoundID, Data: result})
}

func (hub *WebSocketHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.Warn("failed to upgrade to websocket", zap.Error(err))
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go hub.writePump(client)
	hub.readPump(client)
}

func (hub *WebSocketHub) readPump(client *Client) {
	defer func() {
		select {
		case hub.unregister <- client:
		case <-hub.done:
		}
		client.Close()
	}()

	for {
		var msg Message
		if err := client.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hub.log.Warn("websocket read error", zap.Error(err))
			}
			return
		}

		if msg.Type == MessagePing {
			hub.publish(&Message{
				Type: MessagePong,
				Data: gin.H{"timestamp": time.Now().Unix()},
				to:   client,
			})
		}
	}
}

func (hub *WebSocketHub) writePump(client *Client) {
	defer client.Close()

	for data := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			hub.log.Debug("websocket write error", zap.Error(err))
			return
		}
	}

	client.conn.SetWriteDeadline(time.Now().Add(writeWait))
	client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// Package main provides the local Soma server for desktop platforms.
// This file implements the WebSocket hub that pushes connectivity and sync
// events to UI clients.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/mwangivic/soma/internal/errors"
	"github.com/mwangivic/soma/internal/syncer"
	"github.com/mwangivic/soma/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Only the local UI shell may connect.
		return r.Host == "localhost" || strings.HasPrefix(r.Host, "localhost:")
	},
}

// Event types pushed to UI clients.
const (
	EventConnectivityChanged = "connectivity.changed"
	EventSyncCompleted       = "sync.completed"
	EventSyncFailed          = "sync.failed"
	EventToast               = "notify.toast"
)

// WSEnvelope wraps every pushed message.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// WSClient is one connected UI client.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub tracks connected clients and broadcasts events to all of them.
type WSHub struct {
	mu         sync.RWMutex
	clients    map[string]*WSClient
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
}

// NewWSHub creates a hub and starts its dispatch loop.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
	go hub.run()
	return hub
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()
			log.Printf("[WS] Client connected: %s", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()
			log.Printf("[WS] Client disconnected: %s", client.id)

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow client; drop it rather than block the hub.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast pushes an event to every connected client.
func (h *WSHub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		log.Printf("[WS] Failed to marshal event: %v", err)
		return
	}
	h.broadcast <- payload
}

// BroadcastConnectivityChanged notifies clients of an online/offline
// transition.
func (h *WSHub) BroadcastConnectivityChanged(online bool) {
	h.Broadcast(EventConnectivityChanged, map[string]interface{}{
		"online": online,
	})
}

// BroadcastSyncCompleted notifies clients that a sync run finished.
func (h *WSHub) BroadcastSyncCompleted(result *syncer.Result) {
	h.Broadcast(EventSyncCompleted, map[string]interface{}{
		"synced":    result.Synced,
		"failed":    result.Failed,
		"remaining": result.Remaining,
	})
}

// BroadcastSyncFailed notifies clients that a sync run could not start or
// fully failed.
func (h *WSHub) BroadcastSyncFailed(errorCode string) {
	h.Broadcast(EventSyncFailed, map[string]interface{}{
		"error_code": errorCode,
	})
}

// RelaySyncResult pushes the outcome of one sync run to UI clients:
// sync.failed when every dispatched write failed, sync.completed otherwise.
// Empty runs are not pushed. Registered with the sync manager as a result
// listener.
func (h *WSHub) RelaySyncResult(result *syncer.Result) {
	if result.Attempted == 0 {
		return
	}
	if result.Failed > 0 && result.Synced == 0 {
		h.BroadcastSyncFailed(string(apperrors.ErrSyncFailed))
		return
	}
	h.BroadcastSyncCompleted(result)
}

// The hub doubles as a notify.Notifier: toasts reach the UI as events.

func (h *WSHub) Success(message string) { h.toast("success", message) }
func (h *WSHub) Warning(message string) { h.toast("warning", message) }
func (h *WSHub) Error(message string)   { h.toast("error", message) }

func (h *WSHub) toast(level, message string) {
	h.Broadcast(EventToast, map[string]interface{}{
		"level":   level,
		"message": message,
	})
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error: %v", err)
			}
			return
		}
		// Clients only listen; inbound frames are ignored.
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket upgrades an HTTP request to a hub-attached client.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] Failed to upgrade: %v", err)
			return
		}

		client := &WSClient{
			id:   uuid.New(),
			conn: conn,
			send: make(chan []byte, 256),
			hub:  hub,
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}

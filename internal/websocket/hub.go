package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/fridgechef/api/internal/model"
)

// Client represents a WebSocket client
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for a job with a send buffer of the given size.
func NewClient(jobID string, conn *websocket.Conn, buffer int) *Client {
	return &Client{
		JobID: jobID,
		Conn:  conn,
		Send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
	}
}

// Done is closed once the hub dropped the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Queue hands data to the client's writer without blocking. It reports
// false when the buffer is full or the client was dropped.
func (c *Client) Queue(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Hub maintains active WebSocket connections
type Hub struct {
	// Clients grouped by job ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client

	// Broadcast messages to job subscribers
	broadcast chan *BroadcastMessage

	// closed when Run returns
	done chan struct{}

	log *zap.Logger
	mu  sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	JobID   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		log:        log.Named("ws"),
	}
}

// Run starts the hub's main loop and returns when ctx is done. Clients
// still registered at that point are dropped.
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			h.log.Debug("client registered", zap.String("job_id", client.JobID))

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					client.close()
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
					}
				}
			}
			h.mu.Unlock()
			h.log.Debug("client unregistered", zap.String("job_id", client.JobID))

		case msg := <-h.broadcast:
			h.mu.Lock()
			if clients, ok := h.clients[msg.JobID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Message:
					default:
						// slow consumer
						client.close()
						delete(clients, client)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.JobID)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	close(h.done)
	for jobID, clients := range h.clients {
		for client := range clients {
			client.close()
		}
		delete(h.clients, jobID)
	}
}

// Register adds a new client. A client registered after Run stopped is
// dropped right away.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.close()
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.close()
	}
}

// Subscribers returns how many clients watch a job.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[jobID])
}

// Deliver queues an encoded message for the job's subscribers.
func (h *Hub) Deliver(jobID string, data []byte) {
	select {
	case h.broadcast <- &BroadcastMessage{JobID: jobID, Message: data}:
	case <-h.done:
	}
}

// Progress sends a progress update to all job subscribers
func (h *Hub) Progress(kind model.JobKind, jobID string, progress int, status model.JobStatus, step string) {
	h.send(jobID, progressMessage(kind, jobID, progress, status, step))
}

// Complete sends a completion message to all job subscribers
func (h *Hub) Complete(kind model.JobKind, jobID string, status model.JobStatus, result any) {
	h.send(jobID, completeMessage(kind, jobID, status, result))
}

// Error sends an error message to all job subscribers
func (h *Hub) Error(kind model.JobKind, jobID, code, message string) {
	h.send(jobID, errorMessage(kind, jobID, code, message))
}

func (h *Hub) send(jobID string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	h.Deliver(jobID, data)
}

// HandleConnection handles a WebSocket connection
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := NewClient(jobID, c, 256)

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-client.Done():
				_ = c.WriteMessage(websocket.CloseMessage, []byte{})
				return

			case message := <-client.Send:
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read failed", zap.String("job_id", jobID), zap.Error(err))
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong := model.WSMessage{Type: model.WSMessageTypePong}
			data, _ := json.Marshal(pong)
			if !client.Queue(data) {
				h.log.Debug("pong dropped", zap.String("job_id", jobID))
			}
		}
	}
}

func progressMessage(kind model.JobKind, jobID string, progress int, status model.JobStatus, step string) model.WSProgressMessage {
	return model.WSProgressMessage{
		Type:        model.WSMessageTypeProgress,
		JobID:       jobID,
		Kind:        kind,
		Progress:    progress,
		Status:      status,
		CurrentStep: step,
	}
}

func completeMessage(kind model.JobKind, jobID string, status model.JobStatus, result any) model.WSCompleteMessage {
	return model.WSCompleteMessage{
		Type:   model.WSMessageTypeComplete,
		JobID:  jobID,
		Kind:   kind,
		Status: status,
		Result: result,
	}
}

func errorMessage(kind model.JobKind, jobID, code, message string) model.WSErrorMessage {
	return model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Kind:  kind,
		Error: model.WSError{Code: code, Message: message},
	}
}

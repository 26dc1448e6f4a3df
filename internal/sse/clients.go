// Package sse streams pipeline events to browsers over Server-Sent Events.
package sse

import (
	"sync"

	"github.com/rs/zerolog"
)

var sseLogger = zerolog.Nop()

func SetLogger(l zerolog.Logger) {
	sseLogger = l
}

// Message is one SSE frame.
type Message struct {
	Event string
	Data  []byte
}

// Client is one connected stream. An empty DraftKey receives every draft.
type Client struct {
	Msg      chan Message
	DraftKey string
}

func NewClient(draftKey string) *Client {
	return &Client{Msg: make(chan Message, 16), DraftKey: draftKey}
}

type Clients struct {
	clients map[*Client]bool
	mu      sync.RWMutex
}

func NewClients() *Clients {
	return &Clients{
		clients: make(map[*Client]bool),
	}
}

func (s *Clients) Add(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[client] = true
}

func (s *Clients) Delete(client *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.clients[client] {
		return
	}
	delete(s.clients, client)
	close(client.Msg)
}

func (s *Clients) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Broadcast delivers msg to every client watching draftKey. Clients whose
// buffer is full miss the message.
func (s *Clients) Broadcast(draftKey string, msg Message) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.clients {
		if client.DraftKey != "" && client.DraftKey != draftKey {
			continue
		}
		select {
		case client.Msg <- msg:
		default:
			sseLogger.Debug().Str("draft_key", draftKey).Str("event", msg.Event).Msg("Dropped message for slow client")
		}
	}
}

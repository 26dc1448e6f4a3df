package sse

import (
	"fmt"
	"net/http"
	"strings"
)

// QueryDraft selects the draft a stream follows. Without it the stream
// carries every draft.
const QueryDraft = "draft"

// Handler serves an event stream backed by clients.
func Handler(clients *Clients) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Del("X-Content-Type-Options")

		draftKey := r.URL.Query().Get(QueryDraft)
		client := NewClient(draftKey)
		clients.Add(client)

		log := sseLogger.With().Str("draft_key", draftKey).Str("remote_addr", r.RemoteAddr).Logger()
		log.Debug().Msg("SSE client connected")
		defer func() {
			clients.Delete(client)
			log.Debug().Msg("SSE client disconnected")
		}()

		WriteMessage(w, Message{Event: "connected", Data: []byte("SSE connection established")})
		flusher.Flush()

		done := r.Context().Done()
		for {
			select {
			case msg, ok := <-client.Msg:
				if !ok {
					return
				}
				WriteMessage(w, msg)
				flusher.Flush()
			case <-done:
				return
			}
		}
	}
}

// WriteMessage writes msg in SSE framing. Multi-line data is split across
// data fields.
func WriteMessage(w http.ResponseWriter, msg Message) {
	if msg.Event != "" {
		fmt.Fprintf(w, "event: %s\n", msg.Event)
	}
	for _, line := range strings.Split(string(msg.Data), "\n") {
		fmt.Fprintf(w, "data: %s\n", line)
	}
	fmt.Fprint(w, "\n")
}

package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

// spectrum streams byte spectrum of the analysing node, one binary frame
// per interval.
func (s *Server) spectrum(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.readback.FrequencyBinCount(id) == 0 {
		s.fail(w, http.StatusNotFound, fmt.Errorf("node %s has no spectrum", id))
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade")
		return
	}
	defer conn.Close()
	l := s.logger.WithField("id", id)
	l.Debug("spectrum stream opened")

	// client messages are discarded, read fails when it's gone or the
	// connection is closed
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	buf := make([]byte, s.readback.FrequencyBinCount(id))
	for {
		select {
		case <-closed:
			l.Debug("spectrum stream closed")
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
		// fft size can change while streaming
		n := int(s.readback.FrequencyBinCount(id))
		if n == 0 {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "node removed"),
				time.Now().Add(writeWait))
			return
		}
		if n > cap(buf) {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		s.readback.SampleSpectrum(id, buf)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.BinaryMessage, buf); err != nil {
			l.WithError(err).Debug("spectrum write")
			return
		}
	}
}

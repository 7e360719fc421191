package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/morezero/autodraw-agent/pkg/batch"
	"github.com/morezero/autodraw-agent/pkg/dispatcher"
)

const streamLogPrefix = "server:stream"

// Stream message types.
const (
	StreamResult = "result"
	StreamReport = "report"
	StreamError  = "error"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// StreamMessage is one server-to-client message of the batch stream.
type StreamMessage struct {
	Type   string                  `json:"type"`
	Index  int                     `json:"index"`
	Result *dispatcher.Result      `json:"result,omitempty"`
	Report *batch.Report           `json:"report,omitempty"`
	Error  *dispatcher.ErrorDetail `json:"error,omitempty"`
}

// handleBatchStream reads one BatchRequest, streams a result message per
// item as it completes, then a report message, then closes.
func (a *API) handleBatchStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Failed to upgrade connection: %v", streamLogPrefix, err))
		return
	}
	defer conn.Close()

	var mu sync.Mutex
	send := func(msg StreamMessage) {
		mu.Lock()
		defer mu.Unlock()
		if err := conn.WriteJSON(msg); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to write %s message: %v", streamLogPrefix, msg.Type, err))
		}
	}

	var req BatchRequest
	if err := conn.ReadJSON(&req); err != nil || len(req.Requests) == 0 {
		send(StreamMessage{Type: StreamError, Error: &dispatcher.ErrorDetail{
			Code:    "INVALID_ARGUMENT",
			Message: "First message must be {\"requests\": [...]} with at least one request",
		}})
		closeStream(conn, websocket.CloseUnsupportedData, "invalid batch")
		return
	}
	slog.Info(fmt.Sprintf("%s - Streaming batch of %d requests", streamLogPrefix, len(req.Requests)))

	report, err := a.coordinator(func(i int, res *dispatcher.Result) {
		send(StreamMessage{Type: StreamResult, Index: i, Result: res})
	}).Run(c.Request.Context(), req.Requests)
	if err != nil {
		send(StreamMessage{Type: StreamError, Report: report, Error: SessionErrorDetail(err)})
		closeStream(conn, websocket.CloseInternalServerErr, "batch stopped")
		return
	}
	send(StreamMessage{Type: StreamReport, Report: report})
	closeStream(conn, websocket.CloseNormalClosure, "batch complete")
}

func closeStream(conn *websocket.Conn, code int, text string) {
	deadline := time.Now().Add(time.Second)
	if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), deadline); err != nil {
		slog.Debug(fmt.Sprintf("%s - close frame not sent: %v", streamLogPrefix, err))
	}
}

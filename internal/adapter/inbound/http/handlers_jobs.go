package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Sentinel-Gate/edgegate/internal/domain/apierr"
	"github.com/Sentinel-Gate/edgegate/internal/service"
)

// Websocket relay timings.
const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

// maxRecentJobs caps the ledger listing.
const maxRecentJobs = 500

// bulkUpload stores the uploaded files and submits them as one job. The
// files are removed again when the submission is rejected.
func (h *Handlers) bulkUpload(r *http.Request) (any, error) {
	limits := h.deps.Uploads
	r.Body = http.MaxBytesReader(nil, r.Body, int64(limits.MaxFiles)*limits.MaxFileSize+maxRequestBodySize)

	files, err := saveFiles(r, "files", limits)
	if err != nil {
		return nil, err
	}

	result, err := h.deps.Jobs.Submit(r.Context(), files)
	if err != nil {
		removeFiles(files)
		return nil, err
	}
	return result, nil
}

func (h *Handlers) jobStatus(r *http.Request) (any, error) {
	return h.deps.Jobs.Status(r.Context(), r.PathValue("id"))
}

func (h *Handlers) jobResults(r *http.Request) (any, error) {
	return h.deps.Jobs.Results(r.Context(), r.PathValue("id"))
}

// recentJobs lists recorded submissions, newest first.
func (h *Handlers) recentJobs(r *http.Request) (any, error) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxRecentJobs {
			return nil, apierr.BadRequest(apierr.MessageValidationFailed, "limit must be between 1 and "+strconv.Itoa(maxRecentJobs))
		}
		limit = n
	}
	return h.deps.Jobs.Recent(r.Context(), limit)
}

// newUpgrader admits handshakes from the allowed origins only. Requests
// without an Origin header are not from a browser and are admitted.
func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	wildcard := false
	for _, o := range allowedOrigins {
		if o == "*" {
			wildcard = true
		}
		allowed[o] = struct{}{}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || wildcard {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// jobEvents relays the job's progress channel to a websocket until the
// job reaches a terminal state or either side goes away.
func (h *Handlers) jobEvents(upgrader *websocket.Upgrader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		jobID := r.PathValue("id")
		if err := service.ValidateJobID(jobID); err != nil {
			Fail(w, r, err)
			return
		}
		if !websocket.IsWebSocketUpgrade(r) {
			Fail(w, r, apierr.New(http.StatusUpgradeRequired, "Websocket upgrade required"))
			return
		}

		logger := LoggerFromContext(r.Context()).With("job_id", jobID)

		// Subscribe before upgrading so the client sees a proper error body
		// when the broker is down.
		ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
		defer cancel()
		stream, err := h.deps.Progress.Subscribe(ctx, h.deps.Jobs.ProgressChannel(jobID))
		if err != nil {
			logger.Error("progress subscription failed", "error", err)
			Fail(w, r, apierr.BadGateway())
			return
		}
		defer func() { _ = stream.Close() }()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already answered.
			logger.Debug("websocket upgrade failed", "error", err)
			return
		}
		defer func() { _ = conn.Close() }()
		logger.Debug("job events client connected")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			defer cancel()
			readUntilClosed(conn)
			// Unblocks relayProgress for streams that only end on Close.
			_ = stream.Close()
		}()
		go func() {
			defer wg.Done()
			pingUntilDone(ctx, conn)
		}()

		reason := relayProgress(ctx, conn, stream)
		cancel()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		wg.Wait()
		logger.Debug("job events client disconnected", "reason", reason)
	})
}

// relayProgress copies messages until the stream ends, the client leaves
// or a terminal status passes. It returns the close reason.
func relayProgress(ctx context.Context, conn *websocket.Conn, stream ProgressStream) string {
	for {
		msg, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return "client gone"
			}
			return "stream closed"
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return "write failed"
		}
		if isTerminal(msg) {
			return "job finished"
		}
	}
}

// readUntilClosed drains client frames so control frames are processed.
// It returns when the client closes or stops answering pings.
func readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func pingUntilDone(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// isTerminal reports whether a progress message carries a final status.
func isTerminal(msg []byte) bool {
	var body struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(msg, &body); err != nil {
		return false
	}
	switch strings.ToUpper(body.Status) {
	case "COMPLETED", "FAILED", "CANCELLED":
		return true
	}
	return false
}

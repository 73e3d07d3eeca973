package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
)

const (
	readTimeout   = 60 * time.Second
	maxFrameBytes = 8 << 20
)

var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// FrameIntake accepts perception frames.
type FrameIntake interface {
	HandleFrame(frame *models.DetectionFrame) error
}

// ViewerHub tracks viewer connections.
type ViewerHub interface {
	Register(conn *websocket.Conn)
	Unregister(conn *websocket.Conn)
}

// FrameWebsocketHandler receives JSON detection frames from the perception
// collaborator of one camera. A malformed message is logged and skipped.
func FrameWebsocketHandler(intake FrameIntake, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		camera := r.URL.Query().Get("camera")
		if camera == "" {
			http.Error(w, "missing camera parameter", http.StatusBadRequest)
			return
		}

		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		defer connection.Close()

		connection.SetReadLimit(maxFrameBytes)
		connection.SetReadDeadline(time.Now().Add(readTimeout))
		connection.SetPongHandler(func(string) error {
			connection.SetReadDeadline(time.Now().Add(readTimeout))
			return nil
		})

		logger.Info("📷 Camera connected: %s", camera)

		for {
			_, msg, err := connection.ReadMessage()
			if err != nil {
				logger.Warning("📷 Camera %s disconnected: %v", camera, err)
				return
			}
			connection.SetReadDeadline(time.Now().Add(readTimeout))

			var frame models.DetectionFrame
			if err := json.Unmarshal(msg, &frame); err != nil {
				logger.Warning("⚠️ Skipping malformed frame from %s: %v", camera, err)
				continue
			}
			frame.CameraID = camera
			if frame.Timestamp.IsZero() {
				frame.Timestamp = time.Now().UTC()
			}
			if err := intake.HandleFrame(&frame); err != nil {
				logger.Warning("⚠️ Frame from %s rejected: %v", camera, err)
			}
		}
	}
}

// ViewWebsocketHandler keeps a viewer registered until it disconnects.
func ViewWebsocketHandler(hub ViewerHub, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connection, err := Upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("WebSocket upgrade error: %v", err)
			return
		}
		connection.SetReadLimit(512)
		connection.SetReadDeadline(time.Now().Add(readTimeout))
		connection.SetPongHandler(func(string) error {
			connection.SetReadDeadline(time.Now().Add(readTimeout))
			return nil
		})

		hub.Register(connection)
		defer hub.Unregister(connection)

		for {
			if _, _, err := connection.ReadMessage(); err != nil {
				return
			}
		}
	}
}

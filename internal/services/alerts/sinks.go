package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/Bwilkie91/camera/internal/logger"
	"github.com/Bwilkie91/camera/internal/models"
)

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, payload models.AlertPayload) error

func (f SinkFunc) Send(ctx context.Context, payload models.AlertPayload) error {
	return f(ctx, payload)
}

// MultiSink fans a payload out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, payload models.AlertPayload) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MQTTSink publishes alerts as JSON to a broker topic.
type MQTTSink struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *logger.Logger
}

// NewMQTTSink connects to broker and returns a sink publishing to topic.
// The broker may be given as host:port or as a full URL.
func NewMQTTSink(broker, clientID, topic string, logger *logger.Logger) (*MQTTSink, error) {
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("📡 MQTT connected to %s", broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warning("MQTT connection lost, reconnecting: %v", err)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(5 * time.Second) {
		return nil, fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	return newMQTTSink(client, topic, logger), nil
}

func newMQTTSink(client mqtt.Client, topic string, logger *logger.Logger) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, qos: 1, logger: logger}
}

// Send publishes the payload and waits for the broker acknowledgement or
// the context deadline.
func (s *MQTTSink) Send(ctx context.Context, payload models.AlertPayload) error {
	if !s.client.IsConnectionOpen() {
		return fmt.Errorf("mqtt not connected")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	token := s.client.Publish(s.topic, s.qos, false, data)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish timeout: %w", ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish failed: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	if s.client.IsConnected() {
		s.client.Disconnect(250)
		s.logger.Info("MQTT disconnected")
	}
}

// WebhookSink POSTs alerts as JSON to a URL.
type WebhookSink struct {
	url    string
	client *http.Client
}

// NewWebhookSink creates a webhook sink. A nil client uses
// http.DefaultClient; the dispatcher's context bounds each request.
func NewWebhookSink(url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{url: url, client: client}
}

func (s *WebhookSink) Send(ctx context.Context, payload models.AlertPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

// Broadcaster pushes typed messages to connected viewers.
type Broadcaster interface {
	Notify(kind string, v any) error
}

// HubSink broadcasts alerts to websocket viewers.
type HubSink struct {
	hub Broadcaster
}

func NewHubSink(hub Broadcaster) *HubSink {
	return &HubSink{hub: hub}
}

func (s *HubSink) Send(_ context.Context, payload models.AlertPayload) error {
	return s.hub.Notify("alert", payload)
}

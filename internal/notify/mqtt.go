package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

const (
	mqttConnectTimeout = 30 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttQuiesceMillis  = 250
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker   string
	Topic    string
	Username string
	Password string
}

// publisher is the part of mqtt.Client the sink uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes events as JSON to a single topic.
type MQTTSink struct {
	client publisher
	topic  string
	logger *slog.Logger
}

// NewMQTTSink connects to the broker and returns a sink publishing to
// cfg.Topic.
func NewMQTTSink(cfg MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is not configured")
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientID := "face-attendance-" + uuid.New().String()
	opts := mqtt.NewClientOptions().AddBroker(cfg.Broker).SetClientID(clientID)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetAutoReconnect(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnect = func(mqtt.Client) {
		logger.Info("connected to mqtt", "broker", cfg.Broker, "client_id", clientID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("could not connect to mqtt broker %s: %w", cfg.Broker, token.Error())
	}

	return newMQTTSink(client, cfg.Topic, logger), nil
}

func newMQTTSink(client publisher, topic string, logger *slog.Logger) *MQTTSink {
	return &MQTTSink{client: client, topic: topic, logger: logger}
}

// Send publishes the event without waiting for the broker acknowledgement.
func (s *MQTTSink) Send(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	token := s.client.Publish(s.topic, 0, false, payload)
	go func() {
		if !token.WaitTimeout(mqttPublishTimeout) {
			s.logger.Warn("mqtt publish timed out", "topic", s.topic, "type", event.Type)
			return
		}
		if err := token.Error(); err != nil {
			s.logger.Warn("mqtt publish failed", "topic", s.topic, "type", event.Type, "error", err)
		}
	}()
	return nil
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(mqttQuiesceMillis)
}

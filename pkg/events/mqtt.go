// Package events mirrors tracker status and dashboard events onto an MQTT broker.
package events

import (
	"encoding/json"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/tracking"
)

// DefaultTopic is the prefix for all published topics.
const DefaultTopic = "gaze"

const (
	connectTimeout = 5 * time.Second
	quiesceMillis  = 250
)

// Config selects the broker and topic prefix.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
}

// Client is the part of mqtt.Client the publisher uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Event is the payload on <topic>/events.
type Event struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

// Publisher sends status snapshots to <topic>/status (retained) and events to
// <topic>/events. Publishing never waits for the broker.
type Publisher struct {
	client Client
	topic  string
}

// Dial connects to the broker.
func Dial(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("events: broker is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "go-gaze"
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.New("events: connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, err
	}

	log.Info("mqtt connected", "broker", cfg.Broker, "topic", topicOrDefault(cfg.Topic))
	return NewPublisher(client, cfg.Topic), nil
}

// NewPublisher wraps an already connected client.
func NewPublisher(client Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topicOrDefault(topic)}
}

func topicOrDefault(t string) string {
	if t == "" {
		return DefaultTopic
	}
	return t
}

// Topic returns the topic prefix.
func (p *Publisher) Topic() string {
	return p.topic
}

// PublishStatus sends the snapshot as retained JSON so new subscribers see the current mode.
func (p *Publisher) PublishStatus(st tracking.State) {
	p.send(p.topic+"/status", true, st)
}

// AddLog sends one dashboard event.
func (p *Publisher) AddLog(level, message string) {
	p.send(p.topic+"/events", false, Event{
		Time:    time.Now(),
		Level:   level,
		Message: message,
	})
}

func (p *Publisher) send(topic string, retained bool, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Warn("mqtt encode failed", "topic", topic, "error", err)
		return
	}

	token := p.client.Publish(topic, 0, retained, payload)
	go func() {
		<-token.Done()
		if err := token.Error(); err != nil {
			log.Debug("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

// Close disconnects after letting queued messages drain.
func (p *Publisher) Close() {
	p.client.Disconnect(quiesceMillis)
}

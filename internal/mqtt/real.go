package mqtt

import (
	"fmt"
	"time"

	"github.com/bnema/wayidle/internal/logger"
	"github.com/bnema/wayidle/internal/transition"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Options configures a RealPublisher.
type Options struct {
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	Retained bool
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	opts   Options
}

// NewRealPublisher creates a publisher connected to the given broker. The
// client id gets a random suffix so several sessions can share a broker.
// "<topic>/status" carries online/offline, with offline set as the will.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	statusTopic := TopicFor(opts.Topic, "status")

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(fmt.Sprintf("%s-%s", opts.ClientID, uuid.NewString())).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(statusTopic, "offline", opts.QoS, true).
		SetOnConnectHandler(func(c paho.Client) {
			c.Publish(statusTopic, opts.QoS, true, "online")
			logger.Infof("Connected to MQTT broker %s", opts.Broker)
		}).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warnf("Lost connection to MQTT broker: %v", err)
		})

	client := paho.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{client: client, opts: opts}, nil
}

// Publish sends a transition to the MQTT broker.
func (p *RealPublisher) Publish(event transition.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := p.client.Publish(TopicFor(p.opts.Topic, event.Tier), p.opts.QoS, p.opts.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// IsConnected reports whether the client is connected to the broker.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close marks the session offline and disconnects from the broker.
func (p *RealPublisher) Close() error {
	token := p.client.Publish(TopicFor(p.opts.Topic, "status"), p.opts.QoS, true, "offline")
	token.WaitTimeout(time.Second)
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

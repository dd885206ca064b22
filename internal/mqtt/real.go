package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"roast_monitor/internal/models"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client       paho.Client
	samplesTopic string
	eventsTopic  string
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, clientID, topicPrefix string) (*RealPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWriteTimeout(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	samples, events := Topics(topicPrefix)
	return &RealPublisher{
		client:       client,
		samplesTopic: samples,
		eventsTopic:  events,
	}, nil
}

// PublishSample sends a sample at QoS 0; a lost sample is superseded a
// second later.
func (p *RealPublisher) PublishSample(at time.Time, point models.DataPoint) error {
	payload, err := FormatSamplePayload(at, point)
	if err != nil {
		return fmt.Errorf("format sample payload: %w", err)
	}
	token := p.client.Publish(p.samplesTopic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish sample timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish sample: %w", err)
	}
	return nil
}

// PublishEvent sends a transition or milestone at QoS 1.
func (p *RealPublisher) PublishEvent(event Event) error {
	payload, err := FormatEventPayload(event)
	if err != nil {
		return fmt.Errorf("format event payload: %w", err)
	}
	token := p.client.Publish(p.eventsTopic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish event timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

package mqtt

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/wiegand-reader/internal/reader"
)

// bufferCapacity is how many messages are kept while the broker is unreachable.
const bufferCapacity = 256

// publishTimeout bounds the wait for a publish acknowledgement.
const publishTimeout = 5 * time.Second

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed on reconnect.
type RealPublisher struct {
	client      paho.Client
	frameTopic  string
	systemTopic string

	mu      sync.Mutex
	pending *ringBuffer

	connectedOnce atomic.Bool
}

// NewRealPublisher connects to broker. If the broker is not reachable within
// the connect timeout the publisher is still returned and keeps retrying in
// the background.
func NewRealPublisher(broker, clientID, topicPrefix string) (*RealPublisher, error) {
	frames, system := Topics(topicPrefix, clientID)
	p := &RealPublisher{
		frameTopic:  frames,
		systemTopic: system,
		pending:     newRingBuffer(bufferCapacity),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "LWT",
		Reason:    "connection lost",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetMaxReconnectInterval(30*time.Second).
		SetWill(system, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

// Publish sends a reader event to the MQTT broker.
func (p *RealPublisher) Publish(event reader.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1 for frames
	return p.publish(p.frameTopic, 1, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.systemTopic, 1, event.Retained, payload)
}

// IsConnected reports whether the client currently has a broker connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.pending.push(pendingMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}

	return send(p.client, topic, qos, retained, payload)
}

// send publishes and waits for the broker to acknowledge.
func send(c paho.Client, topic string, qos byte, retained bool, payload []byte) error {
	token := c.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// onConnect runs on paho's goroutine after every (re)connect.
func (p *RealPublisher) onConnect(c paho.Client) {
	if p.connectedOnce.Swap(true) {
		log.Printf("mqtt: reconnected")
		if err := p.announceReconnect(c); err != nil {
			log.Printf("mqtt: RECONNECTED event failed: %v", err)
		}
	} else {
		log.Printf("mqtt: connected")
	}

	p.mu.Lock()
	msgs := p.pending.drainAll()
	p.mu.Unlock()

	if len(msgs) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(msgs))
	}
	for _, m := range msgs {
		if err := send(c, m.topic, m.qos, m.retained, m.payload); err != nil {
			log.Printf("mqtt: replay failed: %v", err)
		}
	}
}

func (p *RealPublisher) announceReconnect(c paho.Client) error {
	payload, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return send(c, p.systemTopic, 1, true, payload)
}

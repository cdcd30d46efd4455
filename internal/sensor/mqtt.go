package sensor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fermenter_controller/internal/logger"
	"fermenter_controller/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Sink receives every decoded reading. It must not block.
type Sink func(models.SensorReading)

// MQTTSource subscribes to hydrometer topics such as tilt/RED; the last
// topic segment is the sensor id.
type MQTTSource struct {
	client mqtt.Client
	topic  string
	sink   Sink
	log    *logger.Logger
	now    func() time.Time
}

func NewMQTTSource(client mqtt.Client, topic string, sink Sink, log *logger.Logger) *MQTTSource {
	return &MQTTSource{client: client, topic: topic, sink: sink, log: log, now: time.Now}
}

// Run subscribes and blocks until ctx is canceled.
func (s *MQTTSource) Run(ctx context.Context) error {
	token := s.client.Subscribe(s.topic, 1, s.onMessage)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", s.topic, err)
	}
	s.log.Infow("sensor_subscribed", "topic", s.topic)

	<-ctx.Done()
	s.client.Unsubscribe(s.topic)
	return nil
}

func (s *MQTTSource) onMessage(_ mqtt.Client, msg mqtt.Message) {
	s.handle(msg.Topic(), msg.Payload())
}

func (s *MQTTSource) handle(topic string, body []byte) {
	r, err := Parse(sensorIDFromTopic(topic), body, s.now())
	if err != nil {
		s.log.Debugw("sensor_message_ignored", "topic", topic, "err", err)
		return
	}
	s.sink(r)
}

func sensorIDFromTopic(topic string) string {
	topic = strings.TrimRight(topic, "/")
	if i := strings.LastIndex(topic, "/"); i >= 0 {
		return topic[i+1:]
	}
	return topic
}

// NewMQTTClient connects to broker with auto-reconnect enabled.
func NewMQTTClient(broker, clientID, username, password string, log *logger.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warnw("mqtt_connection_lost", "err", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Infow("mqtt_connected", "broker", broker)
		})
	if username != "" {
		opts.SetUsername(username).SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		// ConnectRetry keeps trying in the background.
		log.Warnw("mqtt_connect_pending", "broker", broker)
		return client, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, err)
	}
	return client, nil
}

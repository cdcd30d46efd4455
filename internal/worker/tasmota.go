package worker

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// publisher is the part of mqtt.Client the switch needs.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// TasmotaSwitch drives Tasmota plugs through cmnd/<topic>/POWER.
type TasmotaSwitch struct {
	client publisher
}

func NewTasmotaSwitch(client mqtt.Client) *TasmotaSwitch {
	return &TasmotaSwitch{client: client}
}

func (s *TasmotaSwitch) Set(ctx context.Context, topic string, on bool) error {
	payload := "OFF"
	if on {
		payload = "ON"
	}
	token := s.client.Publish("cmnd/"+topic+"/POWER", 1, false, payload)

	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

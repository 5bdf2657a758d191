// Package mqtt publishes completed-turn notifications to an MQTT
// broker so other household services can react to assistant activity
// without polling the HTTP API.
package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/quillworks/quill-assistant/internal/config"
	"github.com/quillworks/quill-assistant/internal/events"
)

// Notifier manages the MQTT connection and relays turn_complete events
// from the pipeline bus to the configured topic.
type Notifier struct {
	cfg    config.MQTTConfig
	bus    *events.Bus
	logger *slog.Logger
	cm     *autopaho.ConnectionManager
}

// New creates a Notifier but does not connect. Call [Notifier.Start]
// to begin the connection and relay loop.
func New(cfg config.MQTTConfig, bus *events.Bus, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:    cfg,
		bus:    bus,
		logger: logger.With("component", "mqtt"),
	}
}

// Start connects to the MQTT broker and relays bus events until ctx is
// cancelled. It publishes a retained availability message on every
// (re-)connect, with an offline will message for unclean exits.
func (n *Notifier) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(n.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	availTopic := n.cfg.Topic + "/availability"

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: n.cfg.Username,
		ConnectPassword: []byte(n.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   availTopic,
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			n.logger.Info("mqtt connected to broker", "broker", n.cfg.Broker)
			n.publishAvailability(ctx, cm, "online")
		},
		OnConnectError: func(err error) {
			n.logger.Warn("mqtt connection error", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: "quill-assistant",
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	n.cm = cm

	connCtx, connCancel := context.WithTimeout(ctx, 30*time.Second)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		// autopaho keeps retrying in the background.
		n.logger.Warn("mqtt initial connection timed out, will retry in background", "error", err)
	}

	n.relayLoop(ctx)
	return nil
}

// Stop gracefully disconnects by publishing an "offline" availability
// message before closing the MQTT connection.
func (n *Notifier) Stop(ctx context.Context) error {
	if n.cm == nil {
		return nil
	}
	n.publishAvailability(ctx, n.cm, "offline")
	return n.cm.Disconnect(ctx)
}

// relayLoop forwards turn_complete events from the bus until ctx is
// cancelled.
func (n *Notifier) relayLoop(ctx context.Context) {
	ch := n.bus.Subscribe(64)
	defer n.bus.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Kind != events.KindTurnComplete {
				continue
			}
			n.publishTurn(ctx, ev)
		}
	}
}

func (n *Notifier) publishTurn(ctx context.Context, ev events.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("mqtt marshal turn payload", "error", err)
		return
	}

	if _, err := n.cm.Publish(ctx, &paho.Publish{
		Topic:   n.cfg.Topic,
		Payload: payload,
		QoS:     1,
	}); err != nil {
		n.logger.Warn("mqtt turn publish failed", "topic", n.cfg.Topic, "error", err)
		return
	}
	n.logger.Debug("mqtt turn published", "topic", n.cfg.Topic)
}

func (n *Notifier) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   n.cfg.Topic + "/availability",
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		n.logger.Warn("mqtt availability publish failed", "status", status, "error", err)
	} else {
		n.logger.Info("mqtt availability published", "status", status)
	}
}

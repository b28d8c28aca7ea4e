package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bher20/meterledger/internal/billing"
)

const (
	defaultTopicPrefix = "meterledger"
	defaultClientID    = "meterledger"
	publishTimeout     = 10 * time.Second
)

// Config describes the MQTT broker statistics are published to.
type Config struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	ClientID    string `yaml:"client_id"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// Publisher publishes statistics reports to MQTT as retained messages.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// New connects to the configured broker.
func New(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("MQTT broker address is required")
	}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultClientID
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.WaitTimeout(publishTimeout) && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}
	log.Printf("publisher: connected broker=%s", broker)

	return newWithClient(client, cfg.TopicPrefix), nil
}

func newWithClient(client mqtt.Client, prefix string) *Publisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return &Publisher{client: client, topicPrefix: prefix}
}

// Topic returns the topic an owner's statistics are published on.
func (p *Publisher) Topic(owner string) string {
	return p.topicPrefix + "/" + owner + "/statistics"
}

// PublishReport publishes report for owner as a retained JSON message.
func (p *Publisher) PublishReport(ctx context.Context, owner string, report billing.Report) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}

	token := p.client.Publish(p.Topic(owner), 1, true, body)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(publishTimeout):
		return fmt.Errorf("publishing to %s: timed out", p.Topic(owner))
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", p.Topic(owner), err)
	}
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

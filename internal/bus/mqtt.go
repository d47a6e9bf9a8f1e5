package bus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"net/url"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"hermes-text/internal/proxy"
)

var ErrTimeout = errors.New("bus: timed out")

// MQTTOptions configure a broker connection.
type MQTTOptions struct {
	BrokerURL            string
	ClientID             string
	Username             string
	Password             string
	ProxyAddr            string
	ConnectTimeout       time.Duration
	MaxReconnectInterval time.Duration
}

// MQTTTransport talks to an MQTT broker. Reconnects are left to paho and
// reported through Events.
type MQTTTransport struct {
	log    *log.Logger
	opts   MQTTOptions
	broker *url.URL
	client mqtt.Client
}

func NewMQTTTransport(logger *log.Logger, opts MQTTOptions) (*MQTTTransport, error) {
	u, err := url.Parse(opts.BrokerURL)
	if err != nil {
		return nil, fmt.Errorf("broker url: %w", err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("broker url %q: missing host", opts.BrokerURL)
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &MQTTTransport{log: logger, opts: opts, broker: u}, nil
}

func (m *MQTTTransport) clientOptions(events Events) (*mqtt.ClientOptions, error) {
	o := mqtt.NewClientOptions().
		AddBroker(m.opts.BrokerURL).
		SetClientID(m.opts.ClientID).
		SetCleanSession(true).
		SetOrderMatters(true).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(m.opts.ConnectTimeout)

	if m.opts.MaxReconnectInterval > 0 {
		o.SetMaxReconnectInterval(m.opts.MaxReconnectInterval)
	}
	if m.opts.Username != "" {
		o.SetUsername(m.opts.Username)
		o.SetPassword(m.opts.Password)
	}

	if m.opts.ProxyAddr != "" {
		switch m.broker.Scheme {
		case "tcp", "mqtt", "ssl", "tls", "mqtts", "tcps":
		default:
			return nil, fmt.Errorf("proxy not supported for %s brokers", m.broker.Scheme)
		}
		dial, err := proxy.NewDialer(m.opts.ProxyAddr, m.opts.ConnectTimeout)
		if err != nil {
			return nil, err
		}
		o.SetCustomOpenConnectionFn(func(uri *url.URL, options mqtt.ClientOptions) (net.Conn, error) {
			ctx, cancel := context.WithTimeout(context.Background(), options.ConnectTimeout)
			defer cancel()
			conn, err := dial(ctx, "tcp", uri.Host)
			if err != nil {
				return nil, err
			}
			switch uri.Scheme {
			case "ssl", "tls", "mqtts", "tcps":
				cfg := options.TLSConfig
				if cfg == nil {
					cfg = &tls.Config{}
				}
				if cfg.ServerName == "" {
					cfg = cfg.Clone()
					cfg.ServerName = uri.Hostname()
				}
				return tls.Client(conn, cfg), nil
			}
			return conn, nil
		})
	}

	o.SetOnConnectHandler(func(mqtt.Client) {
		events.OnConnect()
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		events.OnLost(err)
	})
	o.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		events.OnMessage(msg.Topic(), msg.Payload())
	})
	return o, nil
}

func (m *MQTTTransport) Connect(ctx context.Context, events Events) error {
	o, err := m.clientOptions(events)
	if err != nil {
		return err
	}
	m.client = mqtt.NewClient(o)

	m.log.Info("Connecting to broker", "url", m.opts.BrokerURL, "client", m.opts.ClientID)
	token := m.client.Connect()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt connect %s: %w", m.opts.BrokerURL, err)
		}
		return nil
	case <-ctx.Done():
		m.client.Disconnect(0)
		return ctx.Err()
	}
}

func (m *MQTTTransport) Subscribe(filters []string) error {
	if m.client == nil {
		return errors.New("mqtt: not connected")
	}
	subs := make(map[string]byte, len(filters))
	for _, f := range filters {
		subs[f] = 0
	}
	return m.wait(m.client.SubscribeMultiple(subs, nil), "subscribe")
}

func (m *MQTTTransport) Publish(topic string, payload []byte) error {
	if m.client == nil {
		return errors.New("mqtt: not connected")
	}
	return m.wait(m.client.Publish(topic, 0, false, payload), "publish "+topic)
}

func (m *MQTTTransport) Close(timeout time.Duration) {
	if m.client == nil {
		return
	}
	m.client.Disconnect(uint(timeout.Milliseconds()))
}

func (m *MQTTTransport) wait(token mqtt.Token, what string) error {
	if !token.WaitTimeout(m.opts.ConnectTimeout) {
		return fmt.Errorf("mqtt %s: %w", what, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", what, err)
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/spf13/pflag"

	"hermes-text/internal/bus"
	"hermes-text/internal/config"
	"hermes-text/internal/ipc"
	"hermes-text/internal/logging"
	"hermes-text/internal/queue"
	"hermes-text/internal/satellite"
	"hermes-text/internal/version"
	"hermes-text/pkg/hermes"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, cli.ErrHelp) {
			return nil
		}
		return err
	}

	logger, err := logging.Setup(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger.Info("Booting up", "version", version.String(), "transport", cfg.Transport, "wakeword", cfg.Wakeword)

	transport, err := newTransport(logger, cfg)
	if err != nil {
		return err
	}

	b := bus.New(logger.With("component", "bus"), transport, hermes.Subscriptions())
	tasks := queue.New(256, logger.With("component", "queue"))
	d := satellite.NewDispatcher(logger.With("component", "satellite"), b, cfg.Wakeword)

	srv := ipc.NewServer(logger.With("component", "ipc"), cfg.SocketPath, func(sender, text string) error {
		res := make(chan error, 1)
		err := tasks.Enqueue(func(context.Context) error {
			err := d.Push(sender, text)
			res <- err
			return err
		})
		if err != nil {
			return err
		}
		select {
		case err := <-res:
			return err
		case <-tasks.Done():
			return queue.ErrClosed
		}
	})

	d.Subscribe(func(recipient, text string) {
		logger.Info("Reply", "to", recipient, "text", text)
		srv.Broadcast(ipc.Reply{Recipient: recipient, Text: text})
	})

	b.Handle(func(topic string, payload []byte) {
		err := tasks.Enqueue(func(context.Context) error {
			d.OnMessage(topic, payload)
			return nil
		})
		if err != nil {
			logger.Debug("Inbound dropped", "topic", topic, "err", err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The queue outlives ctx so work accepted before shutdown still runs.
	go tasks.Start(context.Background())

	if err := b.Connect(ctx); err != nil {
		tasks.Close()
		return err
	}

	if err := srv.Start(); err != nil {
		tasks.Close()
		b.Close(0)
		return fmt.Errorf("ipc server: %w", err)
	}

	logger.Info("Boot up - successful", "socket", cfg.SocketPath)
	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	if err := srv.Close(); err != nil {
		logger.Warn("Control socket close", "err", err)
	}
	tasks.Close()
	<-tasks.Done()
	logger.Debug("Queue drained", "sites", len(d.Sites()), "pending", b.Pending())

	b.Close(cfg.ShutdownTimeout)
	logger.Info("Program stopped cleanly")
	return nil
}

func newTransport(logger *log.Logger, cfg config.Config) (bus.Transport, error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		t, err := bus.NewMQTTTransport(logger.With("transport", "mqtt"), bus.MQTTOptions{
			BrokerURL:            cfg.BrokerURL,
			ClientID:             cfg.ClientID,
			Username:             cfg.Username,
			Password:             cfg.Password,
			ProxyAddr:            cfg.ProxyAddr,
			MaxReconnectInterval: cfg.ReconnectInterval,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	case config.TransportHub:
		t, err := bus.NewHubTransport(logger.With("transport", "hub"), bus.HubOptions{
			URL:                  cfg.BrokerURL,
			ProxyAddr:            cfg.ProxyAddr,
			MaxReconnectInterval: cfg.ReconnectInterval,
		})
		if err != nil {
			return nil, err
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w %q", config.ErrUnknownTransport, cfg.Transport)
}

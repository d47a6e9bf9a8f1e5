package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cli "github.com/spf13/pflag"

	"hermes-text/internal/ipc"
)

var errUsage = errors.New("usage: hermes-ctl -s <sender> [-w] <text...>")

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	sender := cli.StringP("sender", "s", os.Getenv("USER"), "Sender name")
	wait := cli.BoolP("wait", "w", false, "Wait for the reply to the sender")
	listen := cli.BoolP("listen", "l", false, "Print every reply until interrupted")
	socket := cli.StringP("socket", "S", ipc.DefaultSocketPath, "Control socket path")
	timeout := cli.DurationP("timeout", "t", 30*time.Second, "How long to wait for a reply")
	cli.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *listen {
		err := ipc.Listen(ctx, *socket, "", func(r ipc.Reply) bool {
			fmt.Printf("%s: %s\n", r.Recipient, r.Text)
			return true
		})
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("hermes-daemon not running: %w", err)
		}
		return nil
	}

	text := strings.Join(cli.Args(), " ")
	if text == "" {
		return errUsage
	}

	if !*wait {
		if err := ipc.SendPush(*socket, *sender, text); err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		return nil
	}

	// Listen before pushing so a fast reply is not missed.
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	st, err := ipc.Subscribe(ctx, *socket, *sender)
	if err != nil {
		return fmt.Errorf("hermes-daemon not running: %w", err)
	}
	defer st.Close()

	if err := ipc.SendPush(*socket, *sender, text); err != nil {
		return fmt.Errorf("push failed: %w", err)
	}

	r, err := st.Next()
	if err != nil {
		return fmt.Errorf("no reply: %w", err)
	}
	fmt.Println(r.Text)
	return nil
}

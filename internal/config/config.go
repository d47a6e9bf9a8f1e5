// Package config assembles daemon settings from flags, the environment and
// an optional .env file. Flags win over the environment, which wins over
// the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	cli "github.com/spf13/pflag"

	"hermes-text/internal/ipc"
	"hermes-text/internal/version"
)

const (
	TransportMQTT = "mqtt"
	TransportHub  = "hub"
)

var ErrUnknownTransport = errors.New("unknown transport")

type Config struct {
	Transport         string        `env:"HERMES_TRANSPORT,default=mqtt" validate:"oneof=mqtt hub"`
	BrokerURL         string        `env:"HERMES_BROKER_URL,default=mqtt://localhost:1883" validate:"required,url"`
	Wakeword          string        `env:"HERMES_WAKEWORD,default=default" validate:"required,excludesall=/+#"`
	ClientID          string        `env:"HERMES_CLIENT_ID"`
	Username          string        `env:"HERMES_USERNAME"`
	Password          string        `env:"HERMES_PASSWORD"`
	ProxyAddr         string        `env:"HERMES_PROXY" validate:"omitempty,hostname_port"`
	SocketPath        string        `env:"HERMES_SOCKET,default=/tmp/hermes-text.sock" validate:"required"`
	LogLevel          string        `env:"LOG_LEVEL,default=info" validate:"oneof=trace debug info warn error"`
	ShutdownTimeout   time.Duration `env:"HERMES_SHUTDOWN_TIMEOUT,default=5s" validate:"gte=0"`
	ReconnectInterval time.Duration `env:"HERMES_RECONNECT_INTERVAL,default=30s" validate:"gt=0"`
}

// Load parses args (without the program name) and the environment.
func Load(args []string) (Config, error) {
	flags := cli.NewFlagSet(version.Name, cli.ContinueOnError)
	envFile := flags.StringP("env", "e", ".env", "Env file path")
	transport := flags.StringP("transport", "t", TransportMQTT, "Transport: mqtt or hub")
	broker := flags.StringP("broker", "b", "", "Broker or hub URL")
	wakeword := flags.StringP("wakeword", "w", "", "Wake word name")
	clientID := flags.StringP("client-id", "i", "", "MQTT client id")
	proxyAddr := flags.StringP("proxy", "p", "", "Socks Proxy Address")
	socket := flags.StringP("socket", "s", ipc.DefaultSocketPath, "Control socket path")
	logLevel := flags.StringP("log", "l", "info", "Log level")
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(*envFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || flags.Changed("env") {
			return Config{}, fmt.Errorf("env file %s: %w", *envFile, err)
		}
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config error: %w", err)
	}

	override := func(name string, dst *string, val string) {
		if flags.Changed(name) {
			*dst = val
		}
	}
	override("transport", &cfg.Transport, *transport)
	override("broker", &cfg.BrokerURL, *broker)
	override("wakeword", &cfg.Wakeword, *wakeword)
	override("client-id", &cfg.ClientID, *clientID)
	override("proxy", &cfg.ProxyAddr, *proxyAddr)
	override("socket", &cfg.SocketPath, *socket)
	override("log", &cfg.LogLevel, *logLevel)

	if cfg.ClientID == "" {
		cfg.ClientID = version.Name + "-" + uuid.NewString()
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			if fe.Field() == "Transport" {
				return fmt.Errorf("%w %q", ErrUnknownTransport, cfg.Transport)
			}
			return fmt.Errorf("invalid %s: %q fails %s", fe.Field(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return err
	}
	return nil
}

// Command parley is a small terminal client for the Parley chat platform,
// mostly useful for poking at a gateway during development.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	parley "github.com/ParleyChat/parley-go-sdk"
	"github.com/ParleyChat/parley-go-sdk/wire"
)

type config struct {
	APIURL   string `env:"PARLEY_API_URL" envDefault:"http://localhost:8080"`
	WSURL    string `env:"PARLEY_WS_URL" envDefault:"ws://localhost:8080/ws/chat"`
	Email    string `env:"PARLEY_EMAIL"`
	Password string `env:"PARLEY_PASSWORD"`
	LogLevel string `env:"PARLEY_LOG_LEVEL" envDefault:"info"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	cmd := &cli.Command{
		Name:  "parley",
		Usage: "Terminal client for the Parley chat platform",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "api-url",
				Usage:       "REST API base URL",
				Value:       cfg.APIURL,
				Destination: &cfg.APIURL,
			},
			&cli.StringFlag{
				Name:        "ws-url",
				Usage:       "realtime gateway WebSocket URL",
				Value:       cfg.WSURL,
				Destination: &cfg.WSURL,
			},
			&cli.StringFlag{
				Name:        "email",
				Usage:       "account email",
				Value:       cfg.Email,
				Destination: &cfg.Email,
			},
			&cli.StringFlag{
				Name:        "password",
				Usage:       "account password",
				Value:       cfg.Password,
				Destination: &cfg.Password,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Value:       cfg.LogLevel,
				Destination: &cfg.LogLevel,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "listen",
				Usage: "Connect and print incoming messages until interrupted",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runListen(ctx, cfg)
				},
			},
			{
				Name:  "send",
				Usage: "Send a direct message",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "to", Usage: "receiver user id", Required: true},
					&cli.StringFlag{Name: "text", Usage: "message text", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runSend(ctx, cfg, c.Int("to"), c.String("text"))
				},
			},
			{
				Name:  "send-group",
				Usage: "Send a message to a group",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "group", Usage: "group id", Required: true},
					&cli.StringFlag{Name: "text", Usage: "message text", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runSendGroup(ctx, cfg, c.Int("group"), c.String("text"))
				},
			},
			{
				Name:  "friends",
				Usage: "List friends",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runFriends(ctx, cfg)
				},
			},
			{
				Name:  "groups",
				Usage: "List groups",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return runGroups(ctx, cfg)
				},
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(cfg config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()
}

func login(ctx context.Context, cfg config, log zerolog.Logger) (*parley.Session, error) {
	api := parley.NewAPIClient(cfg.APIURL, log)
	conn := parley.NewConn(parley.Config{Endpoint: cfg.WSURL, Logger: log})
	session := parley.NewSession(api, conn, log)

	if err := session.Login(ctx, cfg.Email, cfg.Password); err != nil {
		return nil, err
	}
	return session, nil
}

// printer dumps inbound direct messages to stdout. Registered as a pointer
// so it can be unregistered.
type printer struct{}

func (*printer) HandleFrame(topic string, body json.RawMessage) {
	var m parley.Message
	if err := json.Unmarshal(body, &m); err != nil {
		return
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Format("15:04:05"), m.SenderUsername, m.Content)
}

func runListen(ctx context.Context, cfg config) error {
	log := newLogger(cfg)
	session, err := login(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Logout()

	user, _ := session.CurrentUser()

	p := &printer{}
	reg := session.Registry()
	reg.Register(wire.InboxTopic(user.ID), p)
	defer reg.Unregister(wire.InboxTopic(user.ID), p)

	fmt.Printf("listening as %s (id %d), ctrl-c to quit\n", user.Username, user.ID)
	<-ctx.Done()
	return nil
}

func runSend(ctx context.Context, cfg config, to int64, text string) error {
	log := newLogger(cfg)
	session, err := login(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Logout()

	if _, err := session.Direct().Send(to, text, parley.MessageText); err != nil {
		return err
	}
	fmt.Println("sent")
	return nil
}

func runSendGroup(ctx context.Context, cfg config, groupID int64, text string) error {
	log := newLogger(cfg)
	session, err := login(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Logout()

	if err := session.OpenGroup(ctx, groupID); err != nil {
		return err
	}
	if err := session.Groups().Send(groupID, text, parley.MessageText); err != nil {
		return err
	}
	fmt.Println("sent")
	return nil
}

func runFriends(ctx context.Context, cfg config) error {
	log := newLogger(cfg)
	session, err := login(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Logout()

	for _, f := range session.FriendList() {
		fmt.Printf("%d\t%s\t%s\n", f.ID, f.Username, f.Email)
	}
	return nil
}

func runGroups(ctx context.Context, cfg config) error {
	log := newLogger(cfg)
	session, err := login(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer session.Logout()

	for _, g := range session.GroupList() {
		fmt.Printf("%d\t%s\t%d members\n", g.ID, g.Name, g.MemberCount)
	}
	return nil
}

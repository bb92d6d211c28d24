package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/heyitswither/rwci/internal/app"
	"github.com/heyitswither/rwci/internal/config"
	"github.com/heyitswither/rwci/internal/log"
)

var (
	version = "dev"
	commit  = "unknown"
)

type globalFlags struct {
	configPath string
	gateway    string
	username   string
	transport  string
	logLevel   string
	logFormat  string
	statusAddr string
}

func (f globalFlags) overrides() config.Config {
	return config.Config{
		GatewayURL: f.gateway,
		Username:   f.username,
		Transport:  f.transport,
		LogLevel:   f.logLevel,
		LogFormat:  f.logFormat,
		StatusAddr: f.statusAddr,
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "rwci",
		Short:         "Realtime chat client",
		Long:          "rwci connects to a realtime chat gateway over a websocket and chats interactively or runs a bot.",
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file path (default is ./rwci.yaml)")
	pf.StringVar(&flags.gateway, "gateway", "", "gateway websocket URL")
	pf.StringVarP(&flags.username, "username", "u", "", "username to authenticate as")
	pf.StringVar(&flags.transport, "transport", "", "websocket implementation: websocket, gobwas or gorilla")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "log format: console or json")
	pf.StringVar(&flags.statusAddr, "status-addr", "", "serve /health, /session and /metrics on this address")

	root.AddCommand(newChatCmd(flags), newEchoCmd(flags))
	return root
}

// setup resolves configuration and builds the application.
// Precedence: defaults < config file < RWCI_* env (.env included) < flags.
func setup(flags *globalFlags) (*app.App, *zerolog.Logger, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, nil, fmt.Errorf("load .env: %w", err)
	}

	bootLevel := flags.logLevel
	if bootLevel == "" {
		bootLevel = "warn"
	}
	bootLogger := log.New(bootLevel, flags.logFormat)

	cfg, path, err := config.Load(bootLogger, flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.UpdateFrom(flags.overrides())

	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config", path).Str("gateway", cfg.GatewayURL).Str("transport", cfg.Transport).Msg("config loaded")

	if cfg.Username == "" {
		return nil, nil, errors.New("username is required (--username, RWCI_USERNAME or config file)")
	}
	if cfg.Password == "" {
		password, err := promptPassword(cfg.Username)
		if err != nil {
			return nil, nil, err
		}
		cfg.Password = password
	}

	a, err := app.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, logger, nil
}

func promptPassword(username string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no password configured and stdin is not a terminal (set RWCI_PASSWORD)")
	}

	fmt.Fprintf(os.Stderr, "Password for %s: ", username)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(string(password), "\r\n"), nil
}

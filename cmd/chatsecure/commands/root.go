package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"chatsecure/internal/app"
	"chatsecure/internal/services/conversation"
)

var (
	home       string
	passphrase string
	dirURL     string
	rtURL      string
	logLevel   string

	wire *app.Wire

	// Hook sinks, assigned by commands that want live updates.
	onRefresh func()
	onError   func(error)
)

const configFile = "config.toml"

func Execute() error {
	root := &cobra.Command{
		Use:           "chatsecure",
		Short:         "End-to-end encrypted chat client",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".chatsecure")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			cfg := app.DefaultConfig()
			if err := app.LoadConfig(filepath.Join(home, configFile), &cfg); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			cfg.Home = home
			cfg.Passphrase = passphrase
			if dirURL != "" {
				cfg.DirectoryURL = dirURL
			}
			if rtURL != "" {
				cfg.RealtimeURL = rtURL
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}

			hooks := conversation.Hooks{
				OnRefresh: func() {
					if onRefresh != nil {
						onRefresh()
					}
				},
				OnError: func(err error) {
					if onError != nil {
						onError(err)
					}
				},
			}

			var err error
			wire, err = app.NewWire(cfg, hooks)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if wire != nil {
				wire.Close()
			}
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "config dir (default ~/.chatsecure)")
	root.PersistentFlags().StringVarP(&passphrase, "passphrase", "p", "", "optional passphrase protecting the stored key")
	root.PersistentFlags().StringVar(&dirURL, "directory", "", "directory base URL")
	root.PersistentFlags().StringVar(&rtURL, "realtime", "", "realtime websocket URL")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (ERROR..DEBUG)")

	root.AddCommand(initCmd(), importCmd(), exportCmd(), fingerprintCmd(), chatCmd(), logoutCmd())
	return root.Execute()
}

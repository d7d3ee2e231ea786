package commands

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/totegamma/nostrconnect/internal/app"
	"github.com/totegamma/nostrconnect/internal/config"
)

var (
	home       string
	configPath string
	driver     string
	logLevel   string
	appCtx     *app.App
)

func Execute(ctx context.Context) error {
	root := &cobra.Command{
		Use:          "nostrconnect",
		Short:        "Remote signing and delegation session manager for nostr",
		SilenceUsage: true,
		Version:      app.Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if home == "" {
				dir, err := os.UserHomeDir()
				if err != nil {
					return err
				}
				home = filepath.Join(dir, ".nostrconnect")
			}
			if err := os.MkdirAll(home, 0o700); err != nil {
				return err
			}

			if configPath == "" {
				if _, err := os.Stat(filepath.Join(home, "config.yaml")); err == nil {
					configPath = filepath.Join(home, "config.yaml")
				}
			}
			conf, err := config.LoadOrDefault(configPath)
			if err != nil {
				return err
			}

			if driver != "" {
				conf.Store.Driver = driver
			}
			if logLevel != "" {
				conf.Log.Level = logLevel
			}
			if conf.Store.Path == "" {
				switch conf.Store.Driver {
				case "file":
					conf.Store.Path = filepath.Join(home, conf.Session.Namespace+".session")
				case "bolt":
					conf.Store.Path = filepath.Join(home, "session.db")
				}
			}

			app.SetupLogger(os.Stderr, conf.Log)

			appCtx, err = app.New(cmd.Context(), conf)
			return err
		},
	}

	root.PersistentFlags().StringVar(&home, "home", "", "state dir (default ~/.nostrconnect)")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default <home>/config.yaml)")
	root.PersistentFlags().StringVar(&driver, "store", "", "record store driver: memory, file, bolt, redis, memcache, postgres")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		serveCmd(),
		inviteCmd(),
		connectCmd(),
		delegateCmd(),
		publishCmd(),
		relayCmd(),
		statusCmd(),
		logoutCmd(),
		tokenCmd(),
		inspectCmd(),
	)

	defer func() {
		if appCtx != nil {
			appCtx.Close()
		}
	}()
	return root.ExecuteContext(ctx)
}

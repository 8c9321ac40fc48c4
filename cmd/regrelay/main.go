package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/itregistry/regrelay/internal/profile"
	"github.com/itregistry/regrelay/plugin/tracker"
	"github.com/itregistry/regrelay/server"
	"github.com/itregistry/regrelay/server/dispatcher"
	"github.com/itregistry/regrelay/server/session"
	"github.com/itregistry/regrelay/store"
	"github.com/itregistry/regrelay/store/db"
)

var (
	rootCmd = &cobra.Command{
		Use:   "regrelay",
		Short: "Subscription relay between a tracker and its notification subscribers",
		RunE: func(_ *cobra.Command, _ []string) error {
			instanceProfile := &profile.Profile{
				Mode:   viper.GetString("mode"),
				Addr:   viper.GetString("addr"),
				Port:   viper.GetInt("port"),
				Data:   viper.GetString("data"),
				Driver: viper.GetString("driver"),
				DSN:    viper.GetString("dsn"),
			}
			instanceProfile.FromEnv()
			if err := instanceProfile.Validate(); err != nil {
				return errors.Wrap(err, "invalid configuration")
			}

			initLogger(instanceProfile)
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return run(ctx, instanceProfile)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().String("mode", "dev", `mode of the server, can be "prod" or "dev"`)
	rootCmd.PersistentFlags().String("addr", "", "binding address of the server")
	rootCmd.PersistentFlags().Int("port", 8081, "binding port of the server")
	rootCmd.PersistentFlags().String("data", "", "data directory for the preference store")
	rootCmd.PersistentFlags().String("driver", "jsonfile", `preference store driver, "jsonfile" or "sqlite"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name, used when driver is sqlite")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}
	viper.SetEnvPrefix("regrelay")
	viper.AutomaticEnv()
}

func initLogger(p *profile.Profile) {
	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

func run(ctx context.Context, instanceProfile *profile.Profile) error {
	driver, err := db.NewDriver(instanceProfile)
	if err != nil {
		return errors.Wrap(err, "failed to create store driver")
	}
	storeInstance := store.New(driver)
	defer storeInstance.Close()

	trackerClient, err := tracker.NewClient(tracker.Config{
		BaseURL:           instanceProfile.TrackerBaseURL,
		Username:          instanceProfile.TrackerUser,
		Password:          instanceProfile.TrackerPass,
		VerifyTLS:         instanceProfile.VerifyTLS,
		ProjectKey:        instanceProfile.ProjectKey,
		DepartmentFieldID: instanceProfile.DepartmentFieldID,
		EditorGroup:       instanceProfile.EditorGroup,
		Timeout:           instanceProfile.HTTPTimeout,
		SearchCap:         instanceProfile.SearchCap,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create tracker client")
	}

	eventDispatcher := dispatcher.New(dispatcher.Config{
		Store:             storeInstance,
		Gateway:           trackerClient,
		Messenger:         &dispatcher.LogMessenger{},
		Renderer:          &dispatcher.TextRenderer{BrowseBaseURL: instanceProfile.BrowseBaseURL},
		DepartmentFieldID: instanceProfile.DepartmentFieldID,
		DepartmentFilters: session.DefaultDepartmentFilters(),
	})

	slog.Info("starting server",
		slog.String("mode", instanceProfile.Mode),
		slog.String("driver", instanceProfile.Driver),
		slog.Int("port", instanceProfile.Port))

	return server.New(instanceProfile, eventDispatcher).Start(ctx)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

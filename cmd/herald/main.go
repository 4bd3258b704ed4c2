package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/hrygo/herald/bot"
	"github.com/hrygo/herald/internal/profile"
	"github.com/hrygo/herald/internal/version"
	"github.com/hrygo/herald/linkbroker"
	"github.com/hrygo/herald/scheduler"
	"github.com/hrygo/herald/server"
	"github.com/hrygo/herald/store"
	"github.com/hrygo/herald/store/db"
	"github.com/hrygo/herald/userindex"
)

var rootCmd = &cobra.Command{
	Use:   "herald",
	Short: `A Telegram bot that announces community events: one-time web forms in, channel announcements out.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Process managers inject environment directly; .env is for
		// direct binary execution.
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return
		}
		storeInstance := store.New(dbDriver, instanceProfile)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		index := userindex.New()
		if err := warmIndex(ctx, storeInstance, index); err != nil {
			slog.Error("failed to warm user index", "error", err)
			return
		}

		botAPI, err := tgbotapi.NewBotAPI(instanceProfile.BotToken)
		if err != nil {
			slog.Error("failed to connect to telegram", "error", err)
			return
		}

		sched := scheduler.New(storeInstance)
		gateway := bot.NewGateway(botAPI, storeInstance)
		sched.SetAnnouncer(gateway)
		broker := linkbroker.New(storeInstance, index, instanceProfile.EventURL)
		ingress := bot.NewIngress(botAPI, storeInstance, index, broker, sched, gateway)
		s := server.NewServer(instanceProfile, storeInstance, broker, sched, gateway)

		c := make(chan os.Signal, 1)
		// SIGTERM is the graceful shutdown signal used by most process
		// managers, eg. systemd and Kubernetes.
		signal.Notify(c, terminationSignals...)

		group, groupCtx := errgroup.WithContext(ctx)
		group.Go(func() error {
			if err := sched.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			if err := ingress.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			if err := s.Start(groupCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		group.Go(func() error {
			// Catch up on anything already inside the tracking window.
			return sched.Tick(groupCtx)
		})

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		if err := group.Wait(); err != nil {
			slog.Error("herald exited with error", "error", err)
		}
	},
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "postgres")
	viper.SetDefault("port", 28082)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28082, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "postgres", "database driver (postgres, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name(aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("herald")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// warmIndex seeds the in-memory membership cache from the two startup
// queries so link authorization works before the first update arrives.
func warmIndex(ctx context.Context, st *store.Store, index *userindex.Index) error {
	users, err := st.ListUserChats(ctx)
	if err != nil {
		return err
	}
	systems, err := st.ListSystemChats(ctx)
	if err != nil {
		return err
	}
	index.Warm(users, systems)
	return nil
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Herald %s started successfully!\n", profile.Version)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	fmt.Printf("Event forms served at: %s\n", profile.EventURL)
	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

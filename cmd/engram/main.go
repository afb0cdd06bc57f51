package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/engram/internal/profile"
	"github.com/hrygo/engram/plugin/embed"
	"github.com/hrygo/engram/server"
	"github.com/hrygo/engram/server/router/rpc"
	"github.com/hrygo/engram/server/service/memory"
	"github.com/hrygo/engram/server/service/reorganizer"
	"github.com/hrygo/engram/store"
	"github.com/hrygo/engram/store/db"
)

const version = "0.1.0"

const greetingBanner = `
███████╗███╗   ██╗ ██████╗ ██████╗  █████╗ ███╗   ███╗
██╔════╝████╗  ██║██╔════╝ ██╔══██╗██╔══██╗████╗ ████║
█████╗  ██╔██╗ ██║██║  ███╗██████╔╝███████║██╔████╔██║
██╔══╝  ██║╚██╗██║██║   ██║██╔══██╗██╔══██║██║╚██╔╝██║
███████╗██║ ╚████║╚██████╔╝██║  ██║██║  ██║██║ ╚═╝ ██║
╚══════╝╚═╝  ╚═══╝ ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚═╝
`

var rootCmd = &cobra.Command{
	Use:   "engram",
	Short: "A protocol-driven memory service: memorize text, search it, keep it tidy.",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instance, err := bootstrap(ctx, false)
		if err != nil {
			slog.Error("failed to bootstrap", slog.String("error", err.Error()))
			return
		}

		s, err := server.NewServer(ctx, instance.profile, instance.store, instance.memoryService, instance.reorganizerService, instance.logger)
		if err != nil {
			slog.Error("failed to create server", slog.String("error", err.Error()))
			return
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		printGreetings(instance.profile)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", slog.String("error", err.Error()))
			return
		}

		// Wait for CTRL-C.
		<-ctx.Done()
	},
}

var stdioCmd = &cobra.Command{
	Use:   "stdio",
	Short: "Serve newline-delimited JSON-RPC over stdin/stdout",
	Run: func(_ *cobra.Command, _ []string) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		instance, err := bootstrap(ctx, true)
		if err != nil {
			slog.Error("failed to bootstrap", slog.String("error", err.Error()))
			return
		}
		defer func() {
			if err := instance.store.Close(); err != nil {
				slog.Error("failed to close store", slog.String("error", err.Error()))
			}
		}()

		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-c
			cancel()
		}()

		handler := rpc.NewHandler(instance.profile, instance.memoryService, instance.reorganizerService, instance.logger)
		if err := server.RunStdio(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("stdio transport failed", slog.String("error", err.Error()))
		}
	},
}

type instanceComponents struct {
	profile            *profile.Profile
	store              *store.Store
	memoryService      *memory.Service
	reorganizerService *reorganizer.Service
	logger             *slog.Logger
}

func bootstrap(ctx context.Context, stdio bool) (*instanceComponents, error) {
	instanceProfile := loadProfile()
	logger := newLogger(instanceProfile, stdio)
	slog.SetDefault(logger)

	if err := instanceProfile.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid profile")
	}

	embedder, err := embed.NewProvider(instanceProfile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create embedding provider")
	}
	dbDriver, err := db.NewDBDriver(instanceProfile, embedder)
	if err != nil {
		return nil, err
	}
	storeInstance := store.New(dbDriver, instanceProfile)
	if err := storeInstance.Init(ctx); err != nil {
		return nil, errors.Wrap(err, "failed to initialize store")
	}

	return &instanceComponents{
		profile:            instanceProfile,
		store:              storeInstance,
		memoryService:      memory.NewService(storeInstance, instanceProfile.ChunkSize),
		reorganizerService: reorganizer.NewService(storeInstance),
		logger:             logger,
	}, nil
}

func loadProfile() *profile.Profile {
	instanceProfile := &profile.Profile{
		Mode:      viper.GetString("mode"),
		Addr:      viper.GetString("addr"),
		Port:      viper.GetInt("port"),
		Data:      viper.GetString("data"),
		Driver:    viper.GetString("driver"),
		DSN:       viper.GetString("dsn"),
		ChunkSize: viper.GetInt("chunk-size"),
		Version:   version,
	}
	instanceProfile.FromEnv()
	return instanceProfile
}

// newLogger builds the process logger: text at debug level in dev, JSON at
// info level in prod. The stdio transport owns stdout, so logs go to
// stderr there.
func newLogger(p *profile.Profile, stdio bool) *slog.Logger {
	out := os.Stdout
	if stdio {
		out = os.Stderr
	}
	var handler slog.Handler
	if p.IsDev() {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return slog.New(handler)
}

func printGreetings(p *profile.Profile) {
	fmt.Print(greetingBanner)
	fmt.Printf("Version %s has been started on port %d\n", p.Version, p.Port)
	fmt.Printf("Mode %s, driver %s\n", p.Mode, p.Driver)
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "memory")
	viper.SetDefault("port", 8081)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8081, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "memory", `storage driver, can be "memory", "sqlite" or "postgres"`)
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")
	rootCmd.PersistentFlags().Int("chunk-size", 500, "maximum memorized chunk length in characters")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("engram")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	rootCmd.AddCommand(stdioCmd)
}

func main() {
	// A local .env is a convenience for development; absence is fine.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}

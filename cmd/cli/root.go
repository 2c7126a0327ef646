// Package cli implements keytrust-admin, which administers signing keys directly against
// the key store. It shares the server's configuration file.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	appservice "github.com/turtacn/keytrust/internal/application/service"
	"github.com/turtacn/keytrust/internal/config"
	domainservice "github.com/turtacn/keytrust/internal/domain/service"
	"github.com/turtacn/keytrust/internal/infrastructure/cache"
	"github.com/turtacn/keytrust/internal/infrastructure/crypto"
	"github.com/turtacn/keytrust/internal/infrastructure/events"
	"github.com/turtacn/keytrust/internal/infrastructure/persistence/postgres"
	pcache "github.com/turtacn/keytrust/internal/infrastructure/persistence/redis"
	"github.com/turtacn/keytrust/pkg/constants"
	"github.com/turtacn/keytrust/pkg/logger"
)

// NewRootCommand builds the keytrust-admin command tree.
// NewRootCommand 构建 keytrust-admin 命令树。
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "keytrust-admin",
		Short:         "Administer keytrust signing keys and tokens",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to config.yaml (default: ./config.yaml or /etc/keytrust/config.yaml)")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "output format: text or json")

	root.AddCommand(newKeysCommand(opts), newTokenCommand(opts))
	return root
}

// Execute is the main entry point for the CLI application.
// If an error occurs, it prints the error and exits.
// Execute 是 CLI 应用程序的主入口点。
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configFile string
	output     string
}

// runtime is the subset of the server wiring the admin commands need.
type runtime struct {
	cfg       *config.Config
	lifecycle appservice.KeyLifecycleService
	issuer    appservice.TokenIssuer
	closers   []func()
}

func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// connect wires the lifecycle service the same way the server does, so rotations made here
// invalidate the shared cache and reach peers through key events.
func (o *rootOptions) connect(ctx context.Context) (*runtime, error) {
	log := logger.NewNoopLogger()
	cfg, err := config.NewLoader(o.configFile, log).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	rt := &runtime{cfg: cfg}
	db, err := postgres.NewDBConnection(ctx, &cfg.Database, log)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, db.Close)
	if err := db.Migrate(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	var (
		keyCache domainservice.KeyCache = cache.NewMemoryKeyCache()
		opts     []appservice.KeyLifecycleOption
	)
	if cfg.Redis.Enabled() {
		conn := pcache.NewRedisConnection(&cfg.Redis, log)
		if err := conn.Connect(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = conn.Close() })
		keyCache = pcache.NewKeyCache(conn.GetClient())
		opts = append(opts, appservice.WithLocker(pcache.NewLocker(conn.GetClient())))
	}
	if cfg.Kafka.Enabled {
		publisher := events.NewKafkaPublisher(cfg.Kafka, "keytrust-admin", log)
		rt.closers = append(rt.closers, func() { _ = publisher.Close() })
		opts = append(opts, appservice.WithPublisher(publisher))
	}

	generator := crypto.NewKeyManager(&crypto.KeyManagerConfig{
		Algorithm:         constants.JWTAlgorithm(cfg.Keys.Algorithm),
		Bits:              constants.RSAKeySize,
		KeyValidityPeriod: cfg.Keys.ValidityWindow,
	}, log)
	rt.lifecycle = appservice.NewKeyLifecycleService(
		postgres.NewKeyRepository(db.DB()), keyCache, generator, appservice.NewKeyLifecycleConfig(cfg), log, opts...,
	)
	rt.issuer = appservice.NewTokenIssuer(rt.lifecycle, cfg.Token, nil, nil, log)
	return rt, nil
}

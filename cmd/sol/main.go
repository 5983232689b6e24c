// Copyright (C) 2025 Sol Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sol.dev/sol/private/kvstore"
	"sol.dev/sol/private/kvstore/redis"
	"sol.dev/sol/registry"
	"sol.dev/sol/registry/admission"
	"sol.dev/sol/registry/blobstore"
	"sol.dev/sol/registry/blobstore/s3store"
	"sol.dev/sol/registry/regauth"
	"sol.dev/sol/registry/registrydb"
	"sol.dev/sol/registry/registryweb"
)

// Config aggregates the configuration of every subsystem.
type Config struct {
	Database string `mapstructure:"database"`
	Redis    string `mapstructure:"redis"`

	S3 s3store.Config `mapstructure:"s3"`

	Server  registryweb.Config      `mapstructure:"server"`
	Auth    regauth.Config          `mapstructure:"auth"`
	Limiter admission.LimiterConfig `mapstructure:"limiter"`
	Cache   registry.Config         `mapstructure:"cache"`
}

var (
	rootCmd = &cobra.Command{
		Use:   "sol",
		Short: "Sol package registry",
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the registry server",
		RunE:  cmdRun,
	}
	setupCmd = &cobra.Command{
		Use:   "setup",
		Short: "Create the config file with defaults",
		RunE:  cmdSetup,
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE:  cmdMigrate,
	}

	confDir string
)

func init() {
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
	rootCmd.PersistentFlags().StringVar(&confDir, "config-dir", defaultConfDir(), "main directory for configuration")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(migrateCmd)
}

func defaultConfDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".sol")
}

func loadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(confDir)
	v.SetEnvPrefix("SOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, errs.Wrap(err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errs.Wrap(err)
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database", "postgres://localhost/sol?sslmode=disable")
	v.SetDefault("redis", "")

	v.SetDefault("s3.endpoint", "localhost:9000")
	v.SetDefault("s3.accesskey", "")
	v.SetDefault("s3.secretkey", "")
	v.SetDefault("s3.bucket", "sol-packages")
	v.SetDefault("s3.usessl", false)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.shutdowntimeout", "10s")
	v.SetDefault("server.maxuploadsize", 104857600)

	v.SetDefault("auth.tokensecret", "")
	v.SetDefault("auth.tokenttl", "30m")
	v.SetDefault("auth.apikeyttl", "8760h")
	v.SetDefault("auth.usercachettl", "5m")
	v.SetDefault("auth.keycachettl", "5m")
	v.SetDefault("auth.githubbaseurl", "https://api.github.com")
	v.SetDefault("auth.googlebaseurl", "https://www.googleapis.com")
	v.SetDefault("auth.microsoftbaseurl", "https://graph.microsoft.com")

	limits := admission.DefaultLimiterConfig()
	v.SetDefault("limiter.anonrate", limits.AnonRate)
	v.SetDefault("limiter.anoncapacity", limits.AnonCapacity)
	v.SetDefault("limiter.authrate", limits.AuthRate)
	v.SetDefault("limiter.authcapacity", limits.AuthCapacity)
	v.SetDefault("limiter.cleanupinterval", limits.CleanupInterval)

	cache := registry.DefaultConfig()
	v.SetDefault("cache.projectttl", cache.ProjectTTL)
	v.SetDefault("cache.projectlistttl", cache.ProjectListTTL)
	v.SetDefault("cache.releasettl", cache.ReleaseTTL)
	v.SetDefault("cache.filettl", cache.FileTTL)
	v.SetDefault("cache.contentttl", cache.ContentTTL)
	v.SetDefault("cache.maxcachedcontent", cache.MaxCachedContent)
}

func cmdSetup(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(confDir, 0o700); err != nil {
		return errs.Wrap(err)
	}

	path := filepath.Join(confDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return errs.New("config file %q already exists", path)
	}

	v := viper.New()
	setDefaults(v)
	if err := v.WriteConfigAs(path); err != nil {
		return errs.Wrap(err)
	}

	fmt.Println("wrote", path)
	return nil
}

func cmdMigrate(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := registrydb.Open(ctx, log.Named("db"), config.Database)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	return db.MigrateToLatest(ctx)
}

func cmdRun(cmd *cobra.Command, args []string) (err error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := registrydb.Open(ctx, log.Named("db"), config.Database)
	if err != nil {
		return err
	}
	defer func() { err = errs.Combine(err, db.Close()) }()

	if err := db.MigrateToLatest(ctx); err != nil {
		return err
	}

	// without redis the service runs cache-less, reads fall through to the
	// catalog
	var cache kvstore.Store
	if config.Redis != "" {
		client, err := redis.OpenClientFrom(ctx, config.Redis)
		if err != nil {
			return err
		}
		defer func() { err = errs.Combine(err, client.Close()) }()
		cache = client
	} else {
		log.Warn("redis not configured, caching disabled")
	}

	var blobs blobstore.Blobs
	blobs, err = s3store.Open(ctx, config.S3)
	if err != nil {
		return err
	}

	service, err := registry.NewService(log.Named("registry"), db, cache, blobs, config.Cache)
	if err != nil {
		return err
	}

	auth, err := regauth.NewService(log.Named("auth"), db, cache, config.Auth)
	if err != nil {
		return err
	}

	limiter := admission.NewLimiter(log.Named("limiter"), config.Limiter)

	listener, err := net.Listen("tcp", config.Server.Address)
	if err != nil {
		return errs.Wrap(err)
	}

	server := registryweb.NewServer(log.Named("web"), config.Server, service, auth, limiter, listener)

	log.Info("registry started",
		zap.String("address", listener.Addr().String()),
		zap.Bool("cache", cache != nil))

	return server.Run(ctx)
}

func newLogger() (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapTimeEncoder
	return config.Build()
}

func zapTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format(time.RFC3339))
}

func main() {
	ctx := context.Background()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

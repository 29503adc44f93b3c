package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xraph/revenue/extension"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v      *viper.Viper
	cfg    extension.Config
	logger *slog.Logger
	rdb    redis.UniversalClient
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	root := &cobra.Command{
		Use:           "revenuectl",
		Short:         "Revenue engine operations tool",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.rdb != nil {
				return a.rdb.Close()
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml); keys as under extensions.revenue")
	flags.String("redis-addr", "localhost:6379", "Redis address holding the counters")
	flags.Int("redis-db", 0, "Redis logical database")
	flags.String("sequence-key-prefix", "revenue:seq:", "namespace of counter keys")
	flags.Bool("verbose", false, "debug logging")

	_ = a.v.BindPFlag("redis_addr", flags.Lookup("redis-addr"))
	_ = a.v.BindPFlag("redis_db", flags.Lookup("redis-db"))
	_ = a.v.BindPFlag("sequence_key_prefix", flags.Lookup("sequence-key-prefix"))

	root.AddCommand(sequenceCmd(a))
	return root
}

// load reads the config file and REVENUE_* environment, then dials Redis.
func (a *app) load(cmd *cobra.Command) error {
	a.v.SetEnvPrefix("revenue")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config: %w", err)
		}
		if sub := a.v.Sub("extensions.revenue"); sub != nil {
			if err := a.v.MergeConfigMap(sub.AllSettings()); err != nil {
				return fmt.Errorf("merge config: %w", err)
			}
		}
	}

	def := extension.DefaultConfig()
	a.v.SetDefault("currency", def.Currency)
	a.v.SetDefault("sequence_retention", def.SequenceRetention)
	a.v.SetDefault("lock_ttl", def.LockTTL)

	if err := a.v.Unmarshal(&a.cfg); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	level := slog.LevelInfo
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if a.rdb == nil {
		a.rdb = redis.NewClient(&redis.Options{Addr: a.cfg.RedisAddr, DB: a.cfg.RedisDB})
	}
	a.logger.Debug("revenuectl configured",
		"redis_addr", a.cfg.RedisAddr,
		"redis_db", a.cfg.RedisDB,
		"key_prefix", a.cfg.SequenceKeyPrefix,
	)
	return nil
}

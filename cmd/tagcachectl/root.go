package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/unkn0wn-root/tagcache"
	c "github.com/unkn0wn-root/tagcache/codec"
	"github.com/unkn0wn-root/tagcache/config"
	tczap "github.com/unkn0wn-root/tagcache/log/zap"
)

type app struct {
	cfgPath   string
	envPrefix string
	logLevel  string

	log   *zap.Logger
	cfg   *config.Config
	m     *tagcache.Manager
	cache tagcache.Cache[[]byte]
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "tagcachectl",
		Short:        "Inspect and invalidate a tagcache store",
		SilenceUsage: true,
	}
	f := root.PersistentFlags()
	f.StringVarP(&a.cfgPath, "config", "c", "", "config file (yaml, json or toml)")
	f.StringVar(&a.envPrefix, "env-prefix", config.EnvPrefix, "prefix of configuration environment variables")
	f.StringVar(&a.logLevel, "log-level", "warn", "debug, info, warn or error")

	root.AddCommand(
		a.getCmd(),
		a.setCmd(),
		a.removeCmd(),
		a.removePrefixCmd(),
		a.clearCmd(),
		a.lockCmd(),
	)
	return root
}

// run opens the store around fn.
func (a *app) run(fn func(ctx context.Context, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := a.open(ctx); err != nil {
			return err
		}
		defer a.close(ctx)
		return fn(ctx, cmd, args)
	}
}

func (a *app) open(ctx context.Context) error {
	lvl, err := zapcore.ParseLevel(a.logLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	if a.log, err = zc.Build(); err != nil {
		return err
	}

	if a.cfg, err = config.Load(a.cfgPath, a.envPrefix); err != nil {
		return err
	}
	tl := tczap.New(a.log)
	if a.m, err = tagcache.Open(ctx, *a.cfg, tagcache.WithLogger(tl)); err != nil {
		return err
	}
	// values are shown as stored, whatever codec the applications use
	a.cache, err = tagcache.New(tagcache.Options[[]byte]{
		Backend: a.m.Backend,
		Codec:   c.Bytes{},
		Logger:  tl,
	})
	return err
}

func (a *app) close(ctx context.Context) {
	if a.m != nil {
		if err := a.m.Close(ctx); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/xhit/go-str2duration/v2"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/tagcache"
	"github.com/unkn0wn-root/tagcache/provider/redis"
)

var errLockHeld = errors.New("lock held elsewhere")

// parseDuration accepts Go durations plus days and weeks ("1d12h", "2w").
func parseDuration(s string) (time.Duration, error) {
	d, err := str2duration.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}

func toParams(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Print the stored value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			v, ok, err := a.cache.Get(ctx, tagcache.NewKey(args[0], a.m.Keys.DefaultTTL))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "(not found)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(v))
			return nil
		}),
	}
}

func (a *app) setCmd() *cobra.Command {
	var (
		ttl      string
		prefixes []string
	)
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a raw value under key",
		Args:  cobra.ExactArgs(2),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			d := a.m.Keys.DefaultTTL
			if ttl != "" {
				var err error
				if d, err = parseDuration(ttl); err != nil {
					return err
				}
			}
			k := tagcache.NewKey(args[0], d, prefixes...)
			if err := a.cache.Set(ctx, k, []byte(args[1])); err != nil {
				return err
			}
			a.log.Info("stored", zap.String("key", k.Name()), zap.Duration("ttl", d), zap.Strings("prefixes", k.Prefixes()))
			return nil
		}),
	}
	cmd.Flags().StringVar(&ttl, "ttl", "", "time to live, e.g. 90s, 2h, 1d (default: configured default)")
	cmd.Flags().StringSliceVarP(&prefixes, "prefix", "p", nil, "prefix the entry belongs to (repeatable)")
	return cmd
}

func (a *app) removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key-template> [params...]",
		Short: "Delete one key",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			k := tagcache.NewKey(args[0], a.m.Keys.DefaultTTL)
			return a.cache.Remove(ctx, k, toParams(args[1:])...)
		}),
	}
}

func (a *app) removePrefixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-prefix <prefix-template> [params...]",
		Short: "Delete every entry under a prefix",
		Args:  cobra.MinimumNArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			p, err := tagcache.ResolvePrefix(args[0], toParams(args[1:])...)
			if err != nil {
				return err
			}
			if p == "" {
				return errors.New("empty prefix")
			}
			if err := a.seedRegistry(ctx, p); err != nil {
				return err
			}
			return a.cache.RemoveByPrefix(ctx, p)
		}),
	}
}

func (a *app) clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every entry of the configured instance",
		Args:  cobra.NoArgs,
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			if _, ok := a.m.Backend.(*tagcache.DistributedBackend); ok && a.cfg.InstanceName == "" {
				return errors.New("clear needs instance_name with the distributed backend")
			}
			if err := a.seedRegistry(ctx, ""); err != nil {
				return err
			}
			return a.cache.Clear(ctx)
		}),
	}
}

func (a *app) lockCmd() *cobra.Command {
	var lease, hold string
	cmd := &cobra.Command{
		Use:   "lock <resource>",
		Short: "Take the lock on resource and hold it for a while",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(ctx context.Context, cmd *cobra.Command, args []string) error {
			l, err := parseDuration(lease)
			if err != nil {
				return err
			}
			h, err := parseDuration(hold)
			if err != nil {
				return err
			}
			ok, err := a.m.Locker.WithLock(ctx, args[0], l, func(ctx context.Context) error {
				fmt.Fprintf(cmd.OutOrStdout(), "acquired %s (%s lock)\n", args[0], a.m.Locker.Mode())
				select {
				case <-time.After(h):
				case <-ctx.Done():
				}
				return nil
			})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s: %w", args[0], errLockHeld)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&lease, "lease", "30s", "lock lease")
	cmd.Flags().StringVar(&hold, "hold", "0s", "how long to keep the lock")
	return cmd
}

// seedRegistry teaches a fresh distributed registry the keys already stored
// under the instance whose names start with prefix, so a one-shot process
// can remove them. Local backends need nothing: generations live in the
// gen store.
func (a *app) seedRegistry(ctx context.Context, prefix string) error {
	db, ok := a.m.Backend.(*tagcache.DistributedBackend)
	if !ok {
		return nil
	}
	rp, ok := db.Provider().(*redis.Redis)
	if !ok {
		return nil
	}
	ns := a.cfg.InstanceName
	pattern := foldGlob(ns) + foldGlob(prefix) + "*"
	iter := rp.Client().Scan(ctx, 0, pattern, 500).Iterator()
	n := 0
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), ns)
		if lp := a.cfg.Lock.KeyPrefix; lp != "" && strings.HasPrefix(k, lp) {
			continue
		}
		db.Registry().Add(k, nil)
		n++
	}
	if err := iter.Err(); err != nil {
		return err
	}
	a.log.Debug("seeded registry", zap.String("pattern", pattern), zap.Int("keys", n))
	return nil
}

// foldGlob turns s into a case-insensitive Redis MATCH pattern.
func foldGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`*?[]\^`, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		case unicode.ToLower(r) != unicode.ToUpper(r):
			b.WriteByte('[')
			b.WriteRune(unicode.ToLower(r))
			b.WriteRune(unicode.ToUpper(r))
			b.WriteByte(']')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Option configures a connection opened with Open.
type Option func(*options)

type options struct {
	poolSize      int
	retryAttempts int
	retryInterval time.Duration
	dialTimeout   time.Duration
	readTimeout   time.Duration
	writeTimeout  time.Duration
}

func defaultOptions() *options {
	return &options{
		poolSize:      10,
		retryAttempts: 3,
		retryInterval: time.Second,
		dialTimeout:   5 * time.Second,
		readTimeout:   3 * time.Second,
		writeTimeout:  3 * time.Second,
	}
}

// WithPoolSize sets the maximum number of pooled connections. Default: 10
func WithPoolSize(n int) Option {
	return func(o *options) { o.poolSize = n }
}

// WithRetry configures connection retries. The wait grows linearly with the
// attempt number. Default: 3 attempts, 1s base interval.
func WithRetry(attempts int, interval time.Duration) Option {
	return func(o *options) {
		o.retryAttempts = attempts
		o.retryInterval = interval
	}
}

func WithTimeouts(dial, read, write time.Duration) Option {
	return func(o *options) {
		o.dialTimeout = dial
		o.readTimeout = read
		o.writeTimeout = write
	}
}

// Open connects to Redis and pings it before returning.
//
// conn is either a URL (redis://, rediss://) or a bare host:port.
func Open(ctx context.Context, conn string, opts ...Option) (goredis.UniversalClient, error) {
	conn = strings.TrimSpace(conn)
	if conn == "" {
		return nil, ErrEmptyConnectionString
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	var ro *goredis.Options
	if strings.Contains(conn, "://") {
		parsed, err := goredis.ParseURL(conn)
		if err != nil {
			return nil, errors.Join(ErrParseConnectionString, err)
		}
		ro = parsed
	} else {
		ro = &goredis.Options{Addr: conn}
	}
	ro.PoolSize = o.poolSize
	ro.DialTimeout = o.dialTimeout
	ro.ReadTimeout = o.readTimeout
	ro.WriteTimeout = o.writeTimeout

	return connect(ctx, ro, o.retryAttempts, o.retryInterval)
}

func connect(ctx context.Context, ro *goredis.Options, attempts int, interval time.Duration) (goredis.UniversalClient, error) {
	attempts = max(attempts, 1)

	var lastErr error
	for i := 0; i < attempts; i++ {
		client := goredis.NewClient(ro)
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return client, nil
		}
		_ = client.Close()

		if i == attempts-1 {
			break
		}
		if err := wait(ctx, time.Duration(i+1)*interval); err != nil {
			return nil, errors.Join(ErrConnectionFailed, err)
		}
	}
	return nil, errors.Join(ErrConnectionFailed, lastErr)
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

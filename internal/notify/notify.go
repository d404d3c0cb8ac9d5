// Package notify forwards monitor status changes to places outside the
// process.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aleksanaa/eportal-autologin/internal/monitor"
)

// LogObserver logs when the network state changes between attempts, e.g.
// from online to auth_failed. Repeats of the same state stay quiet; the
// monitor already logs every attempt.
type LogObserver struct {
	log *zap.Logger

	mu   sync.Mutex
	last string
}

func NewLogObserver(log *zap.Logger) *LogObserver {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogObserver{log: log}
}

func (o *LogObserver) StatusChanged(s monitor.Status) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch s.Event {
	case monitor.EventStarted, monitor.EventStopped:
		o.last = ""
		return
	case monitor.EventAttempted:
	default:
		return
	}
	if s.LastOutcome == nil {
		return
	}
	state := s.LastOutcome.Kind.String()
	if state == o.last {
		return
	}
	from := o.last
	if from == "" {
		from = "unknown"
	}
	o.last = state
	o.log.Info("network state changed",
		zap.String("from", from),
		zap.String("to", state),
		zap.String("host", s.LastOutcome.ServerHost),
		zap.Int("attempts", s.Attempts))
}

type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisPublisher publishes every status change as JSON on a channel and
// keeps the latest one under "<channel>:last".
type RedisPublisher struct {
	rdb     redisClient
	channel string
	log     *zap.Logger
	timeout time.Duration
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

func NewRedisPublisher(opts RedisOptions, log *zap.Logger) *RedisPublisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return newRedisPublisher(rdb, opts.Channel, log)
}

func newRedisPublisher(rdb redisClient, channel string, log *zap.Logger) *RedisPublisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisPublisher{rdb: rdb, channel: channel, log: log, timeout: 2 * time.Second}
}

// StatusChanged never fails the caller; publish errors are only logged.
func (p *RedisPublisher) StatusChanged(s monitor.Status) {
	b, err := json.Marshal(s)
	if err != nil {
		p.log.Warn("encode status", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, p.channel, string(b)).Err(); err != nil {
		p.log.Warn("redis publish failed", zap.String("channel", p.channel), zap.Error(err))
		return
	}
	if err := p.rdb.Set(ctx, p.channel+":last", string(b), 0).Err(); err != nil {
		p.log.Warn("redis set failed", zap.String("channel", p.channel), zap.Error(err))
	}
}

// Close releases the underlying connection pool when there is one.
func (p *RedisPublisher) Close() error {
	if c, ok := p.rdb.(*redis.Client); ok {
		return c.Close()
	}
	return nil
}

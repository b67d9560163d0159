package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/config"
	"github.com/GoPolymarket/polyfactory/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

type RedisClient struct {
	Client *redis.Client
	now    func() time.Time
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address is empty")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisClient{Client: rdb, now: time.Now}, nil
}

func (r *RedisClient) Close() error {
	return r.Client.Close()
}

func (r *RedisClient) usageKeys(caller string) (string, string) {
	today := r.now().UTC().Format(dayLayout)
	return fmt.Sprintf("usage:%s:%s:volume", caller, today),
		fmt.Sprintf("usage:%s:%s:count", caller, today)
}

// readUsage loads the day's counters. Volume is kept as a decimal string
// since deposits are 256-bit integers.
func readUsage(ctx context.Context, c interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}, keyVol, keyCount string) (service.DailyUsage, error) {
	usage := service.DailyUsage{Volume: decimal.Zero}
	raw, err := c.Get(ctx, keyVol).Result()
	switch {
	case err == nil:
		if usage.Volume, err = decimal.NewFromString(raw); err != nil {
			return usage, fmt.Errorf("usage volume %q: %w", raw, err)
		}
	case !errors.Is(err, redis.Nil):
		return usage, err
	}
	count, err := c.Get(ctx, keyCount).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return usage, err
	}
	usage.Deposits = count
	return usage, nil
}

const (
	usageTxRetries = 5
	usageTTL       = 48 * time.Hour
)

// ReserveDailyUsage implements the deposit guard's UsageRepo. Both counters
// are watched so a concurrent reservation forces a retry.
func (r *RedisClient) ReserveDailyUsage(ctx context.Context, caller string, amount decimal.Decimal, limits service.UsageLimits) (service.DailyUsage, bool, error) {
	keyVol, keyCount := r.usageKeys(caller)

	var (
		usage    service.DailyUsage
		reserved bool
	)
	txf := func(tx *redis.Tx) error {
		var err error
		reserved = false
		if usage, err = readUsage(ctx, tx, keyVol, keyCount); err != nil {
			return err
		}
		if limits.Breach(usage, amount) != "" {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyVol, usage.Volume.Add(amount).String(), usageTTL)
			pipe.IncrBy(ctx, keyCount, 1)
			pipe.Expire(ctx, keyCount, usageTTL)
			return nil
		})
		if err == nil {
			reserved = true
		}
		return err
	}

	for i := 0; i < usageTxRetries; i++ {
		err := r.Client.Watch(ctx, txf, keyVol, keyCount)
		if !errors.Is(err, redis.TxFailedErr) {
			return usage, reserved, err
		}
	}
	return usage, false, fmt.Errorf("usage reservation for %s: too much contention", caller)
}

func (r *RedisClient) AddDailyUsage(ctx context.Context, caller string, deposits int, amount decimal.Decimal) error {
	keyVol, keyCount := r.usageKeys(caller)

	txf := func(tx *redis.Tx) error {
		usage, err := readUsage(ctx, tx, keyVol, keyCount)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, keyVol, usage.Volume.Add(amount).String(), usageTTL)
			pipe.IncrBy(ctx, keyCount, int64(deposits))
			pipe.Expire(ctx, keyCount, usageTTL)
			return nil
		})
		return err
	}

	for i := 0; i < usageTxRetries; i++ {
		err := r.Client.Watch(ctx, txf, keyVol, keyCount)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("usage update for %s: too much contention", caller)
}

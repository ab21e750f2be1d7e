package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"minigames-backend/internal/config"
	"minigames-backend/internal/models"
)

type RedisLedger struct {
	client         *redis.Client
	defaultBalance float64
}

func NewRedisLedger(ctx context.Context, cfg *config.Config) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLedger{
		client:         client,
		defaultBalance: cfg.DefaultBalance,
	}, nil
}

func accountKey(userID string) string {
	return fmt.Sprintf(KeyAccount, userID)
}

func (s *RedisLedger) Close() error {
	return s.client.Close()
}

func (s *RedisLedger) Get(ctx context.Context, userID string) (float64, error) {
	return s.Ensure(ctx, userID, s.defaultBalance)
}

func (s *RedisLedger) Lookup(ctx context.Context, userID string) (float64, bool, error) {
	data, err := s.client.Get(ctx, accountKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get account: %w", err)
	}

	var account models.UserAccount
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return 0, false, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return account.Coins, true, nil
}

var ensureAccountScript = redis.NewScript(`
	local key = KEYS[1]
	local id = ARGV[1]
	local balance = tonumber(ARGV[2])

	local data = redis.call("GET", key)
	if not data then
		data = cjson.encode({ id = id, coins = balance })
		redis.call("SET", key, data)
	end

	return data
`)

func (s *RedisLedger) Ensure(ctx context.Context, userID string, balance float64) (float64, error) {
	data, err := ensureAccountScript.Run(ctx, s.client, []string{accountKey(userID)}, userID, balance).Text()
	if err != nil {
		return 0, fmt.Errorf("failed to ensure account: %w", err)
	}

	var account models.UserAccount
	if err := json.Unmarshal([]byte(data), &account); err != nil {
		return 0, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return account.Coins, nil
}

// Lua numbers returned to redis are truncated to integers, so the balance comes back
// as a string.
var creditAccountScript = redis.NewScript(`
	local key = KEYS[1]
	local id = ARGV[1]
	local delta = tonumber(ARGV[2])
	local balance = tonumber(ARGV[3])

	local account
	local data = redis.call("GET", key)
	if data then
		account = cjson.decode(data)
	else
		account = { id = id, coins = balance }
	end

	account.coins = account.coins + delta
	redis.call("SET", key, cjson.encode(account))

	return tostring(account.coins)
`)

func (s *RedisLedger) Credit(ctx context.Context, userID string, delta float64) (float64, error) {
	res, err := creditAccountScript.Run(ctx, s.client, []string{accountKey(userID)}, userID, delta, s.defaultBalance).Text()
	if err != nil {
		return 0, fmt.Errorf("failed to credit account: %w", err)
	}

	coins, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse balance %q: %w", res, err)
	}

	return coins, nil
}

// debitAccountScript returns {1, coins} after the debit, or {0, coins} when the balance
// does not cover amount.
var debitAccountScript = redis.NewScript(`
	local key = KEYS[1]
	local id = ARGV[1]
	local amount = tonumber(ARGV[2])
	local balance = tonumber(ARGV[3])

	local account
	local data = redis.call("GET", key)
	if data then
		account = cjson.decode(data)
	else
		account = { id = id, coins = balance }
	end

	if account.coins < amount then
		return { 0, tostring(account.coins) }
	end

	account.coins = account.coins - amount
	redis.call("SET", key, cjson.encode(account))

	return { 1, tostring(account.coins) }
`)

func (s *RedisLedger) Debit(ctx context.Context, userID string, amount float64) (float64, error) {
	res, err := debitAccountScript.Run(ctx, s.client, []string{accountKey(userID)}, userID, amount, s.defaultBalance).Slice()
	if err != nil {
		return 0, fmt.Errorf("failed to debit account: %w", err)
	}
	if len(res) != 2 {
		return 0, fmt.Errorf("unexpected debit reply: %v", res)
	}

	coins, err := strconv.ParseFloat(fmt.Sprint(res[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse balance %v: %w", res[1], err)
	}
	if ok, _ := res[0].(int64); ok != 1 {
		return coins, fmt.Errorf("%w: have %.2f, need %.2f", ErrInsufficientFunds, coins, amount)
	}

	return coins, nil
}

func (s *RedisLedger) DeleteAccount(ctx context.Context, userID string) error {
	return s.client.Del(ctx, accountKey(userID)).Err()
}

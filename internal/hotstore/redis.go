package hotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mailseller-api/internal/model"

	"github.com/redis/go-redis/v9"
)

// Redis key prefixes.
const (
	balanceKeyPrefix  = "credit:user:"
	poolKeyPrefix     = "data:pool:"
	soldKeyPrefix     = "data:sold:"
	tokenKeyPrefix    = "token:user:"
	tokenLookupPrefix = "token:lookup:"
	discountKeyPrefix = "discount:user:"
	sessionKeyPrefix  = "session:"
)

// mgetChunkSize bounds MGET batches during reconciliation snapshots.
const mgetChunkSize = 500

// purchaseScript is the atomic buy transaction. The balance check, the
// pool pop, the deduction and the sold-set tracking execute as one
// server-side unit, so concurrent purchases for the same user can never
// observe the balance of one call and the inventory of another.
//
// KEYS: balance key, pool key, sold key.
// ARGV: requested count, discounted unit price.
var purchaseScript = redis.NewScript(`
	local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
	local want = tonumber(ARGV[1])
	local price = tonumber(ARGV[2])

	if balance < want * price then
		return cjson.encode({status='insufficient_credit', balance=balance})
	end

	local items = redis.call('SPOP', KEYS[2], want)
	if #items == 0 then
		return cjson.encode({status='no_data', balance=balance})
	end

	local cost = #items * price
	local new_balance = tonumber(redis.call('INCRBYFLOAT', KEYS[1], -cost))
	for i, item in ipairs(items) do
		redis.call('SADD', KEYS[3], item)
	end

	return cjson.encode({status='success', items=items, cost=cost, balance=new_balance})
`)

// deductScript subtracts an amount only when the balance covers it.
// Check and decrement run as one server-side unit, so a concurrent
// purchase script can never land between them.
//
// KEYS: balance key. ARGV: amount.
var deductScript = redis.NewScript(`
	local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
	local amount = tonumber(ARGV[1])

	if balance < amount then
		return cjson.encode({ok=false, balance=balance})
	end

	local new_balance = tonumber(redis.call('INCRBYFLOAT', KEYS[1], -amount))
	return cjson.encode({ok=true, balance=new_balance})
`)

// rotateTokenScript publishes a new token for a user and deletes the
// reverse lookup of the previous token in the same step, so the old
// token can never resolve after the new one is visible.
//
// KEYS: user token key. ARGV: new token, user id, lookup key prefix.
var rotateTokenScript = redis.NewScript(`
	local old = redis.call('GET', KEYS[1])
	if old and old ~= ARGV[1] then
		redis.call('DEL', ARGV[3] .. old)
	end
	redis.call('SET', KEYS[1], ARGV[1])
	redis.call('SET', ARGV[3] .. ARGV[1], ARGV[2])
	return 1
`)

// Redis implements Store on a Redis server. Balances are plain float
// strings mutated with INCRBYFLOAT, pools are sets, and the purchase
// and token-rotation paths run as Lua scripts.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps an already-connected Redis client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func balanceKey(userID int64) string  { return balanceKeyPrefix + strconv.FormatInt(userID, 10) }
func poolKey(poolType string) string  { return poolKeyPrefix + poolType }
func soldKey(userID int64) string     { return soldKeyPrefix + strconv.FormatInt(userID, 10) }
func tokenKey(userID int64) string    { return tokenKeyPrefix + strconv.FormatInt(userID, 10) }
func discountKey(userID int64) string { return discountKeyPrefix + strconv.FormatInt(userID, 10) }

// GetBalance returns the user's balance, 0 for unknown users.
func (r *Redis) GetBalance(ctx context.Context, userID int64) (float64, error) {
	val, err := r.client.Get(ctx, balanceKey(userID)).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return val, nil
}

// SetBalance overwrites the user's balance.
func (r *Redis) SetBalance(ctx context.Context, userID int64, amount float64) error {
	if err := r.client.Set(ctx, balanceKey(userID), amount, 0).Err(); err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

// IncrementBalance atomically adds delta and returns the new balance.
func (r *Redis) IncrementBalance(ctx context.Context, userID int64, delta float64) (float64, error) {
	val, err := r.client.IncrByFloat(ctx, balanceKey(userID), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment balance: %w", err)
	}
	return val, nil
}

// deductReply is the wire shape of the deduct script's cjson result.
type deductReply struct {
	OK      bool    `json:"ok"`
	Balance float64 `json:"balance"`
}

// DeductBalance atomically subtracts amount when the balance covers it
// and reports whether the deduction happened, along with the resulting
// (or unchanged) balance.
func (r *Redis) DeductBalance(ctx context.Context, userID int64, amount float64) (float64, bool, error) {
	raw, err := deductScript.Run(ctx, r.client, []string{balanceKey(userID)}, amount).Text()
	if err != nil {
		return 0, false, fmt.Errorf("deduct script failed: %w", err)
	}

	var reply deductReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return 0, false, fmt.Errorf("failed to parse deduct reply: %w", err)
	}
	return reply.Balance, reply.OK, nil
}

// AllBalances snapshots every balance key via SCAN + chunked MGET.
func (r *Redis) AllBalances(ctx context.Context) (map[int64]float64, error) {
	keys, err := r.scanKeys(ctx, balanceKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	out := make(map[int64]float64, len(keys))
	err = r.mgetInto(ctx, keys, func(key, raw string) error {
		userID, err := strconv.ParseInt(strings.TrimPrefix(key, balanceKeyPrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("malformed balance key %q: %w", key, err)
		}
		amount, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("malformed balance value for %q: %w", key, err)
		}
		out[userID] = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AddItems inserts items into a pool set; SADD ignores duplicates and
// reports the number of new members.
func (r *Redis) AddItems(ctx context.Context, poolType string, items []string) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(items))
	for i, item := range items {
		members[i] = item
	}

	added, err := r.client.SAdd(ctx, poolKey(poolType), members...).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to add items: %w", err)
	}
	return int(added), nil
}

// PopItems removes and returns up to count distinct items.
func (r *Redis) PopItems(ctx context.Context, poolType string, count int) ([]string, error) {
	items, err := r.client.SPopN(ctx, poolKey(poolType), int64(count)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to pop items: %w", err)
	}
	return items, nil
}

// PoolSize returns the number of unsold items in a pool.
func (r *Redis) PoolSize(ctx context.Context, poolType string) (int, error) {
	size, err := r.client.SCard(ctx, poolKey(poolType)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get pool size: %w", err)
	}
	return int(size), nil
}

// SoldItems returns every item sold to a user from fast pools.
func (r *Redis) SoldItems(ctx context.Context, userID int64) ([]string, error) {
	items, err := r.client.SMembers(ctx, soldKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get sold items: %w", err)
	}
	return items, nil
}

// purchaseReply is the wire shape of the purchase script's cjson result.
type purchaseReply struct {
	Status  string   `json:"status"`
	Items   []string `json:"items"`
	Cost    float64  `json:"cost"`
	Balance float64  `json:"balance"`
}

// Purchase runs the atomic buy transaction as a Lua script over the
// balance, pool and sold keys.
func (r *Redis) Purchase(ctx context.Context, userID int64, poolType string, count int, unitPrice float64) (*model.PurchaseResult, error) {
	raw, err := purchaseScript.Run(ctx, r.client,
		[]string{balanceKey(userID), poolKey(poolType), soldKey(userID)},
		count, unitPrice,
	).Text()
	if err != nil {
		return nil, fmt.Errorf("purchase script failed: %w", err)
	}

	var reply purchaseReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse purchase reply: %w", err)
	}

	return &model.PurchaseResult{
		Status:           reply.Status,
		Items:            reply.Items,
		Cost:             reply.Cost,
		BalanceRemaining: reply.Balance,
	}, nil
}

// SetToken publishes the user->token mapping via the rotation script.
func (r *Redis) SetToken(ctx context.Context, userID int64, token string) error {
	err := rotateTokenScript.Run(ctx, r.client,
		[]string{tokenKey(userID)},
		token, userID, tokenLookupPrefix,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set token: %w", err)
	}
	return nil
}

// GetToken returns the user's live token.
func (r *Redis) GetToken(ctx context.Context, userID int64) (string, error) {
	token, err := r.client.Get(ctx, tokenKey(userID)).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

// ResolveToken maps a token back to its user.
func (r *Redis) ResolveToken(ctx context.Context, token string) (int64, error) {
	userID, err := r.client.Get(ctx, tokenLookupPrefix+token).Int64()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve token: %w", err)
	}
	return userID, nil
}

// AllTokens snapshots every user->token mapping.
func (r *Redis) AllTokens(ctx context.Context) (map[int64]string, error) {
	keys, err := r.scanKeys(ctx, tokenKeyPrefix+"*")
	if err != nil {
		return nil, err
	}

	out := make(map[int64]string, len(keys))
	err = r.mgetInto(ctx, keys, func(key, raw string) error {
		userID, err := strconv.ParseInt(strings.TrimPrefix(key, tokenKeyPrefix), 10, 64)
		if err != nil {
			return fmt.Errorf("malformed token key %q: %w", key, err)
		}
		out[userID] = raw
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetDiscount returns a cached discount and whether it was present.
func (r *Redis) GetDiscount(ctx context.Context, userID int64) (float64, bool, error) {
	val, err := r.client.Get(ctx, discountKey(userID)).Float64()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get cached discount: %w", err)
	}
	return val, true, nil
}

// SetDiscount caches a discount with a TTL.
func (r *Redis) SetDiscount(ctx context.Context, userID int64, discount float64, ttl time.Duration) error {
	if err := r.client.Set(ctx, discountKey(userID), discount, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache discount: %w", err)
	}
	return nil
}

// DeleteDiscount drops the cached discount.
func (r *Redis) DeleteDiscount(ctx context.Context, userID int64) error {
	if err := r.client.Del(ctx, discountKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached discount: %w", err)
	}
	return nil
}

// SetSession stores a session token with a TTL.
func (r *Redis) SetSession(ctx context.Context, token string, userID int64, ttl time.Duration) error {
	if err := r.client.Set(ctx, sessionKeyPrefix+token, userID, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

// ResolveSession maps a session token to a user.
func (r *Redis) ResolveSession(ctx context.Context, token string) (int64, error) {
	userID, err := r.client.Get(ctx, sessionKeyPrefix+token).Int64()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve session: %w", err)
	}
	return userID, nil
}

// DeleteSession revokes a session token.
func (r *Redis) DeleteSession(ctx context.Context, token string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// CleanupExpired is a no-op for Redis: discount and session keys carry
// native TTLs and expire server-side.
func (r *Redis) CleanupExpired(ctx context.Context) (int, error) {
	return 0, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 200).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %q: %w", pattern, err)
	}
	return keys, nil
}

// mgetInto fetches values for keys in chunks and feeds each present
// key/value pair to fn.
func (r *Redis) mgetInto(ctx context.Context, keys []string, fn func(key, raw string) error) error {
	for start := 0; start < len(keys); start += mgetChunkSize {
		end := start + mgetChunkSize
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		values, err := r.client.MGet(ctx, chunk...).Result()
		if err != nil {
			return fmt.Errorf("failed to mget: %w", err)
		}
		for i, v := range values {
			raw, ok := v.(string)
			if !ok {
				continue // key expired between SCAN and MGET
			}
			if err := fn(chunk[i], raw); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ensure Redis implements Store
var _ Store = (*Redis)(nil)

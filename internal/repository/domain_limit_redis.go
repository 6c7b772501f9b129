package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Notifuse/outreach/internal/domain"
)

const domainLimitKeyPrefix = "outreach:domain_limit:"

// idle counters are dropped once both windows would have rolled over anyway
const domainLimitTTL = 2 * domain.DailyWindow

// RedisDomainLimitRepository keeps one hash per domain and updates it with a Lua
// script, so each increment is a single atomic command.
type RedisDomainLimitRepository struct {
	client *redis.Client
}

func NewRedisDomainLimitRepository(client *redis.Client) domain.DomainLimitRepository {
	return &RedisDomainLimitRepository{client: client}
}

func domainLimitKey(domainName string) string {
	return domainLimitKeyPrefix + domainName
}

func (r *RedisDomainLimitRepository) GetCounters(ctx context.Context, domains []string) (map[string]*domain.DomainLimitCounter, error) {
	counters := make(map[string]*domain.DomainLimitCounter, len(domains))
	if len(domains) == 0 {
		return counters, nil
	}

	pipe := r.client.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(domains))
	for _, d := range domains {
		cmds[d] = pipe.HGetAll(ctx, domainLimitKey(d))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read domain limits: %w", err)
	}

	for d, cmd := range cmds {
		fields, err := cmd.Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read domain limit %s: %w", d, err)
		}
		if len(fields) == 0 {
			continue
		}
		c, err := decodeDomainLimit(d, fields)
		if err != nil {
			return nil, err
		}
		counters[d] = c
	}
	return counters, nil
}

// incrementDomainLimitScript rolls the windows over and adds the capped grant in one
// server-side step, so concurrent senders never interleave between read and write.
// Missing fields start fresh windows at now.
var incrementDomainLimitScript = redis.NewScript(`
local key = KEYS[1]
local count = tonumber(ARGV[1])
local now = tonumber(ARGV[2])
local hourlyMax = tonumber(ARGV[3])
local dailyMax = tonumber(ARGV[4])
local hourlyWindow = tonumber(ARGV[5])
local dailyWindow = tonumber(ARGV[6])
local ttl = tonumber(ARGV[7])

local f = redis.call("HMGET", key, "hourly_count", "hourly_window_start", "daily_count", "daily_window_start")
local hc = tonumber(f[1]) or 0
local hs = tonumber(f[2]) or now
local dc = tonumber(f[3]) or 0
local ds = tonumber(f[4]) or now

if now >= hs + hourlyWindow then
    hc = 0
    hs = now
end
if now >= ds + dailyWindow then
    dc = 0
    ds = now
end

local granted = math.min(count, hourlyMax - hc, dailyMax - dc)
if granted < 0 then
    granted = 0
end
hc = hc + granted
dc = dc + granted

redis.call("HSET", key,
    "hourly_count", hc,
    "hourly_window_start", string.format("%d", hs),
    "daily_count", dc,
    "daily_window_start", string.format("%d", ds),
    "updated_at", string.format("%d", now))
redis.call("EXPIRE", key, ttl)

return {hc, hs, dc, ds, granted}
`)

// Increment applies the capped increment atomically inside Redis
func (r *RedisDomainLimitRepository) Increment(ctx context.Context, domainName string, count int, now time.Time, policy domain.DeliveryPolicy) (*domain.DomainLimitCounter, int, error) {
	if count < 0 {
		count = 0
	}
	res, err := incrementDomainLimitScript.Run(ctx, r.client,
		[]string{domainLimitKey(domainName)},
		count,
		now.UnixMilli(),
		policy.MaxHourlyPerDomain,
		policy.MaxDailyPerDomain,
		domain.HourlyWindow.Milliseconds(),
		domain.DailyWindow.Milliseconds(),
		int64(domainLimitTTL/time.Second),
	).Int64Slice()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to increment domain %s: %w", domainName, err)
	}
	if len(res) != 5 {
		return nil, 0, fmt.Errorf("failed to increment domain %s: unexpected script reply %v", domainName, res)
	}

	counter := &domain.DomainLimitCounter{
		Domain:            domainName,
		HourlyCount:       int(res[0]),
		HourlyWindowStart: time.UnixMilli(res[1]).UTC(),
		DailyCount:        int(res[2]),
		DailyWindowStart:  time.UnixMilli(res[3]).UTC(),
		UpdatedAt:         time.UnixMilli(now.UnixMilli()).UTC(),
	}
	return counter, int(res[4]), nil
}

func decodeDomainLimit(domainName string, fields map[string]string) (*domain.DomainLimitCounter, error) {
	ints := make(map[string]int64, 5)
	for _, f := range []string{"hourly_count", "hourly_window_start", "daily_count", "daily_window_start", "updated_at"} {
		n, err := strconv.ParseInt(fields[f], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("corrupt domain limit %s field %s: %w", domainName, f, err)
		}
		ints[f] = n
	}
	return &domain.DomainLimitCounter{
		Domain:            domainName,
		HourlyCount:       int(ints["hourly_count"]),
		HourlyWindowStart: time.UnixMilli(ints["hourly_window_start"]).UTC(),
		DailyCount:        int(ints["daily_count"]),
		DailyWindowStart:  time.UnixMilli(ints["daily_window_start"]).UTC(),
		UpdatedAt:         time.UnixMilli(ints["updated_at"]).UTC(),
	}, nil
}

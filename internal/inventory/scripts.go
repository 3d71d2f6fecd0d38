package inventory

import "github.com/go-redis/redis/v8"

// All scripts reply with {status, quest_id, quantity} so callers can log and
// publish without a second round trip.

// holdScript: KEYS quest, hold, expiry index, quest hold index.
// ARGV quest_id, quantity, expires_at_ms, hold_id.
var holdScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {'unknown_quest', ARGV[1], 0}
end
local available = tonumber(redis.call('HGET', KEYS[1], 'available') or '0')
local held = tonumber(redis.call('HGET', KEYS[1], 'held') or '0')
local qty = tonumber(ARGV[2])
if available - held < qty then
  return {'insufficient', ARGV[1], available - held}
end
redis.call('HINCRBY', KEYS[1], 'held', ARGV[2])
redis.call('HSET', KEYS[2], 'quest_id', ARGV[1], 'quantity', ARGV[2], 'expires_at', ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[4])
redis.call('SADD', KEYS[4], ARGV[4])
return {'held', ARGV[1], qty}
`)

// commitScript: KEYS hold, tombstone, expiry index.
// ARGV hold_id, now_ms, tombstone_ttl_s, quest key prefix, quest hold index prefix.
var commitScript = redis.NewScript(`
local tomb = redis.call('GET', KEYS[2])
if tomb then
  return {tomb, '', 0}
end
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {'missing', '', 0}
end
local quest = redis.call('HGET', KEYS[1], 'quest_id')
local qty = tonumber(redis.call('HGET', KEYS[1], 'quantity'))
local expiresAt = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
local questKey = ARGV[4] .. quest
local status = 'committed_now'
local final = 'committed'
if expiresAt <= tonumber(ARGV[2]) then
  redis.call('HINCRBY', questKey, 'held', tostring(-qty))
  status = 'expired_now'
  final = 'expired'
else
  redis.call('HINCRBY', questKey, 'available', tostring(-qty))
  redis.call('HINCRBY', questKey, 'held', tostring(-qty))
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('SREM', ARGV[5] .. quest, ARGV[1])
redis.call('SET', KEYS[2], final, 'EX', ARGV[3])
return {status, quest, qty}
`)

// releaseScript: KEYS hold, tombstone, expiry index.
// ARGV hold_id, tombstone_ttl_s, quest key prefix, quest hold index prefix,
// final state, cutoff_ms (0 releases unconditionally).
var releaseScript = redis.NewScript(`
local tomb = redis.call('GET', KEYS[2])
if tomb then
  return {tomb, '', 0}
end
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {'missing', '', 0}
end
local quest = redis.call('HGET', KEYS[1], 'quest_id')
local qty = tonumber(redis.call('HGET', KEYS[1], 'quantity'))
local expiresAt = tonumber(redis.call('HGET', KEYS[1], 'expires_at'))
local cutoff = tonumber(ARGV[6])
if cutoff > 0 and expiresAt > cutoff then
  return {'active', quest, qty}
end
redis.call('HINCRBY', ARGV[3] .. quest, 'held', tostring(-qty))
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('SREM', ARGV[4] .. quest, ARGV[1])
redis.call('SET', KEYS[2], ARGV[5], 'EX', ARGV[2])
return {'released_now', quest, qty}
`)

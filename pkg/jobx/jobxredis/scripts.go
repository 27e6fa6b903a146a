package jobxredis

import "github.com/redis/go-redis/v9"

// Every script receives the current time in unix milliseconds from Go so
// the queue clock stays injectable.

// KEYS: job, wait. ARGV: id, payload, policy, now, max attempts,
// failed ttl ms. The last two are copied out of the policy so stalled
// recovery can decide without decoding JSON.
// Returns 1 when enqueued, 0 when a waiting or active job already exists.
var enqueueScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == 'waiting' or status == 'active' then
    return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
    'id', ARGV[1],
    'payload', ARGV[2],
    'policy', ARGV[3],
    'status', 'waiting',
    'attempts', '0',
    'created_at', ARGV[4],
    'updated_at', ARGV[4],
    'run_at', ARGV[4],
    'max_attempts', ARGV[5],
    'failed_ttl', ARGV[6])
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1
`)

// KEYS: wait, active. ARGV: job key prefix, now, claim token.
// Pops ids until one is still waiting and marks it active.
// The active set is scored by the last claim or heartbeat time.
var claimScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
while id do
    local key = ARGV[1] .. id
    if redis.call('HGET', key, 'status') == 'waiting' then
        redis.call('HINCRBY', key, 'attempts', '1')
        redis.call('HDEL', key, 'heartbeat_at')
        redis.call('HSET', key, 'status', 'active', 'token', ARGV[3], 'started_at', ARGV[2], 'updated_at', ARGV[2])
        redis.call('ZADD', KEYS[2], ARGV[2], id)
        return id
    end
    id = redis.call('RPOP', KEYS[1])
end
return false
`)

// Report scripts return 1 on success, 0 when the job is not active and -1
// when the claim token no longer matches.

// KEYS: job, active. ARGV: id, token, now.
var heartbeatScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'status', 'token')
if (cur[2] or '') ~= ARGV[2] then
    return -1
end
if cur[1] ~= 'active' then
    return 0
end
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
redis.call('HSET', KEYS[1], 'heartbeat_at', ARGV[3])
return 1
`)

// KEYS: job, active, completed counter. ARGV: id, result, now, ttl ms, token.
var completeScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'status', 'token')
if (cur[2] or '') ~= ARGV[5] then
    return -1
end
if cur[1] ~= 'active' then
    return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[1], 'token')
redis.call('HSET', KEYS[1],
    'status', 'completed',
    'result', ARGV[2],
    'finished_at', ARGV[3],
    'updated_at', ARGV[3])
redis.call('INCR', KEYS[3])
local ttl = tonumber(ARGV[4])
if ttl > 0 then
    redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// KEYS: job, active, delayed, failed counter.
// ARGV: id, error, now, retry flag, run_at, ttl ms, token.
var failScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'status', 'token')
if (cur[2] or '') ~= ARGV[7] then
    return -1
end
if cur[1] ~= 'active' then
    return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[1], 'token')
redis.call('HSET', KEYS[1], 'last_error', ARGV[2], 'updated_at', ARGV[3])
if ARGV[4] == '1' then
    redis.call('HSET', KEYS[1], 'status', 'waiting', 'run_at', ARGV[5])
    redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
    return 1
end
redis.call('HSET', KEYS[1], 'status', 'failed', 'finished_at', ARGV[3])
redis.call('INCR', KEYS[4])
local ttl = tonumber(ARGV[6])
if ttl > 0 then
    redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// KEYS: delayed, wait. ARGV: now, limit.
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', '0', ARGV[2])
for _, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    redis.call('LPUSH', KEYS[2], id)
end
return #ids
`)

// KEYS: active, wait, failed counter. ARGV: cutoff, job key prefix, now.
// Jobs that used their last attempt are failed instead of requeued.
// Returns {requeued, failed}.
var stalledScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
local requeued, failed = 0, 0
for _, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
    local key = ARGV[2] .. id
    local f = redis.call('HMGET', key, 'status', 'attempts', 'max_attempts', 'failed_ttl')
    if f[1] == 'active' then
        redis.call('HDEL', key, 'token')
        local attempts = tonumber(f[2]) or 0
        local max = tonumber(f[3]) or 0
        if max > 0 and attempts >= max then
            redis.call('HSET', key,
                'status', 'failed',
                'last_error', 'stalled',
                'finished_at', ARGV[3],
                'updated_at', ARGV[3])
            redis.call('INCR', KEYS[3])
            local ttl = tonumber(f[4]) or 0
            if ttl > 0 then
                redis.call('PEXPIRE', key, ttl)
            end
            failed = failed + 1
        else
            redis.call('HSET', key,
                'status', 'waiting',
                'last_error', 'stalled',
                'run_at', ARGV[3],
                'updated_at', ARGV[3])
            redis.call('LPUSH', KEYS[2], id)
            requeued = requeued + 1
        end
    end
end
return {requeued, failed}
`)

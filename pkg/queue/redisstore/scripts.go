package redisstore

import "github.com/redis/go-redis/v9"

// Ready-set rank: (100 - priority) * 1e12 + sequence. Lowest rank pops first,
// so higher priority wins and enqueue order breaks ties. Ranks stay below 2^53
// and are formatted with %.0f because Lua would print them in exponent form.
const rankFn = `
local function rank(priority, seq)
  return string.format('%.0f', (100 - tonumber(priority)) * 1000000000000 + tonumber(seq))
end
`

// Acknowledgements only apply while the caller still holds the job's lock.
const ownedFn = `
local function owned(jk, worker)
  local h = redis.call('HMGET', jk, 'state', 'locked_by')
  return h[1] == 'in-flight' and h[2] == worker
end
`

// KEYS: job, ready, delayed, seq, dedup
// ARGV: id, queue, payload, priority, max_attempts, dedup_key, run_at_ms, enqueued_at_ms, now_ms
var enqueueScript = redis.NewScript(rankFn + `
if ARGV[6] ~= '' then
  local existing = redis.call('GET', KEYS[5])
  if existing then
    return existing
  end
  redis.call('SET', KEYS[5], ARGV[1])
end

local seq = redis.call('INCR', KEYS[4])
redis.call('HSET', KEYS[1],
  'id', ARGV[1], 'queue', ARGV[2], 'payload', ARGV[3], 'state', 'pending',
  'priority', ARGV[4], 'attempts', '0', 'max_attempts', ARGV[5], 'dedup_key', ARGV[6],
  'run_at', ARGV[7], 'enqueued_at', ARGV[8], 'seq', tostring(seq))

if tonumber(ARGV[7]) > tonumber(ARGV[9]) then
  redis.call('ZADD', KEYS[3], ARGV[7], ARGV[1])
else
  redis.call('ZADD', KEYS[2], rank(ARGV[4], seq), ARGV[1])
end
return ARGV[1]
`)

// KEYS: ready, delayed, inflight
// ARGV: now_ms, locked_until_ms, worker_id, job_key_prefix
var claimScript = redis.NewScript(rankFn + `
local now = tonumber(ARGV[1])

local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', now, 'LIMIT', 0, 100)
for _, id in ipairs(expired) do
  redis.call('ZREM', KEYS[3], id)
  local jk = ARGV[4] .. id
  local h = redis.call('HMGET', jk, 'priority', 'seq')
  if h[1] then
    redis.call('HSET', jk, 'state', 'pending', 'locked_until', '', 'locked_by', '')
    redis.call('ZADD', KEYS[1], rank(h[1], h[2]), id)
  end
end

local due = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now, 'LIMIT', 0, 100)
for _, id in ipairs(due) do
  redis.call('ZREM', KEYS[2], id)
  local h = redis.call('HMGET', ARGV[4] .. id, 'priority', 'seq')
  if h[1] then
    redis.call('ZADD', KEYS[1], rank(h[1], h[2]), id)
  end
end

while true do
  local popped = redis.call('ZPOPMIN', KEYS[1])
  if #popped == 0 then
    return false
  end
  local id = popped[1]
  local jk = ARGV[4] .. id
  if redis.call('EXISTS', jk) == 1 then
    redis.call('HSET', jk, 'state', 'in-flight', 'locked_until', ARGV[2], 'locked_by', ARGV[3])
    redis.call('ZADD', KEYS[3], ARGV[2], id)
    return redis.call('HGETALL', jk)
  end
end
`)

// KEYS: job, inflight, completed, dedup
// ARGV: id, retention_seconds, completed_at_ms, worker_id
var completeScript = redis.NewScript(ownedFn + `
if not owned(KEYS[1], ARGV[4]) then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
if redis.call('GET', KEYS[4]) == ARGV[1] then
  redis.call('DEL', KEYS[4])
end
redis.call('INCR', KEYS[3])

local retention = tonumber(ARGV[2])
if retention > 0 then
  redis.call('HSET', KEYS[1], 'state', 'completed', 'completed_at', ARGV[3], 'locked_until', '', 'locked_by', '')
  redis.call('EXPIRE', KEYS[1], retention)
else
  redis.call('DEL', KEYS[1])
end
return 1
`)

// KEYS: job, inflight, delayed
// ARGV: id, error, run_at_ms, worker_id
var retryScript = redis.NewScript(ownedFn + `
if not owned(KEYS[1], ARGV[4]) then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
redis.call('HSET', KEYS[1], 'state', 'failed-retryable', 'last_error', ARGV[2],
  'run_at', ARGV[3], 'locked_until', '', 'locked_by', '')
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
return 1
`)

// KEYS: job, inflight, dlq, dedup
// ARGV: id, entry_json, worker_id
var deadLetterScript = redis.NewScript(ownedFn + `
if not owned(KEYS[1], ARGV[3]) then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('LPUSH', KEYS[3], ARGV[2])
if redis.call('GET', KEYS[4]) == ARGV[1] then
  redis.call('DEL', KEYS[4])
end
redis.call('DEL', KEYS[1])
return 1
`)

// KEYS: job, inflight, ready
// ARGV: id, worker_id
var releaseScript = redis.NewScript(rankFn + ownedFn + `
if not owned(KEYS[1], ARGV[2]) then
  return 0
end
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HSET', KEYS[1], 'state', 'pending', 'locked_until', '', 'locked_by', '')
local h = redis.call('HMGET', KEYS[1], 'priority', 'seq')
redis.call('ZADD', KEYS[3], rank(h[1], h[2]), ARGV[1])
return 1
`)

// KEYS: job, inflight
// ARGV: id, locked_until_ms, worker_id
var extendScript = redis.NewScript(ownedFn + `
if not owned(KEYS[1], ARGV[3]) then
  return 0
end
redis.call('HSET', KEYS[1], 'locked_until', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package backend

// FixedWindowScript is the consume operation for fixed-window counters.
// KEYS[1] is the counter key, ARGV[1] is the limit and ARGV[2] is the window in milliseconds.
// It returns 0 when the hit is admitted and the remaining PTTL (at least 1) otherwise.
var FixedWindowScript = Script{
	Name: "fixed-window",
	Lua: `local key = KEYS[1]
local limit = tonumber(ARGV[1])
local expire = ARGV[2]
local current = tonumber(redis.call("GET", key) or "0")
if current > 0 then
  if current + 1 > limit then
    local ttl = redis.call("PTTL", key)
    if ttl < 1 then
      ttl = 1
    end
    return ttl
  end
  redis.call("INCR", key)
  return 0
end
redis.call("SET", key, 1, "PX", expire)
return 0
`,
}

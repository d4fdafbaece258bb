// Package rate implements the Redis fixed-window throttle for failed logins.
//
// A failed attempt runs one Lua script: INCR, plus PEXPIRE on the first hit of
// a window. Keys:
//   - <prefix>:login:u:<lowercased username>
//   - <prefix>:login:ip:<ip> (only when IP throttling is on)
//
// Checks read every counter with one MGET. A username (or IP) whose counter
// reached MaxLoginAttempts is refused until the window expires; a successful
// login deletes both counters.
package rate

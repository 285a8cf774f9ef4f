// Package state keeps per-user conversation sessions for Telegram bots.
// Sessions are keyed strictly by user id; callers load a copy, mutate it and
// save it back. Two backends are provided: an in-memory map and Redis.
package state

// Package monitor assembles the relay daemon from configuration.
//
// Startup order: cache sweeper, transport, dispatch pool, history pruning,
// then sources. Shutdown runs the other way round. Sources stop first, the
// pool drains queued messages into the still-running transport, the
// transport closes, and finally the cache and history store are released.
package monitor

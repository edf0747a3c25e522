// Package notifications delivers import events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when no topic is set. The
// per-category toggles (sessions, errors, retries) are honored here so
// callers can fire events unconditionally.
//
// Extend this package if you need alternative transports; daemon code
// depends only on the simple Service interface.
package notifications

// Package watchdog runs the periodic recovery sweeps that keep the catalog
// honest: reclaiming stale claims from dead workers, requeueing failed
// selections whose backoff has elapsed, republishing stuck enqueued work,
// and rolling finished sessions up to their terminal status.
//
// Every step is driven entirely by store state and committed independently,
// so a failing step never blocks the rest and repeating a sweep is always
// safe. Multiple daemons may sweep concurrently; the store's conditional
// updates make their interleavings indistinguishable from one sweeper.
package watchdog

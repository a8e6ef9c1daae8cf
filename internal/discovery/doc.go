// Package discovery maintains the gateway's directory of CoAP devices.
//
// # Architecture
//
//	┌───────────────┐   Upsert    ┌───────────────┐   Expire   ┌───────────────┐
//	│   Refresher   │────────────▶│   Directory   │◀───────────│    Sweeper    │
//	│ (every 600 s) │             │ map + RWMutex │            │ (every 600 s) │
//	└───────────────┘             └───────────────┘            └───────────────┘
//	        │                        ▲         │
//	        ▼                        │         ▼
//	  CoAP multicast         Snapshot/Lookup   Observers
//	  /.well-known/core      (HTTP handlers)   (WebSocket hub, MQTT)
//
// The Refresher queries the network on start and every DiscoveryPeriod and
// upserts every announcement. A failed query skips the cycle without touching
// the directory. The Sweeper waits CleanupInitialDelay, then every
// CleanupPeriod removes records whose age is at least CleanupTimeout.
//
// # Thread Safety
//
// The Directory is the only shared mutable state. One mutex guards the whole
// map and is never held across network I/O or observer callbacks. Readers
// always receive value copies, so no record is ever observed half-written.
//
// # Usage
//
//	dir := discovery.NewDirectory()
//	refresher := discovery.NewRefresher(dir, discoverer, discovery.RefresherConfig{})
//	sweeper := discovery.NewSweeper(dir, discovery.SweeperConfig{})
//	go refresher.Run(ctx)
//	go sweeper.Run(ctx)
//
//	rec, ok := dir.Lookup("ll")
package discovery

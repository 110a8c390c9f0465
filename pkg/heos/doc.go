// ABOUTME: High-level HEOS client API
// ABOUTME: Connections, typed commands and the live state model for most use cases
// Package heos is the main entry point for controlling HEOS devices.
//
// It provides:
//   - Conn: one connection with correlated commands and a single write path
//   - Stateful mode: change events folded into a live model with change feeds
//   - ConnectAny: race several discovered addresses and keep the first
//
// For lower-level control, see the protocol, state, transport and discovery
// packages.
//
// Example:
//
//	found := discovery.Collect(ctx, 3*time.Second, discovery.MDNS{})
//	addrs := discovery.Addrs(found)
//	conn, err := heos.ConnectAny(ctx, addrs, 5*time.Second, heos.Config{})
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	err = conn.SetVolume(ctx, pid, 30)
//	err = conn.InitStateful(ctx)
//	for change := range conn.Engine().VolumeChanges().All(ctx) {
//	    fmt.Println(change.Player, change.Level)
//	}
package heos

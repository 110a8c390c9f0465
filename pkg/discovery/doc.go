// ABOUTME: Device discovery package
// ABOUTME: Finds candidate HEOS device addresses on the local network
// Package discovery yields candidate addresses for HEOS devices.
//
// Sources are merged under one deadline and handed to heos.ConnectAny,
// which races a dial to each candidate.
//
// Example:
//
//	cands := discovery.Collect(ctx, 3*time.Second,
//	    discovery.Static{"192.168.1.20"},
//	    discovery.MDNS{},
//	)
//	conn, err := heos.ConnectAny(ctx, discovery.Addrs(cands), 5*time.Second, cfg)
package discovery

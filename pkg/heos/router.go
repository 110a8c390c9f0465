// ABOUTME: Routes decoded inbound lines to the state engine, event feed and registry
// ABOUTME: Runs only on the reader goroutine, so arrival order is preserved
package heos

import (
	"github.com/harperreed/heos-go/pkg/protocol"
)

// route handles one inbound line. It never blocks on the network.
func (c *Conn) route(line string) {
	msg, err := protocol.Decode(line)
	if err != nil {
		log.Warnw("dropping malformed line", "session", c.session, "error", err)
		return
	}

	switch m := msg.(type) {
	case *protocol.Event:
		if c.stateful.Load() {
			c.engine.ApplyEvent(m)
			c.refresh.schedule(m)
		}
		c.events.Publish(m)

	case *protocol.Response:
		// the engine sees the reply before the waiting caller is released
		if c.stateful.Load() && m.Success() {
			c.engine.ApplyResponse(m)
		}
		if !c.registry.Resolve(m) {
			log.Debugw("reply without a waiter", "session", c.session, "command", m.Path())
		}
	}
}

// ABOUTME: HEOS CLI wire protocol package
// ABOUTME: Encodes commands and decodes responses and change events
// Package protocol implements the HEOS CLI wire format.
//
// Commands are written as single lines of the form
//
//	heos://player/set_volume?pid=1&level=30
//
// and the device answers with one JSON object per line. Objects whose
// command starts with "event/" are unsolicited change events, everything else
// is a reply to a command.
//
// Example:
//
//	line := protocol.Encode(protocol.SetVolume(1, 30))
//	msg, err := protocol.Decode(reply)
//	if resp, ok := msg.(*protocol.Response); ok && resp.Success() {
//	    level, _ := resp.Attrs.Int("level")
//	}
package protocol

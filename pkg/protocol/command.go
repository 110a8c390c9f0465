// ABOUTME: Command and attribute types for the HEOS CLI protocol
// ABOUTME: Commands are immutable group/verb pairs with ordered parameters
package protocol

import (
	"strconv"
	"strings"
)

// SequenceParam is the parameter the device echoes back in its reply
const SequenceParam = "SEQUENCE"

// Param is a single key=value pair
type Param struct {
	Key   string
	Value string
}

// Attrs is an ordered list of key=value pairs as carried by a command line
// or the "message" field of a reply
type Attrs []Param

// Get returns the first value for key
func (a Attrs) Get(key string) (string, bool) {
	for _, p := range a {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Value returns the first value for key or an empty string
func (a Attrs) Value(key string) string {
	v, _ := a.Get(key)
	return v
}

// Has reports whether key is present
func (a Attrs) Has(key string) bool {
	_, ok := a.Get(key)
	return ok
}

// Int parses the value for key as a base 10 integer
func (a Attrs) Int(key string) (int64, bool) {
	v, ok := a.Get(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Encode renders the attributes in wire form, escaping reserved characters
func (a Attrs) Encode() string {
	var b strings.Builder
	for i, p := range a {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escapeValue(p.Key))
		b.WriteByte('=')
		b.WriteString(escapeValue(p.Value))
	}
	return b.String()
}

func (a Attrs) clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	copy(out, a)
	return out
}

// Command is a request to the device. The zero value is not valid; build
// commands with NewCommand or one of the typed constructors.
type Command struct {
	group  string
	verb   string
	params Attrs
}

// NewCommand creates a command for group/verb. Empty names are a programming
// error and panic.
func NewCommand(group, verb string, params ...Param) Command {
	if group == "" || verb == "" {
		panic("protocol: command needs a group and a verb")
	}
	return Command{group: group, verb: verb, params: Attrs(params).clone()}
}

// Group returns the command group ("player", "group", "browse", "system")
func (c Command) Group() string { return c.group }

// Verb returns the command name within its group
func (c Command) Verb() string { return c.verb }

// Path returns "group/verb", the value the device echoes as heos.command
func (c Command) Path() string { return c.group + "/" + c.verb }

// Params returns a copy of the ordered parameters
func (c Command) Params() Attrs { return c.params.clone() }

// Param returns the value of a parameter
func (c Command) Param(key string) (string, bool) { return c.params.Get(key) }

// With returns a copy of the command with key set to value. An existing key
// keeps its position.
func (c Command) With(key, value string) Command {
	params := c.params.clone()
	for i := range params {
		if params[i].Key == key {
			params[i].Value = value
			return Command{group: c.group, verb: c.verb, params: params}
		}
	}
	params = append(params, Param{Key: key, Value: value})
	return Command{group: c.group, verb: c.verb, params: params}
}

// WithSequence returns a copy tagged with a SEQUENCE token
func (c Command) WithSequence(seq uint64) Command {
	return c.With(SequenceParam, strconv.FormatUint(seq, 10))
}

// Sequence returns the SEQUENCE token if one was assigned
func (c Command) Sequence() (uint64, bool) {
	v, ok := c.params.Get(SequenceParam)
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// String returns the encoded line without the terminator
func (c Command) String() string {
	return strings.TrimSuffix(Encode(c), LineTerminator)
}

// ABOUTME: Line encoder and decoder for the HEOS CLI protocol
// ABOUTME: heos://group/verb?k=v command lines out, JSON reply and event lines in
package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

const (
	// Scheme prefixes every command line
	Scheme = "heos://"

	// LineTerminator ends every command line
	LineTerminator = "\r\n"

	// DefaultPort is the device's CLI port
	DefaultPort = 1255

	eventPrefix = "event/"
)

var (
	valueEscaper   = strings.NewReplacer("%", "%25", "&", "%26", "=", "%3D")
	valueUnescaper = strings.NewReplacer("%25", "%", "%26", "&", "%3D", "=", "%3d", "=")
)

func escapeValue(s string) string   { return valueEscaper.Replace(s) }
func unescapeValue(s string) string { return valueUnescaper.Replace(s) }

// Encode renders a command as a terminated wire line
func Encode(cmd Command) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteString(cmd.Path())
	if len(cmd.params) > 0 {
		b.WriteByte('?')
		b.WriteString(cmd.params.Encode())
	}
	b.WriteString(LineTerminator)
	return b.String()
}

// ParseCommand is the inverse of Encode. The terminator is optional.
func ParseCommand(line string) (Command, error) {
	raw := strings.TrimRight(line, "\r\n")
	rest, ok := strings.CutPrefix(raw, Scheme)
	if !ok {
		return Command{}, malformed(line, "missing heos:// scheme", nil)
	}

	path, query, _ := strings.Cut(rest, "?")
	group, verb, ok := strings.Cut(path, "/")
	if !ok || group == "" || verb == "" || strings.Contains(verb, "/") {
		return Command{}, malformed(line, "command path must be group/verb", nil)
	}

	return Command{group: group, verb: verb, params: parseAttrs(query)}, nil
}

// parseAttrs splits a k=v&k=v string. Segments without '=' become keys with
// an empty value, which is how the device reports flags like "signed_out".
func parseAttrs(s string) Attrs {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "&")
	attrs := make(Attrs, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		attrs = append(attrs, Param{Key: unescapeValue(k), Value: unescapeValue(v)})
	}
	return attrs
}

// envelope mirrors the JSON shape of every inbound line
type envelope struct {
	Heos *struct {
		Command string `json:"command"`
		Result  string `json:"result"`
		Message string `json:"message"`
	} `json:"heos"`
	Payload json.RawMessage `json:"payload"`
	Options json.RawMessage `json:"options"`
}

// Decode parses one inbound line into a *Response or an *Event.
// Failures are *MalformedError and match ErrMalformedMessage.
func Decode(line string) (Message, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, malformed(line, "empty line", nil)
	}

	var env envelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, malformed(line, "invalid JSON", err)
	}
	if env.Heos == nil || env.Heos.Command == "" {
		return nil, malformed(line, "missing heos.command", nil)
	}

	attrs := parseAttrs(env.Heos.Message)

	if name, ok := strings.CutPrefix(env.Heos.Command, eventPrefix); ok {
		ev, err := decodeEvent(line, name, attrs)
		if err != nil {
			return nil, err
		}
		return ev, nil
	}

	group, verb, ok := strings.Cut(env.Heos.Command, "/")
	if !ok || group == "" || verb == "" {
		return nil, malformed(line, "command must be group/verb", nil)
	}

	var result Result
	switch env.Heos.Result {
	case "success":
		result = ResultSuccess
	case "fail":
		result = ResultFail
	default:
		return nil, malformed(line, "unknown result "+quote(env.Heos.Result), nil)
	}

	resp := &Response{
		Group:   group,
		Verb:    verb,
		Result:  result,
		Message: env.Heos.Message,
		Attrs:   attrs,
		Payload: env.Payload,
		Options: env.Options,
	}
	if err := validateResponse(line, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// validateResponse checks the typed attributes of a successful reply
func validateResponse(line string, resp *Response) error {
	if resp.Result != ResultSuccess || resp.Processing() {
		return nil
	}
	for _, key := range []string{"pid", "gid", "sid"} {
		if v, ok := resp.Attrs.Get(key); ok && v != "" {
			if _, err := ParseIDList(v); err != nil {
				return malformed(line, key+" is not numeric", err)
			}
		}
	}
	if v, ok := resp.Attrs.Get("level"); ok {
		if _, err := ParseVolume(v); err != nil {
			return malformed(line, "invalid level", err)
		}
	}
	return nil
}

// ParseIDList parses a comma separated id list such as the pid value of
// group/set_group
func ParseIDList(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, n)
	}
	return ids, nil
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

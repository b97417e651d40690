package protocol

import (
	"sort"
	"strings"
)

// Parse decodes a raw protocol message.
//
// Header lines are KEY: VALUE pairs split on the first colon; a header line
// without one, blank lines included, fails the parse. The DETAILS line ends the
// header: blank lines right after it are skipped and every remaining line is
// kept verbatim as the details text.
func Parse(raw string) (ParsedMessage, error) {
	var msg ParsedMessage
	var lines []string
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return ParsedMessage{}, &ParseError{Line: i + 1, Text: line, Err: ErrMalformedLine}
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case KeyFrom:
			msg.From = value
		case KeyTo:
			msg.To = value
		case KeyAction:
			msg.RawAction = value
		case KeyDetails:
			msg.Details = detailsAfter(lines, i)
			i = len(lines)
		}
	}

	for _, field := range []struct{ name, value string }{
		{KeyAction, msg.RawAction},
		{KeyFrom, msg.From},
		{KeyTo, msg.To},
	} {
		if field.value == "" {
			return ParsedMessage{}, &ParseError{Field: field.name, Err: ErrMissingField}
		}
	}
	msg.Action = ParseAction(msg.RawAction)
	return msg, nil
}

func detailsAfter(lines []string, at int) string {
	start := at + 1
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start >= len(lines) {
		return ""
	}
	return strings.Join(lines[start:], "\n")
}

// Serialize renders an acknowledgement in wire format.
func Serialize(ack Acknowledgement) string {
	var b strings.Builder
	b.WriteString(KeyFrom + ": " + ack.From + "\n")
	b.WriteString(KeyTo + ": " + ack.To + "\n")
	b.WriteString(KeyAction + ": " + ActionAcknowledge.String() + "\n")
	b.WriteString(KeyDetails + ":\n\n")
	b.WriteString(ack.Details())
	return b.String()
}

// Details renders the payload as sorted "key: value" lines. Values are trimmed
// and an empty value renders as "key:", so the text survives Parse unchanged.
func (a Acknowledgement) Details() string {
	if len(a.Payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(a.Payload))
	for k := range a.Payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		v := strings.TrimSpace(a.Payload[k])
		if v == "" {
			lines = append(lines, k+":")
			continue
		}
		lines = append(lines, k+": "+v)
	}
	return strings.Join(lines, "\n")
}

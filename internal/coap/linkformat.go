package coap

import (
	"fmt"
	"strings"
)

// Link is one entry of an RFC 6690 link-format document.
type Link struct {
	// Target is the URI reference between the angle brackets, e.g. "/ll".
	Target string

	// Params holds the link parameters with quotes removed. A parameter
	// without a value maps to "".
	Params map[string]string
}

// ResourceType returns the first token of the rt parameter, or "".
func (l Link) ResourceType() string {
	rt := strings.Fields(l.Params["rt"])
	if len(rt) == 0 {
		return ""
	}
	return rt[0]
}

// ParseLinkFormat parses a link-format payload such as
//
//	</ll>;rt="rgbw",</k>;rt="shcnt";ct=60,</sw>
//
// Commas and semicolons inside quoted parameter values are preserved.
func ParseLinkFormat(payload []byte) ([]Link, error) {
	var links []Link

	for _, entry := range splitQuoted(string(payload), ',') {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := splitQuoted(entry, ';')
		target := strings.TrimSpace(parts[0])
		if len(target) < 3 || target[0] != '<' || target[len(target)-1] != '>' {
			return nil, fmt.Errorf("%w: bad target %q", ErrInvalidLinkFormat, target)
		}

		link := Link{
			Target: target[1 : len(target)-1],
			Params: make(map[string]string, len(parts)-1),
		}
		for _, p := range parts[1:] {
			name, value, _ := strings.Cut(strings.TrimSpace(p), "=")
			if name == "" {
				continue
			}
			link.Params[name] = strings.Trim(value, `"`)
		}
		links = append(links, link)
	}

	return links, nil
}

// splitQuoted splits s on sep, ignoring separators inside double quotes.
func splitQuoted(s string, sep byte) []string {
	var (
		parts  []string
		quoted bool
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case sep:
			if !quoted {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

package tablequery

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// FormatOptions are format settings given alongside a source, for example
// in the fragment of its URL. Zero values mean unspecified.
type FormatOptions struct {
	Encoding   string
	Header     HeaderMode
	Delimiter  rune
	QuoteChar  rune
	EscapeChar rune
}

// ParseResult is the outcome of ParseSourceURL.
type ParseResult struct {
	// RemainingURL is the input without the recognised fragment options.
	RemainingURL string
	// Options holds the recognised options.
	Options FormatOptions
}

// Named characters accepted as option values.
var (
	delimiterNames = map[string]rune{
		"comma":     ',',
		"semicolon": ';',
		"tab":       '\t',
	}
	quoteNames = map[string]rune{
		"doublequote": '"',
		"singlequote": '\'',
	}
	escapeNames = map[string]rune{
		"backslash": '\\',
	}
)

// ParseSourceURL extracts format options from the fragment of a source URL
// or path. The fragment is a list of key=value pairs separated by ';'.
// Recognised keys are encoding (or charset), header (present or absent),
// delimiter, quotechar and escapechar. Character values are a single
// character, a name such as "tab" or a percent-encoded character such as
// "%3B". Unknown keys and unrecognised values stay in the returned URL.
func ParseSourceURL(raw string) ParseResult {
	base, fragment, hasFragment := strings.Cut(raw, "#")
	if !hasFragment || fragment == "" {
		return ParseResult{RemainingURL: raw}
	}

	var (
		opts      FormatOptions
		remaining []string
	)
	for part := range strings.SplitSeq(fragment, ";") {
		key, value, ok := strings.Cut(part, "=")
		if !ok || !opts.apply(strings.ToLower(key), value) {
			remaining = append(remaining, part)
		}
	}

	result := ParseResult{RemainingURL: base, Options: opts}
	if len(remaining) > 0 {
		result.RemainingURL = base + "#" + strings.Join(remaining, ";")
	}
	return result
}

// apply sets the option named key and reports whether value was accepted.
func (o *FormatOptions) apply(key, value string) bool {
	switch key {
	case "encoding", "charset":
		if value == "" {
			return false
		}
		o.Encoding = value
		return true
	case "header":
		switch strings.ToLower(value) {
		case "present":
			o.Header = HeaderPresent
		case "absent":
			o.Header = HeaderAbsent
		default:
			return false
		}
		return true
	case "delimiter":
		return setChar(&o.Delimiter, value, delimiterNames)
	case "quotechar":
		return setChar(&o.QuoteChar, value, quoteNames)
	case "escapechar":
		return setChar(&o.EscapeChar, value, escapeNames)
	default:
		return false
	}
}

// ParseChar decodes a character option value. It accepts a single
// character, a percent-encoded character or one of the names tab, comma,
// semicolon, doublequote, singlequote and backslash.
func ParseChar(value string) (rune, bool) {
	var r rune
	for _, names := range []map[string]rune{delimiterNames, quoteNames, escapeNames} {
		if setChar(&r, value, names) {
			return r, true
		}
	}
	return 0, false
}

func setChar(dst *rune, value string, names map[string]rune) bool {
	if r, ok := names[strings.ToLower(value)]; ok {
		*dst = r
		return true
	}
	if strings.HasPrefix(value, "%") {
		decoded, err := url.PathUnescape(value)
		if err != nil {
			return false
		}
		value = decoded
	}
	if utf8.RuneCountInString(value) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(value)
	*dst = r
	return true
}

// filePathFromURL turns a file URL into a local path. Other values are
// returned unchanged.
func filePathFromURL(location string) string {
	if !strings.HasPrefix(location, "file:") {
		return location
	}
	u, err := url.Parse(location)
	if err != nil {
		return strings.TrimPrefix(location, "file:")
	}
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Path
}

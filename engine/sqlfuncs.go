package engine

import (
	"database/sql/driver"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"modernc.org/sqlite"
)

// SQL functions backing the query functions SQLite has no exact
// equivalent for. They return NULL on invalid input, which the query
// treats as an error value.
func init() {
	deterministic := map[string]struct {
		nArg int32
		fn   func(args []driver.Value) driver.Value
	}{
		"tq_integer":        {1, fnInteger},
		"tq_decimal":        {1, fnDecimal},
		"tq_double":         {1, fnDouble},
		"tq_boolean":        {1, fnBoolean},
		"tq_double_str":     {1, fnDoubleString},
		"tq_ucase":          {1, textFunc(strings.ToUpper)},
		"tq_lcase":          {1, textFunc(strings.ToLower)},
		"tq_encode_for_uri": {1, textFunc(encodeForURI)},
		"tq_contains":       {2, pairFunc(func(a, b string) driver.Value { return boolValue(strings.Contains(a, b)) })},
		"tq_strstarts":      {2, pairFunc(func(a, b string) driver.Value { return boolValue(strings.HasPrefix(a, b)) })},
		"tq_strends":        {2, pairFunc(func(a, b string) driver.Value { return boolValue(strings.HasSuffix(a, b)) })},
		"tq_strbefore":      {2, pairFunc(strBefore)},
		"tq_strafter":       {2, pairFunc(strAfter)},
		"tq_substr":         {-1, fnSubstr},
		"tq_regex":          {3, fnRegex},
		"tq_replace":        {4, fnReplace},
		"tq_iri":            {2, fnIRI},
		"tq_round":          {1, numberFunc(func(f float64) float64 { return math.Floor(f + 0.5) })},
		"tq_ceil":           {1, numberFunc(math.Ceil)},
		"tq_floor":          {1, numberFunc(math.Floor)},
	}
	for name, f := range deterministic {
		fn := f.fn
		sqlite.MustRegisterDeterministicScalarFunction(name, f.nArg,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				return fn(args), nil
			})
	}

	sqlite.MustRegisterScalarFunction("tq_uuid", 0,
		func(_ *sqlite.FunctionContext, _ []driver.Value) (driver.Value, error) {
			return uuid.New().URN(), nil
		})
	sqlite.MustRegisterScalarFunction("tq_struuid", 0,
		func(_ *sqlite.FunctionContext, _ []driver.Value) (driver.Value, error) {
			return uuid.NewString(), nil
		})
}

// valueText returns the text of an SQL value.
func valueText(v driver.Value) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), true
	default:
		return "", false
	}
}

func boolValue(b bool) driver.Value {
	if b {
		return int64(1)
	}
	return int64(0)
}

func textFunc(fn func(string) string) func([]driver.Value) driver.Value {
	return func(args []driver.Value) driver.Value {
		s, ok := valueText(args[0])
		if !ok {
			return nil
		}
		return fn(s)
	}
}

func pairFunc(fn func(a, b string) driver.Value) func([]driver.Value) driver.Value {
	return func(args []driver.Value) driver.Value {
		a, okA := valueText(args[0])
		b, okB := valueText(args[1])
		if !okA || !okB {
			return nil
		}
		return fn(a, b)
	}
}

func numberFunc(fn func(float64) float64) func([]driver.Value) driver.Value {
	return func(args []driver.Value) driver.Value {
		switch x := args[0].(type) {
		case int64:
			return x
		case float64:
			return fn(x)
		default:
			return nil
		}
	}
}

var integerLexical = regexp.MustCompile(`^[+-]?[0-9]+$`)

func fnInteger(args []driver.Value) driver.Value {
	switch x := args[0].(type) {
	case int64:
		return x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return int64(x)
	}
	s, ok := valueText(args[0])
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if !integerLexical.MatchString(s) {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return v
}

var decimalLexical = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)$`)

func fnDecimal(args []driver.Value) driver.Value {
	switch x := args[0].(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	s, ok := valueText(args[0])
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if !decimalLexical.MatchString(s) {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return v
}

func fnDouble(args []driver.Value) driver.Value {
	switch x := args[0].(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	s, ok := valueText(args[0])
	if !ok {
		return nil
	}
	v, ok := parseDouble(strings.TrimSpace(s))
	if !ok {
		return nil
	}
	return v
}

var doubleLexical = regexp.MustCompile(`^[+-]?([0-9]+(\.[0-9]*)?|\.[0-9]+)([eE][+-]?[0-9]+)?$`)

// parseDouble parses the lexical form of an xsd:double.
func parseDouble(s string) (float64, bool) {
	switch s {
	case "INF", "+INF":
		return math.Inf(1), true
	case "-INF":
		return math.Inf(-1), true
	case "NaN":
		return math.NaN(), true
	}
	if !doubleLexical.MatchString(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseBoolean parses the lexical form of an xsd:boolean as 1 or 0.
func parseBoolean(s string) (int64, bool) {
	switch s {
	case "true", "1":
		return 1, true
	case "false", "0":
		return 0, true
	default:
		return 0, false
	}
}

func fnBoolean(args []driver.Value) driver.Value {
	switch x := args[0].(type) {
	case int64:
		return boolValue(x != 0)
	case float64:
		return boolValue(x != 0 && !math.IsNaN(x))
	}
	s, ok := valueText(args[0])
	if !ok {
		return nil
	}
	v, ok := parseBoolean(strings.TrimSpace(s))
	if !ok {
		return nil
	}
	return v
}

func fnDoubleString(args []driver.Value) driver.Value {
	switch x := args[0].(type) {
	case float64:
		return formatDouble(x)
	case int64:
		return formatDouble(float64(x))
	default:
		return nil
	}
}

// formatDouble renders f in the canonical xsd:double form, e.g. 1.5E3.
func formatDouble(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "INF"
	case math.IsInf(f, -1):
		return "-INF"
	}
	mantissa, exponent, _ := strings.Cut(strconv.FormatFloat(f, 'E', -1, 64), "E")
	if !strings.Contains(mantissa, ".") {
		mantissa += ".0"
	}
	exp, err := strconv.Atoi(exponent)
	if err != nil {
		return mantissa + "E" + exponent
	}
	return mantissa + "E" + strconv.Itoa(exp)
}

// formatDecimal renders f as an xsd:decimal, always with a fraction part.
func formatDecimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// fnSubstr takes characters from a 1-based, rounded start position for
// an optional rounded length.
func fnSubstr(args []driver.Value) driver.Value {
	if len(args) < 2 || len(args) > 3 {
		return nil
	}
	s, ok := valueText(args[0])
	if !ok {
		return nil
	}
	start, ok := number(args[1])
	if !ok {
		return nil
	}
	first := math.Floor(start + 0.5)
	end := math.Inf(1)
	if len(args) == 3 {
		length, ok := number(args[2])
		if !ok {
			return nil
		}
		end = first + math.Floor(length+0.5)
	}

	var b strings.Builder
	pos := 1.0
	for _, r := range s {
		if pos >= first && pos < end {
			b.WriteRune(r)
		}
		pos++
	}
	return b.String()
}

func number(v driver.Value) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, !math.IsNaN(x)
	default:
		return 0, false
	}
}

func strBefore(a, b string) driver.Value {
	i := strings.Index(a, b)
	if i < 0 {
		return ""
	}
	return a[:i]
}

func strAfter(a, b string) driver.Value {
	i := strings.Index(a, b)
	if i < 0 {
		return ""
	}
	return a[i+len(b):]
}

var regexCache sync.Map

// compileRegex compiles pattern with the query flags i, s, m and x.
func compileRegex(pattern, flags string) (*regexp.Regexp, bool) {
	key := flags + "/" + pattern
	if re, ok := regexCache.Load(key); ok {
		return re.(*regexp.Regexp), true
	}

	var goFlags strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 's', 'm':
			goFlags.WriteRune(f)
		case 'x':
			pattern = stripRegexWhitespace(pattern)
		default:
			return nil, false
		}
	}
	if goFlags.Len() > 0 {
		pattern = "(?" + goFlags.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, false
	}
	regexCache.Store(key, re)
	return re, true
}

func stripRegexWhitespace(pattern string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, pattern)
}

func fnRegex(args []driver.Value) driver.Value {
	s, okS := valueText(args[0])
	pattern, okP := valueText(args[1])
	flags, okF := valueText(args[2])
	if !okS || !okP || !okF {
		return nil
	}
	re, ok := compileRegex(pattern, flags)
	if !ok {
		return nil
	}
	return boolValue(re.MatchString(s))
}

func fnReplace(args []driver.Value) driver.Value {
	s, okS := valueText(args[0])
	pattern, okP := valueText(args[1])
	replacement, okR := valueText(args[2])
	flags, okF := valueText(args[3])
	if !okS || !okP || !okR || !okF {
		return nil
	}
	re, ok := compileRegex(pattern, flags)
	if !ok {
		return nil
	}
	return re.ReplaceAllString(s, replacement)
}

// encodeForURI percent-encodes everything but unreserved characters.
func encodeForURI(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteString("%" + strings.ToUpper(strconv.FormatUint(uint64(c)>>4, 16)) + strings.ToUpper(strconv.FormatUint(uint64(c)&0xF, 16)))
	}
	return b.String()
}

// fnIRI resolves a reference against the base IRI. References that are
// not valid IRIs yield NULL.
func fnIRI(args []driver.Value) driver.Value {
	ref, ok := valueText(args[0])
	if !ok || !validIRI(ref) {
		return nil
	}
	base, _ := valueText(args[1])
	return resolveIRI(base, ref)
}

func resolveIRI(base, ref string) string {
	if base == "" {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil || refURL.IsAbs() {
		return ref
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// validIRI reports whether s can be written as an IRI reference.
func validIRI(s string) bool {
	for _, r := range s {
		if r <= 0x20 || strings.ContainsRune("<>\"{}|^`\\", r) {
			return false
		}
	}
	return true
}

package feed

import (
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"feedmirror/internal/payload"
)

var (
	retryFields    = []string{"retry_after", "cooldown", "wait_seconds"}
	retryMessageRe = regexp.MustCompile(`(\d+)\s*(?:s|sec|secondes?)`)
)

// RetryAfter extracts the remote wait hint of a throttled response, in
// whole seconds. Zero means no hint was found.
func RetryAfter(header http.Header, body []byte) int {
	if v := strings.TrimSpace(header.Get("Retry-After")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return atLeastOne(n)
		}
	}

	doc, err := payload.Decode(body)
	if err != nil || !doc.IsObject() {
		return 0
	}

	if n, ok := retryField(doc); ok {
		return n
	}

	errBlock, ok := doc.Get("error")
	if !ok || !errBlock.IsObject() {
		return 0
	}
	if n, ok := retryField(errBlock); ok {
		return n
	}

	msg := strings.ToLower(errBlock.GetString("message"))
	if m := retryMessageRe.FindStringSubmatch(msg); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return atLeastOne(n)
		}
	}
	return 0
}

func retryField(obj payload.Value) (int, bool) {
	for _, key := range retryFields {
		v, ok := obj.Get(key)
		if !ok {
			continue
		}
		if n, ok := seconds(v); ok {
			return n, true
		}
	}
	return 0, false
}

// seconds accepts numbers and digit strings; fractions round up.
func seconds(v payload.Value) (int, bool) {
	var f float64
	switch v.Kind() {
	case payload.KindNumber:
		num, _ := v.Num()
		parsed, err := num.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case payload.KindString:
		s, _ := v.Str()
		s = strings.TrimSpace(s)
		if s == "" || strings.Trim(s, "0123456789") != "" {
			return 0, false
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return 0, false
		}
		f = float64(parsed)
	default:
		return 0, false
	}
	return atLeastOne(int(math.Ceil(f))), true
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

package feed

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
		want   int
	}{
		{name: "header", header: "45", want: 45},
		{name: "header wins over body", header: "45", body: `{"retry_after": 10}`, want: 45},
		{name: "invalid header falls through", header: "soon", body: `{"cooldown": 12}`, want: 12},
		{name: "top level field", body: `{"retry_after": 20}`, want: 20},
		{name: "nested field", body: `{"error": {"wait_seconds": "15"}}`, want: 15},
		{name: "fraction rounds up", body: `{"retry_after": 2.2}`, want: 3},
		{name: "zero floored", body: `{"cooldown": 0}`, want: 1},
		{name: "message secondes", body: `{"error": {"message": "Cooldown actif: 30 secondes"}}`, want: 30},
		{name: "message short unit", body: `{"error": {"message": "Retry in 7s"}}`, want: 7},
		{name: "field before message", body: `{"error": {"message": "wait 30 sec", "cooldown": 5}}`, want: 5},
		{name: "absent", body: `{"error": {"message": "slow down"}}`, want: 0},
		{name: "not json", body: `too many requests`, want: 0},
		{name: "empty", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Retry-After", tt.header)
			}
			assert.Equal(t, tt.want, RetryAfter(header, []byte(tt.body)))
		})
	}
}

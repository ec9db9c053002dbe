package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPostJSONSendsHeadersAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("x-api-key", "secret")
	var out struct {
		Echo string `json:"echo"`
	}
	require.NoError(t, PostJSON(context.Background(), srv.Client(), "test", srv.URL, header, map[string]string{"q": "hola"}, &out))
	require.Equal(t, "hola", out.Echo)
}

func TestPostJSONStatusErrors(t *testing.T) {
	cases := map[string]struct {
		body string
		want string
	}{
		"nested": {`{"error":{"message":"quota exceeded"}}`, "test: status 429: quota exceeded"},
		"flat":   {`{"error":"model not found"}`, "test: status 429: model not found"},
		"raw":    {"  upstream down \n", "test: status 429: upstream down"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			var out map[string]any
			err := PostJSON(context.Background(), srv.Client(), "test", srv.URL, nil, struct{}{}, &out)
			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			require.EqualError(t, err, tc.want)
		})
	}
}

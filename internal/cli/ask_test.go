package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mfadhlan/selia/pkg/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runAskAgainst(t *testing.T, url, question string) (string, error) {
	t.Helper()

	oldServer := askServer
	askServer = url
	t.Cleanup(func() { askServer = oldServer })

	var out bytes.Buffer
	cmd := askCmd
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := runAsk(cmd, []string{question})
	return out.String(), err
}

func TestAsk(t *testing.T) {
	t.Run("should print the daemon answer", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/v1/chat", r.URL.Path)

			var req chat.Request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "what is selia", req.Question)

			json.NewEncoder(w).Encode(chat.Reply{Answer: "an orchestrator", ChatID: "c1", Iterations: 2})
		}))
		defer srv.Close()

		out, err := runAskAgainst(t, srv.URL, "what is selia")
		require.NoError(t, err)
		assert.Contains(t, out, "an orchestrator")
		assert.Contains(t, out, "c1")
	})

	t.Run("should surface daemon errors", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"error": "orchestration graph is not ready"})
		}))
		defer srv.Close()

		_, err := runAskAgainst(t, srv.URL, "anything")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "orchestration graph is not ready")
	})

	t.Run("should fail when the daemon is unreachable", func(t *testing.T) {
		_, err := runAskAgainst(t, "http://127.0.0.1:1", "anything")
		assert.ErrorContains(t, err, "failed to reach daemon")
	})
}

package report

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerError_Delivers(t *testing.T) {
	received := make(chan payload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var p payload
		require.NoError(t, json.Unmarshal(data, &p))
		received <- p
	}))
	defer server.Close()

	r := New(server.URL, nil)
	r.ServerError("/api/projects", http.StatusBadGateway, "github api returned 502")

	select {
	case p := <-received:
		assert.Equal(t, "github api returned 502", p.Content)
		assert.Equal(t, "/api/projects", p.Path)
		assert.Equal(t, http.StatusBadGateway, p.Status)
		assert.NotEmpty(t, p.Time)
	case <-time.After(2 * time.Second):
		t.Fatal("report never arrived")
	}
}

func TestServerError_DisabledWithoutURL(t *testing.T) {
	// Must not panic or block.
	r := New("", nil)
	r.ServerError("/api/projects", http.StatusInternalServerError, "boom")
}

func TestServerError_EndpointFailureIsSwallowed(t *testing.T) {
	calls := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls <- struct{}{}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	r := New(server.URL, nil)
	r.ServerError("/x", http.StatusInternalServerError, "boom")

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("report never attempted")
	}
}

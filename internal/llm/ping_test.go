package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
)

func TestPing(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      PingStatus
		connected bool
	}{
		{"online", http.StatusOK, PingOnline, true},
		{"unauthorized", http.StatusUnauthorized, PingAuthError, false},
		{"forbidden", http.StatusForbidden, PingAuthError, false},
		{"loading", http.StatusServiceUnavailable, PingLoading, false},
		{"other", http.StatusTeapot, PingAPIError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status == http.StatusOK {
					chatReply(w, ".", openai.Usage{})
					return
				}
				apiError(w, tt.status, "nope")
			}))
			defer server.Close()

			res := Ping(context.Background(), testRemote(t, server.URL, nil))
			if res.Status != tt.want || res.Connected != tt.connected {
				t.Errorf("Expected %s/%v, got %s/%v (%s)", tt.want, tt.connected, res.Status, res.Connected, res.Details)
			}
		})
	}
}

func TestPing_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	res := Ping(context.Background(), testRemote(t, url, nil))
	if res.Status != PingNetworkError {
		t.Errorf("Expected network-error, got %s (%s)", res.Status, res.Details)
	}
}

func TestPing_NoCredential(t *testing.T) {
	res := Ping(context.Background(), nil)
	if res.Status != PingConfiguredDemo || res.Connected {
		t.Errorf("Expected configured-demo, got %+v", res)
	}
}

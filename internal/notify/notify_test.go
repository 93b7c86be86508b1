package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	tokens []string
	err    error
}

func (s staticTokens) NotificationTokens(_ context.Context) ([]string, error) {
	return s.tokens, s.err
}

func quietLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestSendPostsTokenBatch(t *testing.T) {
	var got gatewayRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"results":[{"token":"a","success":true},{"token":"b","success":true}]}`))
	}))
	defer srv.Close()

	s := NewSender(srv.URL, time.Second, staticTokens{tokens: []string{"a", "b"}}, quietLog())
	ok := s.Send(context.Background(), "SQL Injection attack detected", "details")
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got.Tokens)
	assert.Equal(t, "SQL Injection attack detected", got.Title)
}

func TestSendSkipsWhenNoTokens(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	s := NewSender(srv.URL, time.Second, staticTokens{}, quietLog())
	assert.False(t, s.Send(context.Background(), "t", "b"))
	assert.False(t, called, "gateway should not be contacted without tokens")
}

func TestSendSurvivesGatewayFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewSender(srv.URL, time.Second, staticTokens{tokens: []string{"a"}}, quietLog())
	assert.False(t, s.Send(context.Background(), "t", "b"))
}

func TestSendReportsTokenSourceError(t *testing.T) {
	s := NewSender("http://unused", time.Second, staticTokens{err: errors.New("db down")}, quietLog())
	assert.False(t, s.Send(context.Background(), "t", "b"))
}

func TestAlertMessage(t *testing.T) {
	title, body := AlertMessage("Port Scan", "web-01", "192.168.1.5", "2026-08-28 10:00:00", 0.97)
	assert.Equal(t, "Port Scan attack detected", title)
	assert.Contains(t, body, "web-01 (192.168.1.5)")
	assert.Contains(t, body, "Port Scan")
	assert.Contains(t, body, "0.97")
}

package contest

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchOK(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"status":"OK","result":[
		{"id":2000,"name":"Codeforces Round 1","type":"CF","phase":"FINISHED","frozen":false,"durationSeconds":7200,"startTimeSeconds":1700000000,"relativeTimeSeconds":100},
		{"id":1999,"name":"ICPC Finals","type":"ICPC","phase":"BEFORE","frozen":true,"durationSeconds":18000,"startTimeSeconds":1800000000,"relativeTimeSeconds":-5}
	]}`)

	contests, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, contests, 2)
	assert.Equal(t, 2000, contests[0].Id)
	assert.Equal(t, "ICPC", contests[1].Type)
	assert.True(t, contests[1].Frozen)
	assert.Equal(t, int64(-5), contests[1].RelativeTimeSeconds)
}

func TestFetchEmptyResult(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"status":"OK"}`)

	contests, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, contests)
	assert.Empty(t, contests)
}

func TestFetchStatusFailure(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"status":"FAILED","comment":"Call limit exceeded"}`)

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "FAILED", statusErr.Status)
	assert.Equal(t, "Call limit exceeded", err.Error())
	assert.False(t, errors.Is(err, ErrTransport))
}

func TestFetchStatusFailureDefaultMessage(t *testing.T) {
	srv := serve(t, http.StatusOK, `{"status":"FAILED"}`)

	_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
	assert.EqualError(t, err, "Failed to fetch contests")
}

func TestFetchTransportFailures(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := serve(t, http.StatusBadGateway, `{"status":"OK","result":[]}`)
		_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("malformed json", func(t *testing.T) {
		srv := serve(t, http.StatusOK, `<html>maintenance</html>`)
		_, err := NewClient(srv.URL, time.Second).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("unreachable", func(t *testing.T) {
		srv := serve(t, http.StatusOK, `{}`)
		url := srv.URL
		srv.Close()
		_, err := NewClient(url, time.Second).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer srv.Close()
		_, err := NewClient(srv.URL, 50*time.Millisecond).Fetch(context.Background())
		assert.ErrorIs(t, err, ErrTransport)
	})
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient("", 0)
	assert.Equal(t, DefaultURL, c.URL())
	assert.Equal(t, DefaultTimeout, c.Timeout())

	assert.Equal(t, 30*time.Second, NewClient("", 30*time.Second).Timeout())
}

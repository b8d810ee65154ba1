package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status", r.URL.Path)
		w.Write([]byte(`{"busy":true,"matempty":false,"current_job":"cube"}`))
	}))
	defer srv.Close()

	st, err := New(srv.URL+"/", srv.Client(), nil).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Busy)
	assert.Equal(t, "cube", st.CurrentJob)
}

func TestPrint_EncodesBlueprint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		raw, err := base64.StdEncoding.DecodeString(body["blueprint"])
		require.NoError(t, err)
		assert.Equal(t, "bp-bytes", string(raw))
		assert.Equal(t, "cube", body["title"])
		w.Write([]byte(`{"success":true,"job_id":"j1","part_id":3}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, srv.Client(), nil).Print(context.Background(), "cube", strings.NewReader("bp-bytes"))
	require.NoError(t, err)
	assert.Equal(t, Result{Success: true, JobID: "j1", PartID: 3}, res)
}

func TestPrint_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"success":false,"reason":"fabpanel: no free printhead"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client(), nil).PrintNamed(context.Background(), "modell", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRejected))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "fabpanel: no free printhead", apiErr.Reason)
}

func TestBenchmark_BadRequestIsNotRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalidrequest"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, srv.Client(), nil).Benchmark(context.Background(), 5)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRejected))
	assert.Contains(t, err.Error(), "invalidrequest")
}

// roundTripFunc adapts a function to HTTPClient.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

func TestTransportError(t *testing.T) {
	c := New("http://panel", roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("dial refused")
	}), nil)

	_, err := c.Parts(context.Background())
	assert.ErrorContains(t, err, "dial refused")
}

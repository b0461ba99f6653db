package vdb

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalPreservesNonFinite(t *testing.T) {
	payload := map[string]any{
		"vector": WireVector([]float32{
			1.5,
			float32(math.NaN()),
			float32(math.Inf(1)),
			float32(math.Inf(-1)),
			0,
		}),
	}

	raw, err := Marshal(payload)
	require.NoError(t, err)

	assert.Equal(t, `{"vector":[1.5,NaN,Infinity,-Infinity,0]}`, string(raw))
}

func TestMarshalFiniteStaysValidJSON(t *testing.T) {
	raw, err := Marshal(map[string]any{"vector": WireVector([]float32{0.25, -3})})
	require.NoError(t, err)
	assert.JSONEq(t, `{"vector":[0.25,-3]}`, string(raw))
}

func TestGraphQLVector(t *testing.T) {
	got := GraphQLVector([]float32{0.5, float32(math.NaN()), float32(math.Inf(1)), float32(math.Inf(-1))})
	assert.Equal(t, "[0.5,NaN,Infinity,-Infinity]", got)

	assert.Equal(t, "[]", GraphQLVector(nil))
}

func TestClientDoSendsRawTokens(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	defer c.Close()

	resp, err := c.Do(context.Background(), http.MethodPost, "/points", map[string]any{
		"vector": WireVector([]float32{float32(math.NaN())}),
	})
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Contains(t, string(received), "NaN")
}

func TestClientDoPreservesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"vector dimension mismatch: expected 8, got 3"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	defer c.Close()

	resp, err := c.Do(context.Background(), http.MethodPost, "/insert", nil)
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Status)
	assert.Contains(t, string(resp.Body), "dimension mismatch")
}

func TestClassify(t *testing.T) {
	t.Run("deadline becomes timeout", func(t *testing.T) {
		e := Classify("qdrant", "search", context.DeadlineExceeded)
		assert.Equal(t, KindTimeout, e.Kind)
		assert.True(t, IsTimeout(e))
	})

	t.Run("refused connection stays connection", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		c := NewClient("http://127.0.0.1:1")
		defer c.Close()
		_, err := c.Do(ctx, http.MethodGet, "/", nil)
		require.Error(t, err)

		e := Classify("qdrant", "health", err)
		assert.Contains(t, []Kind{KindConnection, KindTimeout}, e.Kind)
	})
}

func TestKindOf(t *testing.T) {
	svc := &Error{Service: "milvus", Op: "insert", Kind: KindService, Status: 400, Body: "bad vector"}
	assert.Equal(t, KindService, KindOf(svc))
	assert.Equal(t, KindService, KindOf(errors.Join(errors.New("wrapped"), svc)))
	assert.Equal(t, KindProtocol, KindOf(errors.New("mystery")))
}

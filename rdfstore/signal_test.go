package rdfstore

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopSink_Emit(t *testing.T) {
	var s NoopSink
	assert.NoError(t, s.Emit(context.Background(), "graphs", map[string]interface{}{"type": "created"}))
}

type recordingSink struct {
	calls []string
	err   error
}

func (r *recordingSink) Emit(ctx context.Context, channel string, payload map[string]interface{}) error {
	r.calls = append(r.calls, channel)
	return r.err
}

func TestMultiSink_FansOutToAll(t *testing.T) {
	a := &recordingSink{}
	b := &recordingSink{}
	m := MultiSink{Sinks: []Sink{a, b}}

	err := m.Emit(context.Background(), "graph", map[string]interface{}{"type": "created"})
	require.NoError(t, err)
	assert.Equal(t, []string{"graph"}, a.calls)
	assert.Equal(t, []string{"graph"}, b.calls)
}

func TestMultiSink_ContinuesPastIndividualFailure(t *testing.T) {
	failing := &recordingSink{err: errors.New("boom")}
	healthy := &recordingSink{}
	m := MultiSink{Sinks: []Sink{failing, healthy}}

	err := m.Emit(context.Background(), "graph", nil)
	assert.Error(t, err, "the first error is surfaced")
	assert.Equal(t, []string{"graph"}, healthy.calls, "a failing sink must not stop the others from being called")
}

func TestRedisSink_PublishesJSONPayload(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx := context.Background()
	subscriber := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer subscriber.Close()
	psub := subscriber.Subscribe(ctx, "rdfstore:graph")
	defer psub.Close()
	_, err = psub.Receive(ctx) // consume the subscribe confirmation
	require.NoError(t, err)

	sink, err := NewRedisSink(ctx, RedisSinkConfig{
		RedisURL: "redis://" + mr.Addr() + "/0",
		Prefix:   "rdfstore:",
	})
	require.NoError(t, err)
	defer sink.Close()

	err = sink.Emit(ctx, "graph", map[string]interface{}{"type": "created", "graph_uri": "http://ex/g"})
	require.NoError(t, err)

	msg, err := psub.ReceiveMessage(ctx)
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, "http://ex/g")
}

func TestRedisSink_EmitSwallowsPublishFailure(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	sink, err := NewRedisSink(context.Background(), RedisSinkConfig{RedisURL: "redis://" + mr.Addr() + "/0"})
	require.NoError(t, err)
	defer sink.Close()

	mr.Close() // backend now unreachable

	err = sink.Emit(context.Background(), "graph", map[string]interface{}{"type": "created"})
	assert.NoError(t, err, "a dead signal backend must never fail the caller's data-path operation")
}

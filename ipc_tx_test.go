package main

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"bmu-service/bmu"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { client.Close() })
	return s, client
}

func newQuietLogger() *LeveledLogger {
	return NewLeveledLogger(log.New(io.Discard, "", 0), LogLevelDebug)
}

func testReport(reason bmu.EmitReason) bmu.Report {
	return bmu.Report{
		Reason: reason,
		Status: bmu.SafetyStatus{
			SafeToDrive:      true,
			PrechargeEngaged: true,
			ContactorClosed:  true,
		},
		Snapshot: bmu.Snapshot{
			Transducers: []bmu.TransducerReading{
				{Current: 12000, VoltageMain: 60100, Temperature: 251},
				{Current: -3000, VoltageMain: 60050, Temperature: 249},
			},
		},
		State:            bmu.StateDriving,
		ContactorRequest: true,
		SendFailures:     3,
	}
}

func TestIPCTx_SendReport(t *testing.T) {
	s, client := newTestRedis(t)
	tx := NewIPCTx(newQuietLogger(), client, bmu.DefaultConfig().Transducers)

	require.NoError(t, tx.SendReport(testReport(bmu.EmitTick)))

	assert.Equal(t, "driving", s.HGet("bmu", "state"))
	assert.Equal(t, "yes", s.HGet("bmu", "safe-to-drive"))
	assert.Equal(t, "no", s.HGet("bmu", "charging"))
	assert.Equal(t, "on", s.HGet("bmu", "precharge"))
	assert.Equal(t, "off", s.HGet("bmu", "discharge"))
	assert.Equal(t, "on", s.HGet("bmu", "contactor"))
	assert.Equal(t, "on", s.HGet("bmu", "contactor-request"))
	assert.Equal(t, "3", s.HGet("bmu", "send-failures"))

	assert.Equal(t, "12000", s.HGet("bmu", "front:current"))
	assert.Equal(t, "60100", s.HGet("bmu", "front:voltage"))
	assert.Equal(t, "251", s.HGet("bmu", "front:temperature"))
	assert.Equal(t, "-3000", s.HGet("bmu", "rear:current"))
}

func TestIPCTx_PublishesOnChangeOnly(t *testing.T) {
	_, client := newTestRedis(t)
	tx := NewIPCTx(newQuietLogger(), client, bmu.DefaultConfig().Transducers)

	ctx := context.Background()
	sub := client.Subscribe(ctx, "bmu")
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	msgs := sub.Channel()

	require.NoError(t, tx.SendReport(testReport(bmu.EmitTick)))
	require.NoError(t, tx.SendReport(testReport(bmu.EmitChange)))

	select {
	case msg := <-msgs:
		assert.Equal(t, "status", msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("expected a status notification")
	}

	select {
	case msg := <-msgs:
		t.Fatalf("unexpected second notification: %v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestIPCTx_RedisDown(t *testing.T) {
	s, client := newTestRedis(t)
	tx := NewIPCTx(newQuietLogger(), client, bmu.DefaultConfig().Transducers)
	s.Close()

	assert.Error(t, tx.SendReport(testReport(bmu.EmitChange)))
}

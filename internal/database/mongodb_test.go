package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectWithRetry_GivesUp(t *testing.T) {
	start := time.Now()
	_, err := ConnectWithRetry(context.Background(), "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=50",
		100*time.Millisecond, Retry{Attempts: 2, Backoff: 10 * time.Millisecond})
	require.Error(t, err)
	require.Contains(t, err.Error(), "after 2 attempts")
	require.Less(t, time.Since(start), 5*time.Second)
}

func TestConnectWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConnectWithRetry(ctx, "mongodb://127.0.0.1:1/?serverSelectionTimeoutMS=50",
		50*time.Millisecond, Retry{Attempts: 3, Backoff: time.Hour})
	require.Error(t, err)
}

func TestConnectMongo_BadURI(t *testing.T) {
	_, err := ConnectMongo(context.Background(), "not-a-uri", time.Second)
	require.Error(t, err)
}

package redis

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/felixgeelhaar/itinerary/domain/report"
	"github.com/felixgeelhaar/itinerary/infrastructure/storage/storetest"
)

func TestReportStore_Integration(t *testing.T) {
	addr := os.Getenv("ITINERARY_REDIS_ADDR")
	if addr == "" {
		t.Skip("ITINERARY_REDIS_ADDR not set")
	}

	storetest.Run(t, func(t *testing.T) report.Store {
		prefix := "itinerary-test:" + strings.ReplaceAll(t.Name(), "/", "_") + ":"
		store, err := NewReportStore(context.Background(), Config{Address: addr, KeyPrefix: prefix})
		if err != nil {
			t.Fatalf("NewReportStore() error = %v", err)
		}
		t.Cleanup(func() {
			ctx := context.Background()
			iter := store.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
			for iter.Next(ctx) {
				store.client.Del(ctx, iter.Val())
			}
			_ = store.Close()
		})
		return store
	})
}

func TestNewReportStore_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := NewReportStore(context.Background(), Config{Address: "127.0.0.1:1", MaxRetries: -1})
	if err == nil {
		t.Fatal("NewReportStore() error = nil, want connection failure")
	}
	if !errors.Is(err, report.ErrConnectionFailed) {
		t.Errorf("error = %v, want ErrConnectionFailed", err)
	}
}

package transcript

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("VOICEASSIST_TEST_REDIS")
	if addr == "" {
		t.Skip("VOICEASSIST_TEST_REDIS not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	store := NewRedisStore(client, "voiceassist:test:", time.Minute)
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	sessionID := uuid.NewString()
	var b Buffer
	b.Append(RoleUser, "Hello")
	b.Append(RoleModel, "Hi")
	if err := store.Append(ctx, sessionID, b.Flush(time.UnixMilli(7))); err != nil {
		t.Fatalf("Append error: %v", err)
	}

	entries, err := store.Entries(ctx, sessionID)
	if err != nil {
		t.Fatalf("Entries error: %v", err)
	}
	if len(entries) != 2 || entries[0].Text != "Hello" || entries[1].ID != "7-m" {
		t.Errorf("entries = %+v", entries)
	}
}

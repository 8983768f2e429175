package redis

import (
	"context"
	"testing"
	"time"
)

func TestClientOptionsDefaults(t *testing.T) {
	opts, err := Options{Addr: " localhost:6379 ", DB: 2}.ClientOptions()
	if err != nil {
		t.Fatalf("client options: %v", err)
	}
	if opts.Addr != "localhost:6379" || opts.DB != 2 {
		t.Fatalf("opts = %+v", opts)
	}
	if opts.DialTimeout != 5*time.Second || opts.ReadTimeout != 3*time.Second || opts.WriteTimeout != 3*time.Second {
		t.Fatalf("timeouts = %s %s %s", opts.DialTimeout, opts.ReadTimeout, opts.WriteTimeout)
	}
}

func TestConnectRequiresAddr(t *testing.T) {
	if _, err := NewRedisClient(context.Background(), "  ", "", 0); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

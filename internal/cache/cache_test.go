package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lox/harvestcast/internal/logger"
)

func TestKey(t *testing.T) {
	base := Key(7, "dashboard", 3, 2020, 2024, 5)

	tests := []struct {
		name string
		key  string
		same bool
	}{
		{"identical", Key(7, "dashboard", 3, 2020, 2024, 5), true},
		{"other user", Key(8, "dashboard", 3, 2020, 2024, 5), false},
		{"other op", Key(7, "crop_year", 3, 2020, 2024, 5), false},
		{"new data version", Key(7, "dashboard", 4, 2020, 2024, 5), false},
		{"other params", Key(7, "dashboard", 3, 2020, 2024, 6), false},
	}
	for _, tt := range tests {
		if got := tt.key == base; got != tt.same {
			t.Errorf("%s: equal = %v, want %v", tt.name, got, tt.same)
		}
	}

	if !strings.HasPrefix(base, "harvestcast:7:dashboard:v3:") {
		t.Errorf("Key = %q", base)
	}
	if k := Key(1, "crop_year", 1, "Maize: white", 2023); strings.ContainsAny(k[len("harvestcast:1:crop_year:v1:"):], " :") {
		t.Errorf("param text leaked into key %q", k)
	}
}

func TestMemory(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	if _, ok, _ := m.Get(ctx, "missing"); ok {
		t.Fatal("hit on empty cache")
	}

	if err := m.Set(ctx, "a", []byte("one"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if err := m.Set(ctx, "b", []byte("two"), 0); err != nil {
		t.Fatal(err)
	}

	got, ok, err := m.Get(ctx, "a")
	if err != nil || !ok || string(got) != "one" {
		t.Fatalf("Get(a) = %q, %v, %v", got, ok, err)
	}
	got[0] = 'X'
	if again, _, _ := m.Get(ctx, "a"); string(again) != "one" {
		t.Errorf("cached value mutated through returned slice: %q", again)
	}

	now = now.Add(time.Minute)
	if _, ok, _ := m.Get(ctx, "a"); ok {
		t.Error("entry a should have expired")
	}
	if _, ok, _ := m.Get(ctx, "b"); !ok {
		t.Error("entry b without ttl expired")
	}
	if m.Len() != 1 {
		t.Errorf("Len = %d, want 1", m.Len())
	}
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("HARVESTCAST_TEST_REDIS")
	if addr == "" {
		t.Skip("HARVESTCAST_TEST_REDIS not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, addr, logger.Nop())
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer r.Close()

	key := Key(1, "test", time.Now().UnixNano())
	if _, ok, err := r.Get(ctx, key); err != nil || ok {
		t.Fatalf("Get before Set = %v, %v", ok, err)
	}
	if err := r.Set(ctx, key, []byte("value"), time.Minute); err != nil {
		t.Fatal(err)
	}
	got, ok, err := r.Get(ctx, key)
	if err != nil || !ok || string(got) != "value" {
		t.Errorf("Get = %q, %v, %v", got, ok, err)
	}
}

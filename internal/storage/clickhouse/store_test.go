package clickhouse

import (
	"sync"
	"testing"
)

func TestReserveIsMonotonic(t *testing.T) {
	s := &Store{}

	var mu sync.Mutex
	seen := make(map[uint64]bool)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				first := s.reserve(3)
				mu.Lock()
				for j := uint64(0); j < 3; j++ {
					if seen[first+j] {
						t.Errorf("sequence %d handed out twice", first+j)
					}
					seen[first+j] = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	a := s.reserve(1)
	b := s.reserve(1)
	if b <= a {
		t.Errorf("expected increasing sequence, got %d then %d", a, b)
	}
}

func TestOptionsFromHostPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "ch:9000"
	cfg.Password = "secret"

	opts, err := options(cfg)
	if err != nil {
		t.Fatalf("options failed: %v", err)
	}
	if len(opts.Addr) != 1 || opts.Addr[0] != "ch:9000" {
		t.Errorf("unexpected addr %v", opts.Addr)
	}
	if opts.Auth.Database != "default" || opts.Auth.Password != "secret" {
		t.Errorf("unexpected auth %+v", opts.Auth)
	}
	if opts.MaxOpenConns != 10 || opts.MaxIdleConns != 5 {
		t.Errorf("unexpected pool sizes %d/%d", opts.MaxOpenConns, opts.MaxIdleConns)
	}
	if opts.Settings["max_execution_time"] != 60 {
		t.Errorf("unexpected settings %v", opts.Settings)
	}
}

func TestOptionsFromDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "clickhouse://stats:pw@ch1:9000,ch2:9000/stattest?max_execution_time=5"

	opts, err := options(cfg)
	if err != nil {
		t.Fatalf("options failed: %v", err)
	}
	if len(opts.Addr) != 2 {
		t.Errorf("expected two hosts, got %v", opts.Addr)
	}
	if opts.Auth.Database != "stattest" || opts.Auth.Username != "stats" || opts.Auth.Password != "pw" {
		t.Errorf("unexpected auth %+v", opts.Auth)
	}
	if v, ok := opts.Settings["max_execution_time"]; !ok || v == 60 {
		t.Errorf("DSN setting should win, got %v", opts.Settings)
	}

	cfg.Addr = "clickhouse://ch:9000?dial_timeout=nonsense"
	if _, err := options(cfg); err == nil {
		t.Error("expected error for invalid DSN")
	}
}

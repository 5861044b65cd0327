package pgstore

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/hazyhaar/redflag/internal/storage"
	"github.com/hazyhaar/redflag/internal/storage/storagetest"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("REDFLAG_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("REDFLAG_TEST_POSTGRES_URL not set")
	}
	s, err := Open(url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := s.db.Exec(`TRUNCATE kv_rows`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return openTest(t)
	})
}

func TestWithLock_Serializes(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithLock(ctx, "summary", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()
				_, err := s.LoadTable(ctx, "T")
				mu.Lock()
				inside--
				mu.Unlock()
				return err
			})
			if err != nil {
				t.Errorf("WithLock: %v", err)
			}
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxSeen)
	}
}

func TestLockID_Stable(t *testing.T) {
	if lockID("summary") != lockID("summary") {
		t.Error("lockID not deterministic")
	}
	if lockID("summary") == lockID("other") {
		t.Error("lockID collision on distinct names")
	}
}

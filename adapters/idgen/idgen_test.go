package idgen_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nexastudio/creditmeter/adapters/idgen"
)

func TestUUID_New(t *testing.T) {
	gen := idgen.UUID{}
	id := gen.New()

	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("New() = %q is not a UUID: %v", id, err)
	}
	if parsed.Version() != 4 {
		t.Errorf("version = %d, want 4", parsed.Version())
	}
	if gen.New() == id {
		t.Error("successive IDs should differ")
	}
}

func TestSequential_New(t *testing.T) {
	gen := idgen.NewSequential("evt_")

	for _, want := range []string{"evt_1", "evt_2", "evt_3"} {
		if got := gen.New(); got != want {
			t.Errorf("New() = %q, want %q", got, want)
		}
	}
}

func TestSequential_Concurrent(t *testing.T) {
	gen := idgen.NewSequential("")
	seen := sync.Map{}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.New()
			if _, dup := seen.LoadOrStore(id, true); dup {
				t.Errorf("duplicate id %s", id)
			}
		}()
	}
	wg.Wait()
}

package registry

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prtline/sortation/core/model"
)

func TestResolveUnknown(t *testing.T) {
	r := New()
	if _, err := r.Resolve("0001"); !errors.Is(err, ErrUnknownCart) {
		t.Fatalf("expected ErrUnknownCart, got %v", err)
	}
}

func TestAssignResolve(t *testing.T) {
	r := New()
	r.Assign("0001", 2)
	dest, err := r.Resolve("0001")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if dest != 2 {
		t.Fatalf("dest = %d, want 2", dest)
	}
	// reassignment updates in place
	r.Assign("0001", 4)
	dest, _ = r.Resolve("0001")
	if dest != 4 {
		t.Fatalf("dest after reassign = %d, want 4", dest)
	}
}

func TestSnapshot(t *testing.T) {
	r := New()
	r.Load(map[string]model.Destination{"0001": 1, "0002": 2})
	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d", len(snap))
	}
	for _, c := range snap {
		if c.UpdatedAt.IsZero() {
			t.Errorf("cart %s has zero update time", c.Barcode)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		barcode := fmt.Sprintf("%04d", i)
		go func(b string, d model.Destination) {
			defer wg.Done()
			r.Assign(b, d)
		}(barcode, model.Destination(i%4+1))
		go func(b string) {
			defer wg.Done()
			_, _ = r.Resolve(b)
		}(barcode)
	}
	wg.Wait()
	for i := 0; i < 50; i++ {
		barcode := fmt.Sprintf("%04d", i)
		dest, err := r.Resolve(barcode)
		if err != nil {
			t.Fatalf("resolve %s: %v", barcode, err)
		}
		if want := model.Destination(i%4 + 1); dest != want {
			t.Errorf("dest %s = %d, want %d", barcode, dest, want)
		}
	}
}

func TestRouteTableGate(t *testing.T) {
	rt := DefaultRoutes()
	cases := []struct {
		dest   model.Destination
		sorter int
		want   model.Destination
	}{
		{1, 1, 3}, {1, 2, 2},
		{2, 1, 3}, {2, 2, 1},
		{3, 1, 1}, {3, 2, 3},
		{4, 1, 2}, {4, 2, 3},
		{0, 1, 0},  // straight through
		{9, 2, 0},  // removal area has no gate route
		{3, 99, 0}, // unknown sorter
	}
	for _, c := range cases {
		if got := rt.Gate(c.sorter, c.dest); got != c.want {
			t.Errorf("Gate(%d, %d) = %d, want %d", c.sorter, c.dest, got, c.want)
		}
	}
}

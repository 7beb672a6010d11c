package mempool

import (
	"fmt"
	"testing"
)

func TestRecencyAdmitsThenRejectsDuplicate(t *testing.T) {
	set := newRecencySet(4)

	if !set.Admit("0xaaa") {
		t.Fatal("first admit should succeed")
	}
	if set.Admit("0xaaa") {
		t.Fatal("duplicate admit should fail")
	}
	if set.Len() != 1 {
		t.Fatalf("len = %d, want 1", set.Len())
	}
}

func TestRecencyEvictsOldestAtCapacity(t *testing.T) {
	set := newRecencySet(3)
	for i := 0; i < 3; i++ {
		set.Admit(fmt.Sprintf("0x%02d", i))
	}

	if !set.Admit("0x03") {
		t.Fatal("admit at capacity should evict, not reject")
	}
	if set.Len() != 3 {
		t.Fatalf("len = %d, want 3", set.Len())
	}
	if !set.Admit("0x00") {
		t.Fatal("evicted hash should be admittable again")
	}
	if set.Admit("0x02") {
		t.Fatal("0x02 should still be tracked")
	}
}

func TestRecencyZeroCapacityFallsBack(t *testing.T) {
	set := newRecencySet(0)
	if !set.Admit("0xaaa") {
		t.Fatal("fallback capacity should admit")
	}
	if set.Admit("0xaaa") {
		t.Fatal("duplicate should still be rejected")
	}
}

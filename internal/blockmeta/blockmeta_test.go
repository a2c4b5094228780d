package blockmeta

import "testing"

func TestMergeEntriesDeduplicatesAndSorts(t *testing.T) {
	existing := []entry{{number: 1, timestamp: 100}, {number: 3, timestamp: 300}}
	fresh := []entry{{number: 2, timestamp: 200}, {number: 3, timestamp: 999}}

	got := mergeEntries(existing, fresh)

	want := []entry{{number: 1, timestamp: 100}, {number: 2, timestamp: 200}, {number: 3, timestamp: 300}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestCacheLookupMissAndHit(t *testing.T) {
	c := &Cache{entries: []entry{{number: 10, timestamp: 1000}, {number: 20, timestamp: 2000}}}

	if _, ok := c.lookup(15); ok {
		t.Fatalf("expected miss for block 15")
	}
	ts, ok := c.lookup(20)
	if !ok || ts != 2000 {
		t.Fatalf("lookup(20) = (%d, %v), want (2000, true)", ts, ok)
	}
}

package hotkeyownermap

import "testing"

func TestShouldRefreshOnFirstBlock(t *testing.T) {
	if !shouldRefresh(nil, map[string]struct{}{"a": {}}) {
		t.Fatal("expected refresh with no prior proof")
	}
}

func TestShouldRefreshWhenProofSetsDisjoint(t *testing.T) {
	last := map[string]struct{}{"a": {}, "b": {}}
	this := map[string]struct{}{"c": {}, "d": {}}
	if !shouldRefresh(last, this) {
		t.Fatal("expected refresh for disjoint proof sets")
	}
}

func TestShouldNotRefreshWhenProofSetsOverlap(t *testing.T) {
	last := map[string]struct{}{"a": {}, "b": {}}
	this := map[string]struct{}{"a": {}, "c": {}}
	if shouldRefresh(last, this) {
		t.Fatal("expected no refresh for overlapping proof sets")
	}
}

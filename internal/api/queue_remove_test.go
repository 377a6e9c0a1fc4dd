package api

import "testing"

type removeStub map[string]bool

func (s removeStub) RemoveItem(id string) bool {
	if s[id] {
		delete(s, id)
		return true
	}
	return false
}

func TestRemoveItemsByID(t *testing.T) {
	stub := removeStub{"1": true, "3": true}

	result := RemoveItemsByID(stub, []string{"1", "2", "3", "1"})
	if result.RemovedCount != 2 {
		t.Fatalf("RemovedCount = %d, want 2", result.RemovedCount)
	}
	want := []RemoveItemOutcome{RemoveItemRemoved, RemoveItemNotFound, RemoveItemRemoved, RemoveItemNotFound}
	for i, outcome := range want {
		if result.Items[i].Outcome != outcome {
			t.Fatalf("item %d outcome = %s, want %s", i, result.Items[i].Outcome, outcome)
		}
	}
}

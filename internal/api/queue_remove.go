package api

// RemoveService captures the session operation needed by per-item remove.
type RemoveService interface {
	RemoveItem(id string) bool
}

type RemoveItemOutcome string

const (
	RemoveItemRemoved  RemoveItemOutcome = "removed"
	RemoveItemNotFound RemoveItemOutcome = "not_found"
)

type RemoveItemResult struct {
	ID      string            `json:"id"`
	Outcome RemoveItemOutcome `json:"outcome"`
}

type RemoveItemsResult struct {
	RemovedCount int                `json:"removedCount"`
	Items        []RemoveItemResult `json:"items"`
}

// RemoveItemsByID removes items one-by-one so each id can report removed/not_found.
func RemoveItemsByID(service RemoveService, ids []string) RemoveItemsResult {
	result := RemoveItemsResult{Items: make([]RemoveItemResult, 0, len(ids))}
	for _, id := range ids {
		if service.RemoveItem(id) {
			result.RemovedCount++
			result.Items = append(result.Items, RemoveItemResult{ID: id, Outcome: RemoveItemRemoved})
			continue
		}
		result.Items = append(result.Items, RemoveItemResult{ID: id, Outcome: RemoveItemNotFound})
	}
	return result
}

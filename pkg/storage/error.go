package storage

// NotFoundError is returned when a turn doesn't exist in the store.
type NotFoundError struct {
	TurnID string
}

func (e NotFoundError) Error() string {
	if e.TurnID == "" {
		return "turn not found"
	}

	return "turn not found: " + e.TurnID
}

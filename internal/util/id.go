package util

import "github.com/google/uuid"

// NewID returns a time-ordered UUIDv7 string. Log job ids double as row ids,
// so ids minted here sort roughly by creation time in the log tables.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

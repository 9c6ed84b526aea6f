package service

import (
	"fmt"

	"github.com/Mentrauz/OpenRoll-sub000/internal/models"
)

// FieldChanges compares proposed values against an existing record over the
// watched key list and returns the entries whose stringified values differ.
// Output order follows the watched list; keys outside it are ignored.
// Absent values on either side compare as null. The comparison is
// deliberately string-based so stored and incoming representations of the
// same value (dates, numerics) line up without type-aware logic.
func FieldChanges(existing, proposed map[string]interface{}, watched []string) []models.FieldChange {
	changes := make([]models.FieldChange, 0, len(watched))
	for _, key := range watched {
		value, ok := proposed[key]
		if !ok || value == nil {
			continue
		}
		var current interface{}
		if existing != nil {
			current = existing[key]
		}
		if stringify(current) == stringify(value) {
			continue
		}
		changes = append(changes, models.FieldChange{Field: key, From: current, To: value})
	}
	return changes
}

func stringify(value interface{}) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprint(value)
}

package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFieldChangesOrderFollowsWatchedList(t *testing.T) {
	existing := map[string]interface{}{"name": "Asha", "designation": "Clerk", "basicPay": 18000.0}
	proposed := map[string]interface{}{"basicPay": 21000.0, "name": "Asha Rao", "designation": "Clerk"}

	changes := FieldChanges(existing, proposed, []string{"name", "designation", "basicPay"})
	require.Len(t, changes, 2)
	require.Equal(t, "name", changes[0].Field)
	require.Equal(t, "basicPay", changes[1].Field)
	require.Equal(t, "Asha", changes[0].From)
	require.Equal(t, "Asha Rao", changes[0].To)
}

func TestFieldChangesIgnoresUnwatchedKeys(t *testing.T) {
	existing := map[string]interface{}{"name": "Unit A"}
	proposed := map[string]interface{}{"name": "Unit B", "internalNote": "skip me"}

	changes := FieldChanges(existing, proposed, []string{"name"})
	require.Len(t, changes, 1)
	require.Equal(t, "name", changes[0].Field)
}

func TestFieldChangesNilExistingReportsAllProposed(t *testing.T) {
	proposed := map[string]interface{}{"name": "New Employee", "basicPay": 15000.0}

	changes := FieldChanges(nil, proposed, []string{"name", "basicPay"})
	require.Len(t, changes, 2)
	require.Nil(t, changes[0].From)
}

func TestFieldChangesStringifiedEqualityAcrossTypes(t *testing.T) {
	// JSON decode turns 20 into float64(20); stored snapshot may hold int.
	existing := map[string]interface{}{"daysPresent": 20}
	proposed := map[string]interface{}{"daysPresent": float64(20)}

	changes := FieldChanges(existing, proposed, []string{"daysPresent"})
	require.Empty(t, changes)
}

func TestFieldChangesSkipsAbsentAndNullProposed(t *testing.T) {
	existing := map[string]interface{}{"name": "Keep", "code": "U1"}
	proposed := map[string]interface{}{"code": nil}

	changes := FieldChanges(existing, proposed, []string{"name", "code"})
	require.Empty(t, changes)
}

func TestFieldChangesDeterministic(t *testing.T) {
	existing := map[string]interface{}{"a": 1, "b": 2, "c": 3}
	proposed := map[string]interface{}{"c": 30, "a": 10, "b": 20}
	watched := []string{"a", "b", "c"}

	first := FieldChanges(existing, proposed, watched)
	for i := 0; i < 20; i++ {
		require.Equal(t, first, FieldChanges(existing, proposed, watched))
	}
}

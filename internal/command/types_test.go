package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAction(t *testing.T) {
	for _, a := range AllActions() {
		got, err := ParseAction(string(a))
		assert.NoError(t, err)
		assert.Equal(t, a, got)
	}

	_, err := ParseAction("self_destruct")
	assert.ErrorIs(t, err, ErrInvalidAction)
	_, err = ParseAction("")
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("queued")
	assert.NoError(t, err)
	assert.Equal(t, StatusQueued, got)

	_, err = ParseStatus("lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusQueued, StatusDelivered, true},
		{StatusPending, StatusDelivered, true},
		{StatusDelivered, StatusExecuting, true},
		{StatusDelivered, StatusCompleted, true},
		{StatusExecuting, StatusFailed, true},
		{StatusQueued, StatusCompleted, true},
		{StatusDelivered, StatusQueued, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusCompleted, false},
		{StatusCompleted, StatusDelivered, false},
		{StatusExecuting, StatusDelivered, false},
		{StatusQueued, StatusPending, false},
		{Status("bogus"), StatusDelivered, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPredecessors(t *testing.T) {
	assert.ElementsMatch(t, []Status{StatusPending, StatusQueued}, predecessors(StatusDelivered))
	assert.ElementsMatch(t,
		[]Status{StatusPending, StatusQueued, StatusDelivered, StatusExecuting},
		predecessors(StatusFailed))
	assert.Empty(t, predecessors(StatusQueued))
}

func TestValidateParams(t *testing.T) {
	assert.NoError(t, ValidateParams(nil))
	assert.NoError(t, ValidateParams(json.RawMessage(`null`)))
	assert.NoError(t, ValidateParams(json.RawMessage(`{"threshold":-40}`)))
	assert.ErrorIs(t, ValidateParams(json.RawMessage(`[1,2]`)), ErrInvalidParams)
	assert.ErrorIs(t, ValidateParams(json.RawMessage(`"x"`)), ErrInvalidParams)
}

package workflow

import (
	"testing"

	"github.com/carelink/referral-core/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryStatusMapsToExactlyOneState(t *testing.T) {
	for _, status := range AllStatuses() {
		state, err := StateOf(status)
		require.NoError(t, err, "status %s", status)
		assert.Contains(t, []types.ClientState{
			types.StateProspective, types.StatePending,
			types.StateActive, types.StateInactive,
		}, state, "status %s", status)
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	_, err := StateOf("definitely_not_a_status")
	assert.True(t, types.IsCode(err, types.ErrCodeUnknownStatus))

	_, err = NextStatuses("definitely_not_a_status")
	assert.True(t, types.IsCode(err, types.ErrCodeUnknownStatus))
}

func TestTransitionTableCoversEveryStatus(t *testing.T) {
	for _, status := range AllStatuses() {
		_, err := NextStatuses(status)
		assert.NoError(t, err, "status %s has no transition entry", status)
	}
	assert.Len(t, statusTransitions, len(statusStates))
}

// Every edge in the status table must imply a legal state edge; this keeps
// the two tables from drifting apart.
func TestNoStatusEdgeImpliesIllegalStateJump(t *testing.T) {
	for from, targets := range statusTransitions {
		fromState, err := StateOf(from)
		require.NoError(t, err)

		for _, to := range targets {
			toState, err := StateOf(to)
			require.NoError(t, err)

			if fromState == toState {
				continue
			}
			assert.True(t, isLegalStateChange(fromState, toState),
				"edge %s→%s implies illegal state jump %s→%s", from, to, fromState, toState)
		}
	}
}

func TestNoProspectiveStatusReachesActiveDirectly(t *testing.T) {
	for from, targets := range statusTransitions {
		fromState, _ := StateOf(from)
		if fromState != types.StateProspective {
			continue
		}
		for _, to := range targets {
			toState, _ := StateOf(to)
			assert.NotEqual(t, types.StateActive, toState,
				"prospective status %s must not reach active status %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoExits(t *testing.T) {
	for _, status := range []types.WorkflowStatus{
		types.StatusDischarged,
		types.StatusReferredOut,
		types.StatusDeclined,
		types.StatusCancelled,
	} {
		assert.True(t, IsTerminal(status), "%s must be terminal", status)
		next, err := NextStatuses(status)
		require.NoError(t, err)
		assert.Empty(t, next)
	}
}

func TestInactiveStateHasNoExits(t *testing.T) {
	assert.Empty(t, stateTransitions[types.StateInactive])
}

func TestStatusCountMatchesDesign(t *testing.T) {
	assert.Len(t, AllStatuses(), 24)
}

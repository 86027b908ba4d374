package domain

import (
	"errors"
	"fmt"
)

// Clases de error. Los errores concretos envuelven una de estas con %w,
// así los adapters clasifican con errors.Is.
var (
	ErrValidation           = errors.New("validation error")
	ErrNotEligible          = errors.New("not eligible")
	ErrProvider             = errors.New("provider error")
	ErrConsistencyViolation = errors.New("consistency violation")
)

var (
	ErrAlreadyQueued          = fmt.Errorf("%w: already queued", ErrValidation)
	ErrInvalidRoleCombination = fmt.Errorf("%w: invalid role combination", ErrValidation)
	ErrQueueFull              = fmt.Errorf("%w: queue full", ErrValidation)
	ErrEntryTooLarge          = fmt.Errorf("%w: group larger than a team", ErrValidation)
	ErrMixedRegions           = fmt.Errorf("%w: group spans several regions", ErrValidation)
	ErrPendingInvites         = fmt.Errorf("%w: party has pending invites", ErrValidation)
	ErrInvalidTransition      = fmt.Errorf("%w: invalid lobby transition", ErrValidation)
	ErrUnknownMap             = fmt.Errorf("%w: unknown map", ErrValidation)
	ErrAlreadyMarked          = fmt.Errorf("%w: player already marked as leaver", ErrValidation)

	ErrBanned          = fmt.Errorf("%w: banned", ErrNotEligible)
	ErrNotInLobby      = fmt.Errorf("%w: player not in lobby", ErrNotEligible)
	ErrVotingClosed    = fmt.Errorf("%w: voting closed", ErrNotEligible)
	ErrNotHost         = fmt.Errorf("%w: only a host or admin can do that", ErrNotEligible)
	ErrAlreadyInLobby  = fmt.Errorf("%w: player already in an active lobby", ErrNotEligible)
	ErrLobbyNotFound   = fmt.Errorf("%w: lobby not found", ErrNotEligible)
	ErrNotRegistered   = fmt.Errorf("%w: player not registered", ErrNotEligible)
	ErrNotPartyLeader  = fmt.Errorf("%w: only the party leader can do that", ErrNotEligible)
	ErrNoInvitePending = fmt.Errorf("%w: no pending invite", ErrNotEligible)
	ErrNoPendingMark   = fmt.Errorf("%w: no pending leaver mark", ErrNotEligible)
)

// ProviderError describe un fallo del proveedor de canales/voz.
// Team es -1 cuando el fallo no es de un equipo concreto.
type ProviderError struct {
	Op   string
	Team int
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Team >= 0 {
		return fmt.Sprintf("provider %s (team %d): %v", e.Op, e.Team+1, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProvider, e.Err} }

package chatidentity

// UserStatus is the slice of the linked user the decision needs.
type UserStatus struct {
	Exists bool
	Active bool
}

// stateOf computes the link state from a stored identity (nil when no row
// exists) and the referenced user's status.
func stateOf(identity *Identity, user UserStatus) LinkState {
	switch {
	case identity == nil:
		return StateUnknown
	case identity.UserID == nil:
		return StateUnlinked
	case user.Exists && user.Active:
		return StateLinkedActive
	default:
		// A dangling or deactivated reference both read as inactive: the
		// identity stays linked but its interactions are denied.
		return StateLinkedInactive
	}
}

// Decide is the pure authorization function over an identity's state. It
// performs no reads or writes; interaction recording is a separate step that
// always happens first.
func Decide(identity *Identity, user UserStatus, strictMode bool) Decision {
	state := stateOf(identity, user)

	if identity != nil && identity.Blocked {
		return Decision{Allowed: false, Reason: ReasonBlocked, State: state}
	}

	switch state {
	case StateUnknown:
		if strictMode {
			return Decision{Allowed: false, Reason: ReasonUnknownUser, State: state}
		}
		return Decision{Allowed: true, Reason: ReasonOpenAccess, State: state}
	case StateUnlinked:
		if strictMode {
			return Decision{Allowed: false, Reason: ReasonNotLinked, State: state}
		}
		return Decision{Allowed: true, Reason: ReasonOpenAccess, State: state}
	case StateLinkedInactive:
		return Decision{Allowed: false, Reason: ReasonUserInactive, State: state, UserID: identity.UserID}
	default:
		return Decision{Allowed: true, Reason: ReasonLinkedActive, State: state, UserID: identity.UserID}
	}
}

package session

// State is the lock/unlock position of the session. It gates whether
// locally cached financial data may be shown.
type State int

const (
	// StateUnauthenticated means no usable credentials exist.
	StateUnauthenticated State = iota
	// StatePinSetup means credentials exist but no local PIN is configured.
	StatePinSetup
	// StateLocked means credentials exist and the vault is PIN/biometric locked.
	StateLocked
	// StateAuthenticated means the user may see cached data and issue calls.
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePinSetup:
		return "pinSetup"
	case StateLocked:
		return "locked"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Event is a session state-machine input.
type Event interface{ isSessionEvent() }

// LoginSucceeded fires after a login stored fresh tokens.
type LoginSucceeded struct{ HasPin bool }

// RegisterSucceeded fires after registration. Some backend variants
// return tokens immediately (auto-login); others require a subsequent
// login, in which case GotTokens is false and the state is unchanged.
type RegisterSucceeded struct {
	GotTokens bool
	HasPin    bool
}

// PinSaved fires once the user has configured a PIN.
type PinSaved struct{}

// Backgrounded fires when the app moves to background or cold-starts.
type Backgrounded struct{ HasRefreshToken bool }

// Unlocked fires after a correct PIN or a successful biometric challenge.
type Unlocked struct{}

// LoggedOut fires on explicit logout or irrecoverable refresh failure.
type LoggedOut struct{}

func (LoginSucceeded) isSessionEvent()    {}
func (RegisterSucceeded) isSessionEvent() {}
func (PinSaved) isSessionEvent()          {}
func (Backgrounded) isSessionEvent()      {}
func (Unlocked) isSessionEvent()          {}
func (LoggedOut) isSessionEvent()         {}

// Reduce is the pure transition function of the lock state machine.
// Side effects (token persistence, notifications) are applied by the
// caller after the transition.
func Reduce(s State, ev Event) State {
	switch ev := ev.(type) {
	case LoginSucceeded:
		if ev.HasPin {
			return StateAuthenticated
		}
		return StatePinSetup

	case RegisterSucceeded:
		if !ev.GotTokens {
			return s
		}
		if ev.HasPin {
			return StateAuthenticated
		}
		return StatePinSetup

	case PinSaved:
		if s == StatePinSetup {
			return StateAuthenticated
		}
		return s

	case Backgrounded:
		if s == StateUnauthenticated {
			return s
		}
		// Locked is reachable only while a refresh token exists.
		if ev.HasRefreshToken {
			return StateLocked
		}
		return StateUnauthenticated

	case Unlocked:
		if s == StateLocked {
			return StateAuthenticated
		}
		return s

	case LoggedOut:
		return StateUnauthenticated
	}
	return s
}

// InitialState derives the cold-start state: a stored refresh token
// implies an existing session that must be unlocked first.
func InitialState(hasRefreshToken bool) State {
	if hasRefreshToken {
		return StateLocked
	}
	return StateUnauthenticated
}

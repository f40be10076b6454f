// Package impersonation lets a platform super-user operate as a tenant user
// or tenant context for support and debugging, while preserving an auditable
// chain back to the real actor. The ephemeral state lives in the HTTP
// session and never outlives it.
package impersonation

import (
	"encoding/json"
	"errors"
	"time"

	"project-service/pkg/session"
)

// SessionKey is the session field holding the serialized state.
const SessionKey = "impersonation"

// State tags.
const (
	StateIdle          = "idle"
	StateImpersonating = "impersonating"
)

// State machine errors.
var (
	ErrAlreadyImpersonating = errors.New("impersonation session already active")
	ErrNotImpersonating     = errors.New("no impersonation session active")
)

// State is the tagged union serialized into the session store. Idle carries
// no fields; impersonating carries the full actor/target chain.
type State struct {
	State                  string    `json:"state"`
	OriginalSuperUserID    uint      `json:"original_super_user_id,omitempty"`
	OriginalSuperUserEmail string    `json:"original_super_user_email,omitempty"`
	ImpersonatedUserID     uint      `json:"impersonated_user_id,omitempty"`
	ImpersonatedUserEmail  string    `json:"impersonated_user_email,omitempty"`
	ImpersonatedRole       string    `json:"impersonated_role,omitempty"`
	ImpersonatedTenantID   uint      `json:"impersonated_tenant_id,omitempty"`
	StartedAt              time.Time `json:"started_at,omitempty"`
}

// Idle returns the idle state.
func Idle() State { return State{State: StateIdle} }

// IsImpersonating reports whether the state is the impersonating arm.
func (s State) IsImpersonating() bool { return s.State == StateImpersonating }

// transition is the single place legal state transitions are enforced:
// idle -> impersonating and impersonating -> idle, nothing else.
func transition(cur, next State) (State, error) {
	switch {
	case cur.IsImpersonating() && next.IsImpersonating():
		return cur, ErrAlreadyImpersonating
	case !cur.IsImpersonating() && !next.IsImpersonating():
		return cur, ErrNotImpersonating
	}
	return next, nil
}

// FromSession exposes the stored state to middleware that overlays the
// acting identity onto the request context.
func FromSession(sess *session.Session) (State, error) {
	return loadState(sess)
}

// loadState reads the state from the session. An absent field is idle; state
// is never reconstructed from any other source, so the stored state and the
// status view cannot diverge.
func loadState(sess *session.Session) (State, error) {
	raw, ok := sess.Get(SessionKey)
	if !ok || raw == "" {
		return Idle(), nil
	}
	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return Idle(), err
	}
	if st.State == "" {
		st.State = StateIdle
	}
	return st, nil
}

// saveState writes the state into the session. Idle deletes the field
// entirely, so an exited session holds no impersonation residue.
func saveState(sess *session.Session, st State) error {
	if !st.IsImpersonating() {
		sess.Delete(SessionKey)
		return nil
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	sess.Set(SessionKey, string(raw))
	return nil
}

// Package tenancy provides the assertion primitives every route and service
// calls before trusting tenant-scoped data. The assertions are centralized
// here, instead of ad hoc WHERE clauses in each handler, so every route opts
// into the same fail-fast contract and test runs can upgrade warnings to
// hard failures.
package tenancy

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"project-service/prometheus"
)

// Mode controls what happens on a recoverable tenancy violation. A
// cross-tenant mismatch is fatal in every mode.
type Mode string

const (
	ModeWarn  Mode = "warn"
	ModeThrow Mode = "throw"
	ModeOff   Mode = "off"
)

// ModeFromEnv reads TENANCY_GUARD_MODE on every call so a mode change takes
// effect on the next assertion without a restart.
func ModeFromEnv() Mode {
	switch os.Getenv("TENANCY_GUARD_MODE") {
	case "throw":
		return ModeThrow
	case "off":
		return ModeOff
	default:
		return ModeWarn
	}
}

// Sentinel errors. Handlers map these to HTTP status codes; the guard never
// writes to the response itself.
var (
	ErrTenantContextMissing = errors.New("tenant context missing")
	ErrCrossTenant          = errors.New("cross-tenant violation")
	ErrMissingTenantID      = errors.New("tenant id missing")
	ErrClientTenantID       = errors.New("client-supplied tenant id")
	ErrNotRoomMember        = errors.New("not a member of chat room")
)

// Violation kinds recorded in logs and metrics.
const (
	KindScopedRead     = "scoped_read"
	KindScopedWrite    = "scoped_write"
	KindInsert         = "insert"
	KindOwnership      = "ownership"
	KindClientTenantID = "client_tenant_id"
	KindChatRoom       = "chat_room"
	KindChatMembership = "chat_membership"
)

// ViolationError carries the details of a tenancy violation. It unwraps to
// one of the sentinel errors above.
type ViolationError struct {
	Kind       string
	EntityType string
	EntityID   uint
	Expected   uint
	Actual     *uint
	sentinel   error
}

func (e *ViolationError) Error() string {
	if e.Actual != nil {
		return fmt.Sprintf("tenancy violation (%s) on %s %d: entity tenant %d, expected tenant %d",
			e.Kind, e.EntityType, e.EntityID, *e.Actual, e.Expected)
	}
	return fmt.Sprintf("tenancy violation (%s) on %s %d: expected tenant %d",
		e.Kind, e.EntityType, e.EntityID, e.Expected)
}

func (e *ViolationError) Unwrap() error { return e.sentinel }

// Guard evaluates tenancy assertions. The mode function is injected so
// tests can pin a mode; the default reads the environment per call. Env is
// the APP_ENV value: "test" upgrades every warning to a hard failure so
// regressions surface during development without breaking production
// availability.
type Guard struct {
	mode func() Mode
	env  string
	log  *zap.Logger
}

// NewGuard constructs a Guard. A nil mode function falls back to ModeFromEnv.
func NewGuard(mode func() Mode, env string, log *zap.Logger) *Guard {
	if mode == nil {
		mode = ModeFromEnv
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Guard{mode: mode, env: env, log: log}
}

func (g *Guard) testing() bool { return g.env == "test" }

// reject records a fatal violation and returns it.
func (g *Guard) reject(v *ViolationError) error {
	prometheus.RecordTenancyViolation(v.Kind, "rejected")
	g.log.Error("tenancy violation", zap.String("kind", v.Kind),
		zap.String("entity_type", v.EntityType), zap.Uint("entity_id", v.EntityID),
		zap.Uint("expected_tenant_id", v.Expected))
	return v
}

// warnOrReject applies the mode rules to a recoverable violation: throw mode
// and test runs fail hard, off mode is silent, warn mode logs.
func (g *Guard) warnOrReject(v *ViolationError) error {
	if g.testing() || g.mode() == ModeThrow {
		return g.reject(v)
	}
	if g.mode() == ModeOff {
		return nil
	}
	prometheus.RecordTenancyViolation(v.Kind, "warned")
	g.log.Warn("tenancy violation (not enforced)", zap.String("kind", v.Kind),
		zap.String("entity_type", v.EntityType), zap.Uint("entity_id", v.EntityID),
		zap.Uint("expected_tenant_id", v.Expected))
	return nil
}

// RequireTenantContext returns the effective tenant id for the request.
// Absence is fatal for the request regardless of mode; the tenant id only
// ever originates from the authenticated session context.
func (g *Guard) RequireTenantContext(c echo.Context) (uint, error) {
	tenantID, ok := c.Get("tenant_id").(uint)
	if !ok || tenantID == 0 {
		prometheus.TenantContextMissingCounter.Inc()
		return 0, ErrTenantContextMissing
	}
	return tenantID, nil
}

// AssertTenantIDOnInsert signals a violation if an insert payload is not
// tenant-scoped. Behavior is mode-dependent: throw rejects the write, warn
// logs in development and fails in test runs.
func (g *Guard) AssertTenantIDOnInsert(tenantID uint, table string) error {
	if tenantID != 0 {
		return nil
	}
	return g.warnOrReject(&ViolationError{
		Kind:       KindInsert,
		EntityType: table,
		sentinel:   ErrMissingTenantID,
	})
}

// AssertScopedRead verifies an entity read against the effective tenant. A
// null entity tenant id is a data-integrity issue (mode-dependent); a
// mismatch is a cross-tenant leak and always fatal.
func (g *Guard) AssertScopedRead(entityTenantID *uint, expected uint, entityType string, entityID uint) error {
	if entityTenantID == nil || *entityTenantID == 0 {
		return g.warnOrReject(&ViolationError{
			Kind:       KindScopedRead,
			EntityType: entityType,
			EntityID:   entityID,
			Expected:   expected,
			sentinel:   ErrMissingTenantID,
		})
	}
	if *entityTenantID != expected {
		return g.reject(&ViolationError{
			Kind:       KindScopedRead,
			EntityType: entityType,
			EntityID:   entityID,
			Expected:   expected,
			Actual:     entityTenantID,
			sentinel:   ErrCrossTenant,
		})
	}
	return nil
}

// AssertScopedWrite mirrors AssertScopedRead for write payloads.
func (g *Guard) AssertScopedWrite(payloadTenantID uint, expected uint, table string) error {
	if payloadTenantID == 0 {
		return g.warnOrReject(&ViolationError{
			Kind:       KindScopedWrite,
			EntityType: table,
			Expected:   expected,
			sentinel:   ErrMissingTenantID,
		})
	}
	if payloadTenantID != expected {
		actual := payloadTenantID
		return g.reject(&ViolationError{
			Kind:       KindScopedWrite,
			EntityType: table,
			Expected:   expected,
			Actual:     &actual,
			sentinel:   ErrCrossTenant,
		})
	}
	return nil
}

// AssertOwnership is the always-fatal check used immediately before update
// and delete operations.
func (g *Guard) AssertOwnership(entityTenantID uint, expected uint, entityType string, entityID uint) error {
	if entityTenantID == expected && entityTenantID != 0 {
		return nil
	}
	var actual *uint
	if entityTenantID != 0 {
		actual = &entityTenantID
	}
	return g.reject(&ViolationError{
		Kind:       KindOwnership,
		EntityType: entityType,
		EntityID:   entityID,
		Expected:   expected,
		Actual:     actual,
		sentinel:   ErrCrossTenant,
	})
}

// clientTenantIDKeys are the payload field names a client could use to smuggle
// a tenant id.
var clientTenantIDKeys = []string{"tenant_id", "tenantId", "tenantID"}

// AssertNoClientTenantID detects client-supplied tenant id fields in the
// request body or query. Tenant id must only ever originate from the
// authenticated session, never attacker-controlled input. Hard failure in
// test runs and throw mode; a logged warning otherwise.
func (g *Guard) AssertNoClientTenantID(body map[string]interface{}, query url.Values) error {
	found := ""
	for _, key := range clientTenantIDKeys {
		if _, ok := body[key]; ok {
			found = "body." + key
			break
		}
		if query.Has(key) {
			found = "query." + key
			break
		}
	}
	if found == "" {
		return nil
	}
	v := &ViolationError{
		Kind:       KindClientTenantID,
		EntityType: found,
		sentinel:   ErrClientTenantID,
	}
	if g.testing() || g.mode() == ModeThrow {
		return g.reject(v)
	}
	if g.mode() == ModeOff {
		return nil
	}
	prometheus.RecordTenancyViolation(v.Kind, "warned")
	g.log.Warn("client-supplied tenant id ignored", zap.String("field", found))
	return nil
}

// AssertScopedRoom verifies a chat room belongs to the effective tenant.
// Mismatch is always fatal; it would expose another tenant's messages.
func (g *Guard) AssertScopedRoom(roomTenantID uint, expected uint, roomID uint) error {
	if roomTenantID == expected && roomTenantID != 0 {
		return nil
	}
	var actual *uint
	if roomTenantID != 0 {
		actual = &roomTenantID
	}
	return g.reject(&ViolationError{
		Kind:       KindChatRoom,
		EntityType: "chat_room",
		EntityID:   roomID,
		Expected:   expected,
		Actual:     actual,
		sentinel:   ErrCrossTenant,
	})
}

// AssertChatMembership rejects message reads/writes by non-members. Always
// fatal.
func (g *Guard) AssertChatMembership(isMember bool, roomID, userID uint) error {
	if isMember {
		return nil
	}
	prometheus.RecordTenancyViolation(KindChatMembership, "rejected")
	g.log.Warn("chat membership rejected", zap.Uint("room_id", roomID), zap.Uint("user_id", userID))
	return ErrNotRoomMember
}

// RoomName derives the wire-level room name from the tenant and room id.
// Every subscribe and publish goes through this name, so a room can never
// span tenants.
func RoomName(tenantID, roomID uint) string {
	return fmt.Sprintf("tenant:%d:room:%d", tenantID, roomID)
}

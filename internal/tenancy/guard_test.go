package tenancy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func fixedMode(m Mode) func() Mode {
	return func() Mode { return m }
}

func testContext(t *testing.T) echo.Context {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec)
}

func TestRequireTenantContext(t *testing.T) {
	g := NewGuard(fixedMode(ModeWarn), "development", nil)

	c := testContext(t)
	if _, err := g.RequireTenantContext(c); !errors.Is(err, ErrTenantContextMissing) {
		t.Fatalf("expected ErrTenantContextMissing, got %v", err)
	}

	c.Set("tenant_id", uint(7))
	id, err := g.RequireTenantContext(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 7 {
		t.Fatalf("expected tenant 7, got %d", id)
	}
}

func TestRequireTenantContextZeroIsMissing(t *testing.T) {
	g := NewGuard(fixedMode(ModeOff), "development", nil)
	c := testContext(t)
	c.Set("tenant_id", uint(0))
	if _, err := g.RequireTenantContext(c); !errors.Is(err, ErrTenantContextMissing) {
		t.Fatalf("expected ErrTenantContextMissing for zero tenant, got %v", err)
	}
}

func TestAssertScopedReadMismatchAlwaysFatal(t *testing.T) {
	other := uint(2)
	for _, mode := range []Mode{ModeWarn, ModeThrow, ModeOff} {
		g := NewGuard(fixedMode(mode), "development", nil)
		err := g.AssertScopedRead(&other, 1, "project", 10)
		if !errors.Is(err, ErrCrossTenant) {
			t.Fatalf("mode %s: expected ErrCrossTenant, got %v", mode, err)
		}
	}
}

func TestAssertScopedReadMissingTenantID(t *testing.T) {
	zero := uint(0)
	tests := []struct {
		name    string
		mode    Mode
		env     string
		wantErr bool
	}{
		{"warn in development logs only", ModeWarn, "development", false},
		{"warn in test fails hard", ModeWarn, "test", true},
		{"throw fails hard", ModeThrow, "development", true},
		{"off is silent", ModeOff, "development", false},
		{"off in test still fails", ModeOff, "test", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(fixedMode(tt.mode), tt.env, nil)
			err := g.AssertScopedRead(&zero, 1, "project", 10)
			if tt.wantErr {
				if !errors.Is(err, ErrMissingTenantID) {
					t.Fatalf("expected ErrMissingTenantID, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAssertScopedReadMatch(t *testing.T) {
	g := NewGuard(fixedMode(ModeThrow), "test", nil)
	id := uint(3)
	if err := g.AssertScopedRead(&id, 3, "task", 1); err != nil {
		t.Fatalf("matching tenant must pass: %v", err)
	}
}

func TestAssertScopedWrite(t *testing.T) {
	g := NewGuard(fixedMode(ModeThrow), "development", nil)

	if err := g.AssertScopedWrite(5, 5, "projects"); err != nil {
		t.Fatalf("matching tenant must pass: %v", err)
	}
	if err := g.AssertScopedWrite(6, 5, "projects"); !errors.Is(err, ErrCrossTenant) {
		t.Fatalf("expected ErrCrossTenant, got %v", err)
	}
	if err := g.AssertScopedWrite(0, 5, "projects"); !errors.Is(err, ErrMissingTenantID) {
		t.Fatalf("expected ErrMissingTenantID, got %v", err)
	}
}

func TestAssertTenantIDOnInsert(t *testing.T) {
	warn := NewGuard(fixedMode(ModeWarn), "development", nil)
	if err := warn.AssertTenantIDOnInsert(0, "tasks"); err != nil {
		t.Fatalf("warn mode must not reject: %v", err)
	}

	throw := NewGuard(fixedMode(ModeThrow), "development", nil)
	if err := throw.AssertTenantIDOnInsert(0, "tasks"); !errors.Is(err, ErrMissingTenantID) {
		t.Fatalf("expected ErrMissingTenantID, got %v", err)
	}
	if err := throw.AssertTenantIDOnInsert(9, "tasks"); err != nil {
		t.Fatalf("scoped insert must pass: %v", err)
	}
}

func TestAssertOwnershipAlwaysFatal(t *testing.T) {
	for _, mode := range []Mode{ModeWarn, ModeThrow, ModeOff} {
		g := NewGuard(fixedMode(mode), "development", nil)
		if err := g.AssertOwnership(2, 1, "project", 4); !errors.Is(err, ErrCrossTenant) {
			t.Fatalf("mode %s: expected ErrCrossTenant, got %v", mode, err)
		}
		if err := g.AssertOwnership(0, 1, "project", 4); !errors.Is(err, ErrCrossTenant) {
			t.Fatalf("mode %s: zero tenant must be fatal, got %v", mode, err)
		}
		if err := g.AssertOwnership(1, 1, "project", 4); err != nil {
			t.Fatalf("mode %s: owner must pass: %v", mode, err)
		}
	}
}

func TestAssertNoClientTenantID(t *testing.T) {
	tests := []struct {
		name    string
		mode    Mode
		env     string
		body    map[string]interface{}
		query   url.Values
		wantErr bool
	}{
		{"clean request passes", ModeThrow, "test", map[string]interface{}{"name": "x"}, url.Values{}, false},
		{"body tenant_id in throw", ModeThrow, "development", map[string]interface{}{"tenant_id": 3}, url.Values{}, true},
		{"body tenantId camel case", ModeThrow, "development", map[string]interface{}{"tenantId": 3}, url.Values{}, true},
		{"query tenant_id in test env", ModeWarn, "test", map[string]interface{}{}, url.Values{"tenant_id": {"3"}}, true},
		{"warn in development logs only", ModeWarn, "development", map[string]interface{}{"tenant_id": 3}, url.Values{}, false},
		{"off is silent", ModeOff, "development", map[string]interface{}{"tenant_id": 3}, url.Values{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGuard(fixedMode(tt.mode), tt.env, nil)
			err := g.AssertNoClientTenantID(tt.body, tt.query)
			if tt.wantErr {
				if !errors.Is(err, ErrClientTenantID) {
					t.Fatalf("expected ErrClientTenantID, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAssertScopedRoom(t *testing.T) {
	g := NewGuard(fixedMode(ModeOff), "development", nil)
	if err := g.AssertScopedRoom(1, 1, 8); err != nil {
		t.Fatalf("matching room must pass: %v", err)
	}
	if err := g.AssertScopedRoom(2, 1, 8); !errors.Is(err, ErrCrossTenant) {
		t.Fatalf("expected ErrCrossTenant even in off mode, got %v", err)
	}
}

func TestAssertChatMembership(t *testing.T) {
	g := NewGuard(fixedMode(ModeWarn), "development", nil)
	if err := g.AssertChatMembership(true, 1, 2); err != nil {
		t.Fatalf("member must pass: %v", err)
	}
	if err := g.AssertChatMembership(false, 1, 2); !errors.Is(err, ErrNotRoomMember) {
		t.Fatalf("expected ErrNotRoomMember, got %v", err)
	}
}

func TestRoomName(t *testing.T) {
	if got := RoomName(4, 17); got != "tenant:4:room:17" {
		t.Fatalf("unexpected room name %q", got)
	}
}

func TestModeFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  Mode
	}{
		{"throw", ModeThrow},
		{"off", ModeOff},
		{"warn", ModeWarn},
		{"", ModeWarn},
		{"garbage", ModeWarn},
	}
	for _, tt := range tests {
		t.Setenv("TENANCY_GUARD_MODE", tt.value)
		if got := ModeFromEnv(); got != tt.want {
			t.Fatalf("TENANCY_GUARD_MODE=%q: expected %s, got %s", tt.value, tt.want, got)
		}
	}
}

func TestViolationErrorMessage(t *testing.T) {
	actual := uint(9)
	v := &ViolationError{
		Kind:       KindScopedRead,
		EntityType: "project",
		EntityID:   3,
		Expected:   1,
		Actual:     &actual,
		sentinel:   ErrCrossTenant,
	}
	msg := v.Error()
	if msg == "" {
		t.Fatal("empty violation message")
	}
	if !errors.Is(v, ErrCrossTenant) {
		t.Fatal("violation must unwrap to its sentinel")
	}
}

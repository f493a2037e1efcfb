package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperr "dinesync/internal/xpkg/errors"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

const testSecret = "test-secret"

type fakeAPI struct {
	session   *models.Session
	startErr  error
	endCalled bool
}

func (f *fakeAPI) StartSession(ctx context.Context, tableID int) (*models.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	s := *f.session
	s.TableID = tableID
	return &s, nil
}

func (f *fakeAPI) EndSession(ctx context.Context) error {
	f.endCalled = true
	return nil
}

func newTestStore(api API) *Store {
	s := New(testSecret, logger.NewLogger("test"))
	if api != nil {
		s.AttachAPI(api)
	}
	return s
}

func signStaffToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestStartCustomer(t *testing.T) {
	api := &fakeAPI{session: &models.Session{ID: 3, SessionToken: "sess-token"}}
	store := newTestStore(api)

	sess, err := store.StartCustomer(context.Background(), 12)
	if err != nil {
		t.Fatalf("StartCustomer: %v", err)
	}
	if sess.TableID != 12 {
		t.Fatalf("table = %d, want 12", sess.TableID)
	}
	if store.Token() != "sess-token" {
		t.Fatalf("token = %q, want sess-token", store.Token())
	}

	key, ok := store.IdentityKey()
	if !ok {
		t.Fatal("identity must be active")
	}
	if key.Role != models.RoleCustomer || key.TableID != 12 {
		t.Fatalf("unexpected identity key %+v", key)
	}
}

func TestStartCustomerWithoutAPI(t *testing.T) {
	store := newTestStore(nil)
	if _, err := store.StartCustomer(context.Background(), 1); !errors.Is(err, apperr.ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
}

func TestStartCustomerPropagatesError(t *testing.T) {
	api := &fakeAPI{startErr: apperr.ErrServer}
	store := newTestStore(api)

	if _, err := store.StartCustomer(context.Background(), 1); !errors.Is(err, apperr.ErrServer) {
		t.Fatalf("err = %v, want ErrServer", err)
	}
	if store.Active() {
		t.Fatal("failed start must leave no identity")
	}
}

func TestLoginStaff(t *testing.T) {
	store := newTestStore(nil)
	token := signStaffToken(t, testSecret, jwt.MapClaims{
		"staff_id": 7,
		"name":     "Aruzhan",
		"role":     "waiter",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	identity, err := store.LoginStaff(token)
	if err != nil {
		t.Fatalf("LoginStaff: %v", err)
	}
	if identity.ID != 7 || identity.Name != "Aruzhan" || identity.Role != "waiter" {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if store.Token() != token {
		t.Fatal("staff token must be used for REST requests")
	}

	key, ok := store.IdentityKey()
	if !ok || key.Role != models.RoleStaff || key.StaffID != 7 {
		t.Fatalf("unexpected identity key %+v (active=%v)", key, ok)
	}
}

func TestLoginStaffRejectsBadSignature(t *testing.T) {
	store := newTestStore(nil)
	token := signStaffToken(t, "wrong-secret", jwt.MapClaims{"staff_id": 7})

	if _, err := store.LoginStaff(token); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	if store.Active() {
		t.Fatal("rejected login must leave no identity")
	}
}

func TestLoginStaffRequiresStaffID(t *testing.T) {
	store := newTestStore(nil)
	token := signStaffToken(t, testSecret, jwt.MapClaims{"name": "nobody"})

	if _, err := store.LoginStaff(token); !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
}

func TestStaffLoginReplacesCustomerSession(t *testing.T) {
	api := &fakeAPI{session: &models.Session{ID: 1, SessionToken: "cust"}}
	store := newTestStore(api)
	if _, err := store.StartCustomer(context.Background(), 4); err != nil {
		t.Fatalf("StartCustomer: %v", err)
	}

	token := signStaffToken(t, testSecret, jwt.MapClaims{"staff_id": 2})
	if _, err := store.LoginStaff(token); err != nil {
		t.Fatalf("LoginStaff: %v", err)
	}

	key, _ := store.IdentityKey()
	if key.Role != models.RoleStaff {
		t.Fatalf("role = %s, want staff", key.Role)
	}
}

func TestEndClosesCustomerSession(t *testing.T) {
	api := &fakeAPI{session: &models.Session{ID: 1, SessionToken: "cust"}}
	store := newTestStore(api)
	if _, err := store.StartCustomer(context.Background(), 4); err != nil {
		t.Fatalf("StartCustomer: %v", err)
	}

	if err := store.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}
	if !api.endCalled {
		t.Fatal("customer End must hit the server")
	}
	if store.Active() || store.Token() != "" {
		t.Fatal("End must clear local identity")
	}
}

func TestEndSkipsServerForStaff(t *testing.T) {
	api := &fakeAPI{}
	store := newTestStore(api)
	token := signStaffToken(t, testSecret, jwt.MapClaims{"staff_id": 2})
	if _, err := store.LoginStaff(token); err != nil {
		t.Fatalf("LoginStaff: %v", err)
	}

	if err := store.End(context.Background()); err != nil {
		t.Fatalf("End: %v", err)
	}
	if api.endCalled {
		t.Fatal("staff End must not call the customer session endpoint")
	}
}

func TestClearIsIdempotent(t *testing.T) {
	store := newTestStore(nil)
	store.Clear()
	store.Clear()
	if store.Active() {
		t.Fatal("cleared store reports active identity")
	}
}

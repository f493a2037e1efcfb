package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	apperr "dinesync/internal/xpkg/errors"
	"dinesync/pkg/logger"
	"dinesync/pkg/models"
)

// API is the slice of the REST client the session store needs.
type API interface {
	StartSession(ctx context.Context, tableID int) (*models.Session, error)
	EndSession(ctx context.Context) error
}

// Store holds the active table session or staff identity. It is the
// single writer of process-wide identity state; everything else only
// reads. One identity is active at a time.
type Store struct {
	jwtSecret string
	logger    *logger.Logger

	mu      sync.RWMutex
	api     API
	session *models.Session
	staff   *models.StaffIdentity
	token   string
}

func New(jwtSecret string, log *logger.Logger) *Store {
	return &Store{
		jwtSecret: jwtSecret,
		logger:    log,
	}
}

// AttachAPI wires the REST client in after construction; the client
// itself reads the token from this store, so the two are built in
// sequence.
func (s *Store) AttachAPI(api API) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.api = api
}

// StartCustomer opens a table session, the result of scanning a table
// QR code.
func (s *Store) StartCustomer(ctx context.Context, tableID int) (*models.Session, error) {
	s.mu.RLock()
	api := s.api
	s.mu.RUnlock()
	if api == nil {
		return nil, apperr.ErrNoSession
	}

	sess, err := api.StartSession(ctx, tableID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.session = sess
	s.staff = nil
	s.token = sess.SessionToken
	s.mu.Unlock()

	s.logger.Info("", "session_started",
		fmt.Sprintf("customer session %d opened for table %d", sess.ID, sess.TableID))
	return sess, nil
}

// LoginStaff derives the staff identity from a staff session token,
// which is a JWT carrying staff_id, name and role claims.
func (s *Store) LoginStaff(token string) (*models.StaffIdentity, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", apperr.ErrAuth, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperr.ErrAuth
	}
	staffID, ok := claims["staff_id"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: token has no staff_id", apperr.ErrAuth)
	}
	identity := &models.StaffIdentity{ID: int(staffID)}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if role, ok := claims["role"].(string); ok {
		identity.Role = role
	}

	s.mu.Lock()
	s.staff = identity
	s.session = nil
	s.token = token
	s.mu.Unlock()

	s.logger.Info("", "staff_login", fmt.Sprintf("staff %d logged in", identity.ID))
	return identity, nil
}

// Token returns the session token attached to every REST request.
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// IdentityKey returns the key the push channel is parameterized by, and
// whether any identity is active.
func (s *Store) IdentityKey() (models.IdentityKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.staff != nil:
		return models.IdentityKey{Role: models.RoleStaff, StaffID: s.staff.ID}, true
	case s.session != nil:
		return models.IdentityKey{Role: models.RoleCustomer, TableID: s.session.TableID}, true
	}
	return models.IdentityKey{}, false
}

func (s *Store) Active() bool {
	_, ok := s.IdentityKey()
	return ok
}

// End closes the session server-side and clears local identity state.
func (s *Store) End(ctx context.Context) error {
	s.mu.RLock()
	api := s.api
	customer := s.session != nil
	s.mu.RUnlock()

	var err error
	if customer && api != nil {
		err = api.EndSession(ctx)
	}
	s.Clear()
	return err
}

// Clear drops identity state without a server round trip; used on 401.
func (s *Store) Clear() {
	s.mu.Lock()
	cleared := s.session != nil || s.staff != nil
	s.session = nil
	s.staff = nil
	s.token = ""
	s.mu.Unlock()
	if cleared {
		s.logger.Info("", "session_cleared", "identity state dropped")
	}
}

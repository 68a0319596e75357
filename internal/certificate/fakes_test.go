package certificate

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/repository"
)

// memCertificates is an in-memory CertificateRepository. A single mutex
// stands in for the row lock taken by the SQL implementation.
type memCertificates struct {
	mu     sync.Mutex
	seq    int
	certs  map[string]models.Certificate
	events []models.StateReached
}

func newMemCertificates() *memCertificates {
	return &memCertificates{certs: map[string]models.Certificate{}}
}

func (m *memCertificates) Create(_ context.Context, cert models.Certificate) (models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs {
		if c.UserID == cert.UserID && c.Status.IsActive() {
			return models.Certificate{}, repository.ErrActiveCertificate
		}
	}
	m.seq++
	cert.ID = fmt.Sprintf("cert-%d", m.seq)
	cert.CreatedAt = time.Now()
	cert.UpdatedAt = cert.CreatedAt
	m.certs[cert.ID] = cert
	m.events = append(m.events, models.StateReached{CertificateID: cert.ID, Status: cert.Status, ActorID: cert.UserID})
	return cert, nil
}

func (m *memCertificates) GetByID(_ context.Context, id string) (models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.certs[id]
	if !ok {
		return models.Certificate{}, sql.ErrNoRows
	}
	return c, nil
}

func (m *memCertificates) HasActive(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.certs {
		if c.UserID == userID && c.Status.IsActive() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memCertificates) ListByUser(_ context.Context, userID string) ([]models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Certificate
	for _, c := range m.certs {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memCertificates) Transition(_ context.Context, id, actorID string, fn repository.TransitionFunc) (models.Certificate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.certs[id]
	if !ok {
		return models.Certificate{}, sql.ErrNoRows
	}
	next, err := fn(current)
	if err != nil {
		return models.Certificate{}, err
	}
	next.UpdatedAt = time.Now()
	m.certs[id] = next
	if next.Status != current.Status {
		m.events = append(m.events, models.StateReached{CertificateID: id, Status: next.Status, ActorID: actorID})
	}
	return next, nil
}

func (m *memCertificates) emitted() []models.StateReached {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.StateReached(nil), m.events...)
}

type memDirectory struct {
	byEmail map[string]models.User
}

func (d memDirectory) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	u, ok := d.byEmail[email]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return u, nil
}

type memRoster struct {
	// admins maps office id to user id to admin level.
	admins map[int64]map[string]models.AdminLevel
	err    error
}

func (r memRoster) IsOfficeAdmin(_ context.Context, userID string, officeID int64, levels ...models.AdminLevel) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	level, ok := r.admins[officeID][userID]
	if !ok {
		return false, nil
	}
	for _, l := range levels {
		if l == level {
			return true, nil
		}
	}
	return false, nil
}

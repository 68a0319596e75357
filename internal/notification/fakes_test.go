package notification

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/repository"
)

type deliveryKey struct {
	userID         string
	notificationID string
}

type linkKey struct {
	kind models.NotificationKind
	link string
}

// memNotifications mirrors the unique constraints of the SQL tables.
type memNotifications struct {
	mu         sync.Mutex
	seq        int
	byID       map[string]models.Notification
	byLink     map[linkKey]string
	deliveries map[deliveryKey]models.UserNotification
	clock      func() time.Time
}

func newMemNotifications() *memNotifications {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	return &memNotifications{
		byID:       map[string]models.Notification{},
		byLink:     map[linkKey]string{},
		deliveries: map[deliveryKey]models.UserNotification{},
		clock: func() time.Time {
			tick++
			return base.Add(time.Duration(tick) * time.Second)
		},
	}
}

func (m *memNotifications) FindOrCreate(_ context.Context, params repository.CreateNotificationParams) (models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := linkKey{kind: params.Kind, link: params.Link}
	if id, ok := m.byLink[key]; ok {
		return m.byID[id], nil
	}
	m.seq++
	n := models.Notification{
		ID:        fmt.Sprintf("n-%d", m.seq),
		Kind:      params.Kind,
		Title:     params.Title,
		Message:   params.Message,
		Link:      params.Link,
		CreatedBy: params.CreatedBy,
		CreatedAt: m.clock(),
	}
	if len(params.Data) > 0 {
		raw, err := json.Marshal(params.Data)
		if err != nil {
			return models.Notification{}, err
		}
		n.Data = raw
	}
	m.byID[n.ID] = n
	m.byLink[key] = n.ID
	return n, nil
}

func (m *memNotifications) UpsertDelivery(_ context.Context, userID, notificationID string) (models.UserNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byID[notificationID]; !ok {
		return models.UserNotification{}, errors.New("foreign key violation")
	}
	key := deliveryKey{userID: userID, notificationID: notificationID}
	now := m.clock()
	un, ok := m.deliveries[key]
	if !ok {
		m.seq++
		un = models.UserNotification{
			ID:             fmt.Sprintf("un-%d", m.seq),
			UserID:         userID,
			NotificationID: notificationID,
			CreatedAt:      now,
		}
	}
	un.Read = false
	un.ReadAt = nil
	un.UpdatedAt = now
	m.deliveries[key] = un
	return un, nil
}

func (m *memNotifications) ListForUser(_ context.Context, userID string, limit int) ([]models.FeedItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []models.FeedItem
	for key, un := range m.deliveries {
		if key.userID != userID {
			continue
		}
		items = append(items, models.FeedItem{UserNotification: un, Notification: m.byID[key.notificationID]})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *memNotifications) CountUnread(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for key, un := range m.deliveries {
		if key.userID == userID && !un.Read {
			count++
		}
	}
	return count, nil
}

func (m *memNotifications) MarkRead(_ context.Context, userID, notificationID string) (models.UserNotification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := deliveryKey{userID: userID, notificationID: notificationID}
	un, ok := m.deliveries[key]
	if !ok {
		return models.UserNotification{}, sql.ErrNoRows
	}
	if un.ReadAt == nil {
		now := m.clock()
		un.ReadAt = &now
		un.UpdatedAt = now
	}
	un.Read = true
	m.deliveries[key] = un
	return un, nil
}

func (m *memNotifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, un := range m.deliveries {
		if key.userID != userID || un.Read {
			continue
		}
		now := m.clock()
		un.Read = true
		un.ReadAt = &now
		un.UpdatedAt = now
		m.deliveries[key] = un
		n++
	}
	return n, nil
}

func (m *memNotifications) notifications() []models.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Notification, 0, len(m.byID))
	for _, n := range m.byID {
		out = append(out, n)
	}
	return out
}

func (m *memNotifications) deliveriesFor(notificationID string) []models.UserNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.UserNotification
	for key, un := range m.deliveries {
		if key.notificationID == notificationID {
			out = append(out, un)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

type memDirectory struct {
	users map[string]models.User
}

func (d memDirectory) GetUserByID(_ context.Context, userID string) (models.User, error) {
	u, ok := d.users[userID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (d memDirectory) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	for _, u := range d.users {
		if u.Email != "" && u.Email == email {
			return u, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (d memDirectory) ListUserIDsByStatus(_ context.Context, status models.UserStatus) ([]string, error) {
	var ids []string
	for _, u := range d.users {
		if u.Status == status {
			ids = append(ids, u.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memRoster struct {
	members map[int64]map[string]models.AdminLevel
	err     error
}

func (r memRoster) ListMemberIDs(_ context.Context, officeID int64, levels ...models.AdminLevel) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	var ids []string
	for id, level := range r.members[officeID] {
		if len(levels) == 0 {
			ids = append(ids, id)
			continue
		}
		for _, l := range levels {
			if l == level {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r memRoster) IsOfficeAdmin(_ context.Context, userID string, officeID int64, levels ...models.AdminLevel) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	level, ok := r.members[officeID][userID]
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

type memCertificates map[string]models.Certificate

func (c memCertificates) GetByID(_ context.Context, id string) (models.Certificate, error) {
	cert, ok := c[id]
	if !ok {
		return models.Certificate{}, sql.ErrNoRows
	}
	return cert, nil
}

type recordingNotifier struct {
	mu        sync.Mutex
	err       error
	delivered []Delivery
}

func (n *recordingNotifier) Notify(_ context.Context, d Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, d)
	return n.err
}

func (n *recordingNotifier) recipients() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.delivered))
	for _, d := range n.delivered {
		out = append(out, d.Recipient.ID)
	}
	sort.Strings(out)
	return out
}

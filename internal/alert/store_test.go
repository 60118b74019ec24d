package alert

import (
	"context"
	"errors"
	"sync"

	"uptime/internal/models"
)

type settingsKey struct {
	user     uint32
	target   string
	targetID uint32
}

type memStore struct {
	mu        sync.Mutex
	settings  map[settingsKey]*models.NotificationSettings
	channels  map[uint32]*models.NotificationChannel
	templates map[uint32]*models.NotificationTemplate
	history   []models.NotificationHistory
}

func newMemStore() *memStore {
	return &memStore{
		settings:  map[settingsKey]*models.NotificationSettings{},
		channels:  map[uint32]*models.NotificationChannel{},
		templates: map[uint32]*models.NotificationTemplate{},
	}
}

func (m *memStore) putSettings(s models.NotificationSettings) {
	m.settings[settingsKey{s.UserID, s.TargetType, s.TargetID}] = &s
}

func (m *memStore) GetNotificationSettings(_ context.Context, userID uint32, targetType string, targetID uint32) (*models.NotificationSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings[settingsKey{userID, targetType, targetID}], nil
}

func (m *memStore) GetChannel(_ context.Context, id uint32) (*models.NotificationChannel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.channels[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (m *memStore) GetTemplate(_ context.Context, id uint32) (*models.NotificationTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return t, nil
}

func (m *memStore) FindTemplate(_ context.Context, ownerID uint32, templateType string) (*models.NotificationTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *models.NotificationTemplate
	for _, t := range m.templates {
		if t.CreatedBy != ownerID || t.Type != templateType {
			continue
		}
		if t.IsDefault {
			return t, nil
		}
		if found == nil || t.ID < found.ID {
			found = t
		}
	}
	return found, nil
}

func (m *memStore) AppendNotificationHistory(_ context.Context, h *models.NotificationHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *h)
	return nil
}

func (m *memStore) historyRows() []models.NotificationHistory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.NotificationHistory(nil), m.history...)
}

package memory

import (
	"sync"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

// userDirectoryInMemory хранит известных пользователей (для разработки/тестов).
type userDirectoryInMemory struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewUserDirectory создаёт in-memory справочник с переданными пользователями.
func NewUserDirectory(userIDs ...string) *userDirectoryInMemory {
	d := &userDirectoryInMemory{users: make(map[string]struct{}, len(userIDs))}
	for _, id := range userIDs {
		d.users[id] = struct{}{}
	}
	return d
}

// Add регистрирует пользователя в справочнике.
func (d *userDirectoryInMemory) Add(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = struct{}{}
}

// UserExists возвращает true, если пользователь известен.
func (d *userDirectoryInMemory) UserExists(userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.users[userID]
	return ok, nil
}

var _ domain.UserDirectory = (*userDirectoryInMemory)(nil)

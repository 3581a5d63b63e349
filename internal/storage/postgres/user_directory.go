package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/fulfillment/internal/domain"
)

type userDirectory struct {
	db *sql.DB
}

// NewUserDirectory создаёт PostgreSQL-реализацию UserDirectory.
func NewUserDirectory(store *Store) domain.UserDirectory {
	return &userDirectory{db: store.DB()}
}

func (d *userDirectory) UserExists(userID string) (bool, error) {
	ctx, cancel := opCtx()
	defer cancel()

	var id string
	err := d.db.QueryRowContext(ctx, `SELECT id FROM users WHERE id = $1`, userID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check user exists: %w", err)
}

var _ domain.UserDirectory = (*userDirectory)(nil)

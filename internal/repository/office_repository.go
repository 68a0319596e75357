package repository

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/takaful/backoffice-api/internal/models"
)

// OfficeRepository answers roster questions about office memberships.
// Memberships with ended_at set are ignored.
type OfficeRepository interface {
	// IsOfficeAdmin reports whether userID is an active member of officeID
	// with one of the given admin levels.
	IsOfficeAdmin(ctx context.Context, userID string, officeID int64, levels ...models.AdminLevel) (bool, error)
	// ListMemberIDs returns active members of officeID, filtered to the given
	// admin levels when any are passed.
	ListMemberIDs(ctx context.Context, officeID int64, levels ...models.AdminLevel) ([]string, error)
}

type officeRepository struct {
	db *sql.DB
}

func NewOfficeRepository(db *sql.DB) OfficeRepository {
	return &officeRepository{db: db}
}

func (r *officeRepository) IsOfficeAdmin(ctx context.Context, userID string, officeID int64, levels ...models.AdminLevel) (bool, error) {
	if len(levels) == 0 {
		levels = []models.AdminLevel{models.AdminLevelAdmin}
	}
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM membership.office_members
			WHERE user_id = $1 AND office_id = $2 AND admin = ANY($3) AND ended_at IS NULL
		);
	`
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, userID, officeID, pq.Array(levelInts(levels))).Scan(&ok); err != nil {
		return false, errors.Wrap(err, "failed to check office admin")
	}
	return ok, nil
}

func (r *officeRepository) ListMemberIDs(ctx context.Context, officeID int64, levels ...models.AdminLevel) ([]string, error) {
	query := `
		SELECT DISTINCT user_id
		FROM membership.office_members
		WHERE office_id = $1 AND ended_at IS NULL`
	args := []interface{}{officeID}
	if len(levels) > 0 {
		query += ` AND admin = ANY($2)`
		args = append(args, pq.Array(levelInts(levels)))
	}
	query += ` ORDER BY user_id;`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list office members")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func levelInts(levels []models.AdminLevel) []int64 {
	out := make([]int64, 0, len(levels))
	for _, l := range levels {
		out = append(out, int64(l))
	}
	return out
}

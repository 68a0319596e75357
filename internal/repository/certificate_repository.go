package repository

import (
	"context"
	"database/sql"
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/takaful/backoffice-api/internal/models"
)

var (
	// ErrActiveCertificate is returned by Create when the requester already
	// has a request that is not final-approved.
	ErrActiveCertificate = stderrors.New("certificate request already active")
	// ErrStaleCertificate is returned by Transition when the row changed
	// status between the lock and the update.
	ErrStaleCertificate = stderrors.New("certificate status changed concurrently")
)

const activeCertificateIndex = "certificates_one_active_per_user"

// TransitionFunc receives the locked certificate and returns its next state.
// Returning an error aborts the transaction.
type TransitionFunc func(current models.Certificate) (models.Certificate, error)

type CertificateRepository interface {
	// Create inserts a pending certificate and records its StateReached event
	// atomically. The requester row is locked so concurrent submissions by
	// the same user serialize on the active-request check.
	Create(ctx context.Context, cert models.Certificate) (models.Certificate, error)
	GetByID(ctx context.Context, id string) (models.Certificate, error)
	HasActive(ctx context.Context, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]models.Certificate, error)
	// Transition locks the certificate row, applies fn, persists the result
	// and records a StateReached event when the status moved.
	Transition(ctx context.Context, id, actorID string, fn TransitionFunc) (models.Certificate, error)
}

type certificateRepository struct {
	db *sql.DB
}

func NewCertificateRepository(db *sql.DB) CertificateRepository {
	return &certificateRepository{db: db}
}

const certificateColumns = `id, user_id, officer_id, name, language, code, status, approver1_id, approver2_id, approver3_id, created_at, updated_at`

func (r *certificateRepository) Create(ctx context.Context, cert models.Certificate) (models.Certificate, error) {
	var created models.Certificate
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var lockedID string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM membership.users WHERE id = $1 FOR UPDATE`, cert.UserID).Scan(&lockedID); err != nil {
			return err
		}

		active, err := hasActive(ctx, tx, cert.UserID)
		if err != nil {
			return err
		}
		if active {
			return ErrActiveCertificate
		}

		const query = `
			INSERT INTO membership.certificates (user_id, officer_id, name, language, code, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING ` + certificateColumns
		created, err = scanCertificate(tx.QueryRowContext(ctx, query,
			cert.UserID, cert.OfficerID, cert.Name, cert.Language, cert.Code, models.CertificatePending))
		if err != nil {
			if isUniqueViolation(err, activeCertificateIndex) {
				return ErrActiveCertificate
			}
			return errors.Wrap(err, "failed to insert certificate")
		}

		state := int(created.Status)
		actor := created.UserID
		_, err = insertEvent(ctx, tx, models.EventCertificateStateReached, created.ID, &state, &actor)
		return err
	})
	if err != nil {
		return models.Certificate{}, err
	}
	return created, nil
}

func (r *certificateRepository) GetByID(ctx context.Context, id string) (models.Certificate, error) {
	const query = `SELECT ` + certificateColumns + ` FROM membership.certificates WHERE id = $1`
	return scanCertificate(r.db.QueryRowContext(ctx, query, id))
}

func (r *certificateRepository) HasActive(ctx context.Context, userID string) (bool, error) {
	return hasActive(ctx, r.db, userID)
}

func hasActive(ctx context.Context, q DBTX, userID string) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM membership.certificates
			WHERE user_id = $1 AND status < $2
		)`
	var exists bool
	if err := q.QueryRowContext(ctx, query, userID, models.CertificateFinalApproved).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "failed to check active certificate")
	}
	return exists, nil
}

func (r *certificateRepository) ListByUser(ctx context.Context, userID string) ([]models.Certificate, error) {
	const query = `
		SELECT ` + certificateColumns + `
		FROM membership.certificates
		WHERE user_id = $1
		ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var certs []models.Certificate
	for rows.Next() {
		cert, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return certs, nil
}

func (r *certificateRepository) Transition(ctx context.Context, id, actorID string, fn TransitionFunc) (models.Certificate, error) {
	var updated models.Certificate
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		const lockQuery = `SELECT ` + certificateColumns + ` FROM membership.certificates WHERE id = $1 FOR UPDATE`
		current, err := scanCertificate(tx.QueryRowContext(ctx, lockQuery, id))
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		const updateQuery = `
			UPDATE membership.certificates
			SET status = $3, approver1_id = $4, approver2_id = $5, approver3_id = $6, updated_at = NOW()
			WHERE id = $1 AND status = $2
			RETURNING ` + certificateColumns
		updated, err = scanCertificate(tx.QueryRowContext(ctx, updateQuery,
			current.ID, current.Status, next.Status,
			nullString(next.Approver1ID), nullString(next.Approver2ID), nullString(next.Approver3ID)))
		if err != nil {
			if stderrors.Is(err, sql.ErrNoRows) {
				return ErrStaleCertificate
			}
			return errors.Wrap(err, "failed to update certificate")
		}

		if updated.Status == current.Status {
			return nil
		}
		state := int(updated.Status)
		_, err = insertEvent(ctx, tx, models.EventCertificateStateReached, updated.ID, &state, &actorID)
		return err
	})
	if err != nil {
		return models.Certificate{}, err
	}
	return updated, nil
}

func scanCertificate(scanner rowScanner) (models.Certificate, error) {
	var (
		cert                 models.Certificate
		approver1, approver2 sql.NullString
		approver3            sql.NullString
	)
	if err := scanner.Scan(
		&cert.ID,
		&cert.UserID,
		&cert.OfficerID,
		&cert.Name,
		&cert.Language,
		&cert.Code,
		&cert.Status,
		&approver1,
		&approver2,
		&approver3,
		&cert.CreatedAt,
		&cert.UpdatedAt,
	); err != nil {
		return models.Certificate{}, err
	}
	cert.Approver1ID = stringPtr(approver1)
	cert.Approver2ID = stringPtr(approver2)
	cert.Approver3ID = stringPtr(approver3)
	return cert, nil
}

// Package certificate implements the certificate request workflow: submission
// with active-request uniqueness and the three-step approval chain.
package certificate

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"math/big"
	"strings"

	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/apperr"
	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/repository"
)

// Directory is the slice of the user directory the workflow needs.
type Directory interface {
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Roster answers office-membership questions.
type Roster interface {
	IsOfficeAdmin(ctx context.Context, userID string, officeID int64, levels ...models.AdminLevel) (bool, error)
}

type Service interface {
	Submit(ctx context.Context, requester models.User, req SubmitRequest) (models.Certificate, error)
	Approve(ctx context.Context, certificateID string, actor models.User) (models.Certificate, error)
	Get(ctx context.Context, certificateID string) (models.Certificate, error)
	HasActive(ctx context.Context, requesterID string) (bool, error)
	ListMine(ctx context.Context, requesterID string) ([]models.Certificate, error)
}

type SubmitRequest struct {
	Language    models.CertificateLanguage `json:"language"`
	DisplayName string                     `json:"name"`
}

type Options struct {
	MembershipOfficeID int64
	// CodeGenerator overrides the random certificate code source.
	CodeGenerator func() (string, error)
}

type service struct {
	certs   repository.CertificateRepository
	users   Directory
	machine *Machine
	newCode func() (string, error)
	logger  zerolog.Logger
}

func NewService(certs repository.CertificateRepository, users Directory, roster Roster, opts Options, logger zerolog.Logger) Service {
	gen := opts.CodeGenerator
	if gen == nil {
		gen = GenerateCode
	}
	return &service{
		certs:   certs,
		users:   users,
		machine: NewMachine(roster, opts.MembershipOfficeID),
		newCode: gen,
		logger:  logger.With().Str("component", "certificate_service").Logger(),
	}
}

func (s *service) Submit(ctx context.Context, requester models.User, req SubmitRequest) (models.Certificate, error) {
	lang := models.CertificateLanguage(strings.ToLower(strings.TrimSpace(string(req.Language))))
	if !models.IsValidLanguage(lang) {
		return models.Certificate{}, apperr.New(apperr.KindValidation, "language must be one of en, ar")
	}

	name := strings.TrimSpace(requester.Name)
	if lang == models.LanguageEnglish {
		name = strings.TrimSpace(req.DisplayName)
		if name == "" {
			return models.Certificate{}, apperr.New(apperr.KindValidation, "name is required for English certificates")
		}
	}
	if name == "" {
		return models.Certificate{}, apperr.New(apperr.KindValidation, "requester has no name on file")
	}

	// Fail fast before resolving the officer; Create re-checks under lock.
	active, err := s.certs.HasActive(ctx, requester.ID)
	if err != nil {
		return models.Certificate{}, err
	}
	if active {
		return models.Certificate{}, apperr.New(apperr.KindConflict, "an active certificate request already exists")
	}

	officer, err := s.resolveOfficer(ctx, requester)
	if err != nil {
		return models.Certificate{}, err
	}

	code, err := s.newCode()
	if err != nil {
		return models.Certificate{}, err
	}

	cert, err := s.certs.Create(ctx, models.Certificate{
		UserID:    requester.ID,
		OfficerID: officer.ID,
		Name:      name,
		Language:  lang,
		Code:      code,
		Status:    models.CertificatePending,
	})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrActiveCertificate):
			return models.Certificate{}, apperr.Wrap(err, apperr.KindConflict, "an active certificate request already exists")
		case errors.Is(err, sql.ErrNoRows):
			return models.Certificate{}, apperr.Wrap(err, apperr.KindNotFound, "requester not found")
		}
		s.logger.Error().Err(err).Str("user_id", requester.ID).Msg("failed to create certificate request")
		return models.Certificate{}, err
	}

	s.logger.Info().
		Str("certificate_id", cert.ID).
		Str("user_id", cert.UserID).
		Str("officer_id", cert.OfficerID).
		Msg("certificate request submitted")
	return cert, nil
}

func (s *service) resolveOfficer(ctx context.Context, requester models.User) (models.User, error) {
	email := strings.TrimSpace(requester.OfficerEmail)
	if email == "" {
		return models.User{}, apperr.New(apperr.KindConfiguration, "no reviewing officer is assigned to this member")
	}
	officer, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, apperr.Wrap(err, apperr.KindConfiguration, "assigned reviewing officer does not exist")
		}
		return models.User{}, err
	}
	return officer, nil
}

func (s *service) Approve(ctx context.Context, certificateID string, actor models.User) (models.Certificate, error) {
	// The machine runs while the certificate row is locked.
	var (
		from models.CertificateStatus
		to   models.CertificateStatus
	)
	cert, err := s.certs.Transition(ctx, certificateID, actor.ID, func(current models.Certificate) (models.Certificate, error) {
		from = current.Status
		next, err := s.machine.Apply(ctx, current, actor)
		to = next.Status
		return next, err
	})
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return models.Certificate{}, apperr.Wrap(err, apperr.KindNotFound, "certificate not found")
		case errors.Is(err, repository.ErrStaleCertificate):
			return models.Certificate{}, apperr.Wrap(err, apperr.KindInvalidState, "certificate status changed, reload and retry")
		}
		if apperr.KindOf(err) == apperr.KindUnknown {
			s.logger.Error().Err(err).Str("certificate_id", certificateID).Msg("failed to approve certificate")
		}
		return models.Certificate{}, err
	}

	s.logger.Info().
		Str("certificate_id", cert.ID).
		Str("actor_id", actor.ID).
		Stringer("from", from).
		Stringer("to", to).
		Msg("certificate approved")
	return cert, nil
}

func (s *service) Get(ctx context.Context, certificateID string) (models.Certificate, error) {
	cert, err := s.certs.GetByID(ctx, certificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Certificate{}, apperr.Wrap(err, apperr.KindNotFound, "certificate not found")
		}
		return models.Certificate{}, err
	}
	return cert, nil
}

func (s *service) HasActive(ctx context.Context, requesterID string) (bool, error) {
	return s.certs.HasActive(ctx, requesterID)
}

func (s *service) ListMine(ctx context.Context, requesterID string) ([]models.Certificate, error) {
	return s.certs.ListByUser(ctx, requesterID)
}

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	codeLength   = 8
)

// GenerateCode returns an 8-character random alphanumeric certificate code.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}

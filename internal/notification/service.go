package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/takaful/backoffice-api/internal/apperr"
	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/repository"
)

// Directory is the slice of the user directory the dispatcher reads.
type Directory interface {
	GetUserByID(ctx context.Context, userID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUserIDsByStatus(ctx context.Context, status models.UserStatus) ([]string, error)
}

// Roster lists office members.
type Roster interface {
	ListMemberIDs(ctx context.Context, officeID int64, levels ...models.AdminLevel) ([]string, error)
}

// Certificates gives the dispatcher read-only access to certificates.
type Certificates interface {
	GetByID(ctx context.Context, id string) (models.Certificate, error)
}

// DispatchResult reports what a dispatch wrote.
type DispatchResult struct {
	NotificationID string   `json:"notification_id,omitempty"`
	Recipients     []string `json:"recipients"`
}

type Service interface {
	// Dispatch delivers the notification for a certificate entering
	// signal.Status. Repeating it for the same signal is safe.
	Dispatch(ctx context.Context, signal models.StateReached) (DispatchResult, error)
	NotifyUserRegistered(ctx context.Context, userID string) (DispatchResult, error)
	ListForRecipient(ctx context.Context, recipientID string, limit int) (models.Feed, error)
	MarkRead(ctx context.Context, recipientID, notificationID string) (models.UserNotification, error)
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

type Options struct {
	MembershipOfficeID int64
	AppURL             string
}

type service struct {
	repo      repository.NotificationRepository
	users     Directory
	roster    Roster
	certs     Certificates
	opts      Options
	logger    zerolog.Logger
	notifiers []Notifier
}

func NewService(repo repository.NotificationRepository, users Directory, roster Roster, certs Certificates, opts Options, logger zerolog.Logger, notifiers ...Notifier) Service {
	active := make([]Notifier, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			active = append(active, notifier)
		}
	}
	opts.AppURL = strings.TrimRight(opts.AppURL, "/")
	return &service{
		repo:      repo,
		users:     users,
		roster:    roster,
		certs:     certs,
		opts:      opts,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		notifiers: active,
	}
}

func (s *service) Dispatch(ctx context.Context, signal models.StateReached) (DispatchResult, error) {
	cert, err := s.certs.GetByID(ctx, signal.CertificateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Str("certificate_id", signal.CertificateID).Msg("certificate for signal not found, nothing to notify")
			return DispatchResult{}, nil
		}
		return DispatchResult{}, fmt.Errorf("load certificate: %w", err)
	}

	requester, err := s.users.GetUserByID(ctx, cert.UserID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("load requester: %w", err)
	}

	content, ok := certificateContent(s.opts.AppURL, cert, signal.Status, requester)
	if !ok {
		s.logger.Warn().Int("status", int(signal.Status)).Str("certificate_id", cert.ID).Msg("no notification for certificate status")
		return DispatchResult{}, nil
	}

	recipients, err := s.certificateRecipients(ctx, cert, signal.Status, requester)
	if err != nil {
		return DispatchResult{}, err
	}

	return s.deliver(ctx, content, signal.ActorID, recipients)
}

func (s *service) NotifyUserRegistered(ctx context.Context, userID string) (DispatchResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Str("user_id", userID).Msg("registered user not found, nothing to notify")
			return DispatchResult{}, nil
		}
		return DispatchResult{}, fmt.Errorf("load registered user: %w", err)
	}

	recipients, err := s.roster.ListMemberIDs(ctx, s.opts.MembershipOfficeID)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("list membership office members: %w", err)
	}

	return s.deliver(ctx, registrationContent(s.opts.AppURL, user), user.ID, recipients)
}

// deliver finds or creates the notification and upserts one delivery per
// distinct recipient. An empty recipient set is a valid outcome.
func (s *service) deliver(ctx context.Context, params repository.CreateNotificationParams, actorID string, recipients []string) (DispatchResult, error) {
	recipients = uniqueIDs(recipients)
	if len(recipients) == 0 {
		s.logger.Info().
			Str("kind", string(params.Kind)).
			Str("link", params.Link).
			Msg("no recipients resolved, no notification delivered")
		return DispatchResult{Recipients: []string{}}, nil
	}

	if actorID = strings.TrimSpace(actorID); actorID != "" {
		params.CreatedBy = &actorID
	}

	notif, err := s.repo.FindOrCreate(ctx, params)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", string(params.Kind)).Msg("failed to persist notification")
		return DispatchResult{}, err
	}

	delivered := make([]string, 0, len(recipients))
	for _, recipientID := range recipients {
		un, err := s.repo.UpsertDelivery(ctx, recipientID, notif.ID)
		if err != nil {
			s.logger.Error().Err(err).
				Str("notification_id", notif.ID).
				Str("recipient_id", recipientID).
				Msg("failed to upsert delivery")
			return DispatchResult{}, err
		}
		delivered = append(delivered, recipientID)
		s.fanOut(ctx, recipientID, notif, un)
	}

	s.logger.Info().
		Str("notification_id", notif.ID).
		Str("kind", string(notif.Kind)).
		Int("recipients", len(delivered)).
		Msg("notification delivered")
	return DispatchResult{NotificationID: notif.ID, Recipients: delivered}, nil
}

func (s *service) fanOut(ctx context.Context, recipientID string, notif models.Notification, un models.UserNotification) {
	if len(s.notifiers) == 0 {
		return
	}
	recipient, err := s.users.GetUserByID(ctx, recipientID)
	if err != nil {
		s.logger.Warn().Err(err).Str("recipient_id", recipientID).Msg("failed to load recipient for fan-out")
		return
	}
	delivery := Delivery{Recipient: recipient, Notification: notif, UserNotification: un}
	for _, notifier := range s.notifiers {
		if err := notifier.Notify(ctx, delivery); err != nil {
			logNotifyError(s.logger, err, notifierChannelName(notifier), delivery)
		}
	}
}

func (s *service) ListForRecipient(ctx context.Context, recipientID string, limit int) (models.Feed, error) {
	items, err := s.repo.ListForUser(ctx, recipientID, limit)
	if err != nil {
		return models.Feed{}, err
	}
	unread, err := s.repo.CountUnread(ctx, recipientID)
	if err != nil {
		return models.Feed{}, err
	}
	return models.Feed{UnreadCount: unread, Notifications: items}, nil
}

func (s *service) MarkRead(ctx context.Context, recipientID, notificationID string) (models.UserNotification, error) {
	un, err := s.repo.MarkRead(ctx, recipientID, notificationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UserNotification{}, apperr.Wrap(err, apperr.KindNotFound, "notification not found")
		}
		return models.UserNotification{}, err
	}
	return un, nil
}

func (s *service) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return s.repo.MarkAllRead(ctx, recipientID)
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

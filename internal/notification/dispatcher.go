package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/takaful/backoffice-api/internal/models"
	"github.com/takaful/backoffice-api/internal/repository"
)

// ApprovalLink is where approvers act on a pending certificate.
func ApprovalLink(appURL, certificateID string) string {
	return fmt.Sprintf("%s/certificates/%s/approval", appURL, certificateID)
}

// ViewLink is where a member views and downloads an approved certificate.
func ViewLink(appURL, certificateID string) string {
	return fmt.Sprintf("%s/certificates/%s/view", appURL, certificateID)
}

func UserApprovalLink(appURL, userID string) string {
	return fmt.Sprintf("%s/users/%s/approval", appURL, userID)
}

// certificateContent builds the notification content for a certificate that
// reached status. Statuses below final share one approval-request
// notification, so later steps reuse the row created on submission.
func certificateContent(appURL string, cert models.Certificate, status models.CertificateStatus, requester models.User) (repository.CreateNotificationParams, bool) {
	// The request row is reused by later steps and never rewritten, so its
	// payload carries nothing step-specific.
	data := map[string]interface{}{"certificate_id": cert.ID}
	switch status {
	case models.CertificatePending, models.CertificateFirstApproved, models.CertificateSecondApproved:
		return repository.CreateNotificationParams{
			Kind:    models.NotificationKindCertificateRequest,
			Title:   "New Certificate Request",
			Message: fmt.Sprintf("User %s has requested a new certificate.", displayName(requester)),
			Link:    ApprovalLink(appURL, cert.ID),
			Data:    data,
		}, true
	case models.CertificateFinalApproved:
		data["status"] = int(status)
		data["code"] = cert.Code
		return repository.CreateNotificationParams{
			Kind:    models.NotificationKindCertificateApproval,
			Title:   "Certificate Approved",
			Message: "Your certificate has been approved.",
			Link:    ViewLink(appURL, cert.ID),
			Data:    data,
		}, true
	default:
		return repository.CreateNotificationParams{}, false
	}
}

func registrationContent(appURL string, user models.User) repository.CreateNotificationParams {
	return repository.CreateNotificationParams{
		Kind:    models.NotificationKindUserRegistered,
		Title:   "New User Registration",
		Message: fmt.Sprintf("A new user has registered: %s", displayName(user)),
		Link:    UserApprovalLink(appURL, user.ID),
		Data:    map[string]interface{}{"user_id": user.ID},
	}
}

// certificateRecipients resolves who is told about a certificate entering
// status:
//
//	0: the requester's reviewing officer
//	1: admins and co-admins of the membership office
//	2: every Super Admin
//	3: the requester
func (s *service) certificateRecipients(ctx context.Context, cert models.Certificate, status models.CertificateStatus, requester models.User) ([]string, error) {
	switch status {
	case models.CertificatePending:
		officerID, err := s.reviewingOfficer(ctx, cert, requester)
		if err != nil {
			return nil, err
		}
		if officerID == "" {
			return nil, nil
		}
		return []string{officerID}, nil
	case models.CertificateFirstApproved:
		ids, err := s.roster.ListMemberIDs(ctx, s.opts.MembershipOfficeID, models.AdminLevelAdmin, models.AdminLevelCoAdmin)
		if err != nil {
			return nil, fmt.Errorf("list membership office admins: %w", err)
		}
		return ids, nil
	case models.CertificateSecondApproved:
		ids, err := s.users.ListUserIDsByStatus(ctx, models.UserStatusSuperAdmin)
		if err != nil {
			return nil, fmt.Errorf("list super admins: %w", err)
		}
		return ids, nil
	case models.CertificateFinalApproved:
		return []string{cert.UserID}, nil
	default:
		return nil, nil
	}
}

// reviewingOfficer prefers the officer recorded on the certificate and falls
// back to the requester's current assignment.
func (s *service) reviewingOfficer(ctx context.Context, cert models.Certificate, requester models.User) (string, error) {
	if cert.OfficerID != "" {
		return cert.OfficerID, nil
	}
	email := strings.TrimSpace(requester.OfficerEmail)
	if email == "" {
		s.logger.Warn().Str("certificate_id", cert.ID).Msg("requester has no reviewing officer")
		return "", nil
	}
	officer, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Str("certificate_id", cert.ID).Str("officer_email", email).Msg("reviewing officer not found")
			return "", nil
		}
		return "", fmt.Errorf("resolve reviewing officer: %w", err)
	}
	return officer.ID, nil
}

func displayName(u models.User) string {
	if name := strings.TrimSpace(u.Name); name != "" {
		return name
	}
	return u.Email
}

package certificate

import (
	"context"

	"github.com/takaful/backoffice-api/internal/apperr"
	"github.com/takaful/backoffice-api/internal/models"
)

// Guard decides whether actor may perform a transition.
type Guard func(ctx context.Context, actor models.User) (bool, error)

type Transition struct {
	From  models.CertificateStatus
	To    models.CertificateStatus
	Guard Guard
	// Slot returns the approver field this step fills.
	Slot func(c *models.Certificate) **string
}

// Machine is the approval state machine: one transition per non-terminal
// status, each filling the next approver slot.
type Machine struct {
	transitions map[models.CertificateStatus]Transition
}

func NewMachine(roster Roster, membershipOfficeID int64) *Machine {
	return &Machine{transitions: map[models.CertificateStatus]Transition{
		models.CertificatePending: {
			From:  models.CertificatePending,
			To:    models.CertificateFirstApproved,
			Guard: anyone,
			Slot:  func(c *models.Certificate) **string { return &c.Approver1ID },
		},
		models.CertificateFirstApproved: {
			From:  models.CertificateFirstApproved,
			To:    models.CertificateSecondApproved,
			Guard: officeAdmin(roster, membershipOfficeID),
			Slot:  func(c *models.Certificate) **string { return &c.Approver2ID },
		},
		models.CertificateSecondApproved: {
			From:  models.CertificateSecondApproved,
			To:    models.CertificateFinalApproved,
			Guard: superAdmin,
			Slot:  func(c *models.Certificate) **string { return &c.Approver3ID },
		},
	}}
}

// Lookup returns the transition leaving status, if any.
func (m *Machine) Lookup(status models.CertificateStatus) (Transition, bool) {
	t, ok := m.transitions[status]
	return t, ok
}

// Apply checks the general preconditions and the guard for cert's current
// status and returns the advanced certificate. cert itself is not modified.
func (m *Machine) Apply(ctx context.Context, cert models.Certificate, actor models.User) (models.Certificate, error) {
	if cert.HasApprover(actor.ID) {
		return models.Certificate{}, apperr.New(apperr.KindAlreadyActed, "you have already approved this certificate")
	}
	if cert.UserID == actor.ID {
		return models.Certificate{}, apperr.New(apperr.KindSelfApproval, "you cannot approve your own certificate")
	}

	t, ok := m.Lookup(cert.Status)
	if !ok {
		return models.Certificate{}, apperr.New(apperr.KindInvalidState, "certificate in status %s cannot be approved", cert.Status)
	}

	allowed, err := t.Guard(ctx, actor)
	if err != nil {
		return models.Certificate{}, err
	}
	if !allowed {
		return models.Certificate{}, apperr.New(apperr.KindNotAuthorized, "you are not authorized to approve a %s certificate", cert.Status)
	}

	next := cert
	id := actor.ID
	*t.Slot(&next) = &id
	next.Status = t.To
	return next, nil
}

func anyone(context.Context, models.User) (bool, error) {
	return true, nil
}

func officeAdmin(roster Roster, officeID int64) Guard {
	return func(ctx context.Context, actor models.User) (bool, error) {
		return roster.IsOfficeAdmin(ctx, actor.ID, officeID, models.AdminLevelAdmin)
	}
}

func superAdmin(_ context.Context, actor models.User) (bool, error) {
	return actor.IsSuperAdmin(), nil
}

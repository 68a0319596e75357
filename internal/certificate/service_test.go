package certificate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/takaful/backoffice-api/internal/apperr"
	"github.com/takaful/backoffice-api/internal/models"
)

const membershipOffice int64 = 1

type fixture struct {
	svc     Service
	certs   *memCertificates
	member  models.User
	officer models.User
	admin   models.User
	coAdmin models.User
	staff   models.User
	super   models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		certs:   newMemCertificates(),
		member:  models.User{ID: "u-member", Name: "جين", Email: "jane@example.org", OfficerEmail: "officer@example.org", Status: models.UserStatusActive},
		officer: models.User{ID: "u-officer", Name: "Officer", Email: "officer@example.org", Status: models.UserStatusOfficeMember},
		admin:   models.User{ID: "u-admin", Name: "Admin", Status: models.UserStatusAdmin},
		coAdmin: models.User{ID: "u-coadmin", Name: "Co-admin", Status: models.UserStatusAdmin},
		staff:   models.User{ID: "u-staff", Name: "Staff", Status: models.UserStatusOfficeMember},
		super:   models.User{ID: "u-super", Name: "Super", Status: models.UserStatusSuperAdmin},
	}
	dir := memDirectory{byEmail: map[string]models.User{f.officer.Email: f.officer}}
	roster := memRoster{admins: map[int64]map[string]models.AdminLevel{
		membershipOffice: {
			f.admin.ID:   models.AdminLevelAdmin,
			f.coAdmin.ID: models.AdminLevelCoAdmin,
			f.staff.ID:   models.AdminLevelMember,
		},
	}}
	f.svc = NewService(f.certs, dir, roster, Options{
		MembershipOfficeID: membershipOffice,
		CodeGenerator:      func() (string, error) { return "AbCd1234", nil },
	}, zerolog.Nop())
	return f
}

func (f *fixture) submit(t *testing.T) models.Certificate {
	t.Helper()
	cert, err := f.svc.Submit(context.Background(), f.member, SubmitRequest{Language: models.LanguageEnglish, DisplayName: "Jane"})
	require.NoError(t, err)
	return cert
}

func TestSubmit_English(t *testing.T) {
	f := newFixture(t)

	cert := f.submit(t)

	assert.Equal(t, models.CertificatePending, cert.Status)
	assert.Equal(t, "Jane", cert.Name)
	assert.Equal(t, models.LanguageEnglish, cert.Language)
	assert.Equal(t, f.officer.ID, cert.OfficerID)
	assert.Equal(t, "AbCd1234", cert.Code)
	assert.Nil(t, cert.Approver1ID)
	assert.Equal(t, []models.StateReached{{CertificateID: cert.ID, Status: models.CertificatePending, ActorID: f.member.ID}}, f.certs.emitted())
}

func TestSubmit_ArabicUsesNameOnFile(t *testing.T) {
	f := newFixture(t)

	cert, err := f.svc.Submit(context.Background(), f.member, SubmitRequest{Language: "ar", DisplayName: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, f.member.Name, cert.Name)
}

func TestSubmit_Validation(t *testing.T) {
	cases := []struct {
		name string
		req  SubmitRequest
	}{
		{"unknown language", SubmitRequest{Language: "fr", DisplayName: "Jane"}},
		{"empty language", SubmitRequest{DisplayName: "Jane"}},
		{"english without name", SubmitRequest{Language: "en", DisplayName: "  "}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.Submit(context.Background(), f.member, tc.req)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
			assert.Empty(t, f.certs.emitted())
		})
	}
}

func TestSubmit_SecondActiveRequestConflicts(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t)

	for _, actor := range []models.User{f.officer, f.admin} {
		_, err := f.svc.Approve(context.Background(), first.ID, actor)
		require.NoError(t, err)

		_, err = f.svc.Submit(context.Background(), f.member, SubmitRequest{Language: "en", DisplayName: "Jane"})
		assert.True(t, apperr.Is(err, apperr.KindConflict), "after %s: got %v", actor.ID, err)
	}
}

func TestSubmit_AllowedAfterFinalApproval(t *testing.T) {
	f := newFixture(t)
	first := f.submit(t)
	for _, actor := range []models.User{f.officer, f.admin, f.super} {
		_, err := f.svc.Approve(context.Background(), first.ID, actor)
		require.NoError(t, err)
	}

	second := f.submit(t)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestSubmit_ConcurrentOnlyOneWins(t *testing.T) {
	f := newFixture(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		conflicts int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Submit(context.Background(), f.member, SubmitRequest{Language: "ar"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case apperr.Is(err, apperr.KindConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, 7, conflicts)
}

func TestSubmit_OfficerMissing(t *testing.T) {
	f := newFixture(t)

	t.Run("no officer assigned", func(t *testing.T) {
		u := f.member
		u.OfficerEmail = ""
		_, err := f.svc.Submit(context.Background(), u, SubmitRequest{Language: "ar"})
		assert.True(t, apperr.Is(err, apperr.KindConfiguration), "got %v", err)
	})

	t.Run("officer unknown", func(t *testing.T) {
		u := f.member
		u.OfficerEmail = "ghost@example.org"
		_, err := f.svc.Submit(context.Background(), u, SubmitRequest{Language: "ar"})
		assert.True(t, apperr.Is(err, apperr.KindConfiguration), "got %v", err)
	})

	assert.Empty(t, f.certs.emitted())
}

func TestApprove_FullChain(t *testing.T) {
	f := newFixture(t)
	cert := f.submit(t)
	ctx := context.Background()

	cert, err := f.svc.Approve(ctx, cert.ID, f.officer)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateFirstApproved, cert.Status)
	require.NotNil(t, cert.Approver1ID)
	assert.Equal(t, f.officer.ID, *cert.Approver1ID)
	assert.Nil(t, cert.Approver2ID)

	cert, err = f.svc.Approve(ctx, cert.ID, f.admin)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateSecondApproved, cert.Status)
	require.NotNil(t, cert.Approver2ID)
	assert.Equal(t, f.admin.ID, *cert.Approver2ID)
	assert.Nil(t, cert.Approver3ID)

	cert, err = f.svc.Approve(ctx, cert.ID, f.super)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateFinalApproved, cert.Status)
	require.NotNil(t, cert.Approver3ID)
	assert.Equal(t, f.super.ID, *cert.Approver3ID)

	var statuses []models.CertificateStatus
	for _, evt := range f.certs.emitted() {
		statuses = append(statuses, evt.Status)
	}
	assert.Equal(t, []models.CertificateStatus{0, 1, 2, 3}, statuses)
}

func TestApprove_FinalIsTerminal(t *testing.T) {
	f := newFixture(t)
	cert := f.submit(t)
	for _, actor := range []models.User{f.officer, f.admin, f.super} {
		_, err := f.svc.Approve(context.Background(), cert.ID, actor)
		require.NoError(t, err)
	}

	outsider := models.User{ID: "u-outsider", Status: models.UserStatusSuperAdmin}
	_, err := f.svc.Approve(context.Background(), cert.ID, outsider)
	assert.True(t, apperr.Is(err, apperr.KindInvalidState), "got %v", err)
	assert.Len(t, f.certs.emitted(), 4)
}

func TestApprove_SelfApprovalAtEveryStatus(t *testing.T) {
	f := newFixture(t)
	cert := f.submit(t)

	for _, next := range []models.User{f.officer, f.admin, f.super} {
		_, err := f.svc.Approve(context.Background(), cert.ID, f.member)
		assert.True(t, apperr.Is(err, apperr.KindSelfApproval), "got %v", err)

		_, err = f.svc.Approve(context.Background(), cert.ID, next)
		require.NoError(t, err)
	}

	_, err := f.svc.Approve(context.Background(), cert.ID, f.member)
	assert.True(t, apperr.Is(err, apperr.KindSelfApproval), "got %v", err)
}

func TestApprove_SameActorTwice(t *testing.T) {
	f := newFixture(t)
	cert := f.submit(t)

	// The first approver also holds the office admin flag.
	_, err := f.svc.Approve(context.Background(), cert.ID, f.admin)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), cert.ID, f.admin)
	assert.True(t, apperr.Is(err, apperr.KindAlreadyActed), "got %v", err)

	got, err := f.svc.Get(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateFirstApproved, got.Status)
}

func TestApprove_RoleGates(t *testing.T) {
	f := newFixture(t)
	cert := f.submit(t)
	ctx := context.Background()

	_, err := f.svc.Approve(ctx, cert.ID, f.officer)
	require.NoError(t, err)

	for _, u := range []models.User{f.staff, f.coAdmin, f.super} {
		_, err = f.svc.Approve(ctx, cert.ID, u)
		assert.True(t, apperr.Is(err, apperr.KindNotAuthorized), "%s: got %v", u.ID, err)
	}

	_, err = f.svc.Approve(ctx, cert.ID, f.admin)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, cert.ID, f.coAdmin)
	assert.True(t, apperr.Is(err, apperr.KindNotAuthorized), "got %v", err)

	got, err := f.svc.Approve(ctx, cert.ID, f.super)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateFinalApproved, got.Status)
}

func TestApprove_ConcurrentFirstApprovers(t *testing.T) {
	f := newFixture(t)
	cert := f.submit(t)

	approvers := []models.User{f.officer, f.staff, f.coAdmin}
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		winner []string
	)
	for _, u := range approvers {
		wg.Add(1)
		go func(u models.User) {
			defer wg.Done()
			got, err := f.svc.Approve(context.Background(), cert.ID, u)
			if err != nil {
				return
			}
			if got.Status == models.CertificateFirstApproved {
				mu.Lock()
				winner = append(winner, u.ID)
				mu.Unlock()
			}
		}(u)
	}
	wg.Wait()

	assert.Len(t, winner, 1)
	got, err := f.svc.Get(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CertificateFirstApproved, got.Status)
	require.NotNil(t, got.Approver1ID)
	assert.Equal(t, winner[0], *got.Approver1ID)
}

func TestApprove_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Approve(context.Background(), "missing", f.officer)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
}

func TestApprove_RosterFailureIsNotAGuardFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("roster unavailable")
	f.svc = NewService(f.certs, memDirectory{byEmail: map[string]models.User{f.officer.Email: f.officer}},
		memRoster{err: boom}, Options{MembershipOfficeID: membershipOffice}, zerolog.Nop())

	cert := f.submit(t)
	_, err := f.svc.Approve(context.Background(), cert.ID, f.officer)
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), cert.ID, f.admin)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, apperr.KindUnknown, apperr.KindOf(err))
}

func TestGenerateCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		require.NoError(t, err)
		assert.Len(t, code, 8)
		assert.Regexp(t, `^[A-Za-z0-9]{8}$`, code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 45)
}

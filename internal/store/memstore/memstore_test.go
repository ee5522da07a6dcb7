package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"yakssok-api/internal/model"
	"yakssok-api/internal/store"
	"yakssok-api/internal/store/memstore"
)

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func seed(t *testing.T, s *memstore.Store, code string) *model.Appointment {
	t.Helper()
	a := &model.Appointment{Name: "x", CreatorID: "u1", Status: model.StatusVoting, InviteCode: code}
	if err := s.InsertAppointment(context.Background(), a); err != nil {
		t.Fatalf("insert appointment: %v", err)
	}
	return a
}

func TestInTxRollsBack(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(q store.Querier) error {
		a := &model.Appointment{Name: "x", CreatorID: "u1", Status: model.StatusVoting, InviteCode: "AAAA1111"}
		if err := q.InsertAppointment(ctx, a); err != nil {
			return err
		}
		if _, err := q.InsertCandidateDates(ctx, a.ID, []time.Time{day("2024-01-01")}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	if _, err := s.AppointmentByInviteCode(ctx, "AAAA1111"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("appointment survived rollback: %v", err)
	}
	exists, _ := s.InviteCodeExists(ctx, "AAAA1111")
	if exists {
		t.Error("invite code survived rollback")
	}
}

func TestInTxCommits(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	var id int64
	err := s.InTx(ctx, func(q store.Querier) error {
		a := &model.Appointment{Name: "x", CreatorID: "u1", Status: model.StatusVoting, InviteCode: "BBBB2222"}
		if err := q.InsertAppointment(ctx, a); err != nil {
			return err
		}
		id = a.ID
		return q.InsertParticipation(ctx, &model.Participation{UserID: "u1", AppointmentID: a.ID})
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	n, _ := s.CountParticipations(ctx, id)
	if n != 1 {
		t.Errorf("expected 1 participation, got %d", n)
	}
}

func TestUniqueViolations(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	a := seed(t, s, "CCCC3333")

	t.Run("invite code", func(t *testing.T) {
		dup := &model.Appointment{Name: "y", CreatorID: "u2", Status: model.StatusVoting, InviteCode: "CCCC3333"}
		err := s.InsertAppointment(ctx, dup)
		if !store.IsUniqueViolation(err, store.ConstraintInviteCode) {
			t.Errorf("expected invite code violation, got %v", err)
		}
	})

	t.Run("candidate date", func(t *testing.T) {
		_, err := s.InsertCandidateDates(ctx, a.ID, []time.Time{day("2024-02-01"), day("2024-02-01")})
		if !store.IsUniqueViolation(err, store.ConstraintCandidateDate) {
			t.Errorf("expected candidate date violation, got %v", err)
		}
		// the failed batch left nothing behind
		dates, _ := s.CandidateDates(ctx, a.ID)
		if len(dates) != 0 {
			t.Errorf("expected 0 dates after failed batch, got %d", len(dates))
		}
	})

	t.Run("participant", func(t *testing.T) {
		if err := s.InsertParticipation(ctx, &model.Participation{UserID: "u9", AppointmentID: a.ID}); err != nil {
			t.Fatalf("first insert: %v", err)
		}
		err := s.InsertParticipation(ctx, &model.Participation{UserID: "u9", AppointmentID: a.ID})
		if !store.IsUniqueViolation(err, store.ConstraintParticipant) {
			t.Errorf("expected participant violation, got %v", err)
		}
	})
}

func TestCandidateDatesSorted(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	a := seed(t, s, "DDDD4444")

	_, err := s.InsertCandidateDates(ctx, a.ID, []time.Time{day("2024-03-03"), day("2024-03-01"), day("2024-03-02")})
	if err != nil {
		t.Fatalf("insert dates: %v", err)
	}
	dates, _ := s.CandidateDates(ctx, a.ID)
	want := []string{"2024-03-01", "2024-03-02", "2024-03-03"}
	if len(dates) != len(want) {
		t.Fatalf("expected %d dates, got %d", len(want), len(dates))
	}
	for i, d := range dates {
		if got := d.Date.Format("2006-01-02"); got != want[i] {
			t.Errorf("date %d: expected %s, got %s", i, want[i], got)
		}
	}
}

func TestUpsertGoogleUserKeepsRefreshToken(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()

	u := &model.User{ID: "g-1", Email: "a@example.com", Name: "A", GoogleRefreshToken: "sealed-1"}
	if err := s.UpsertGoogleUser(ctx, u); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	again := &model.User{ID: "g-1", Email: "a@example.com", Name: "A2"}
	if err := s.UpsertGoogleUser(ctx, again); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.GoogleRefreshToken != "sealed-1" {
		t.Errorf("expected old refresh token kept, got %q", again.GoogleRefreshToken)
	}

	got, err := s.UserByID(ctx, "g-1")
	if err != nil {
		t.Fatalf("user by id: %v", err)
	}
	if got.Name != "A2" {
		t.Errorf("expected name updated, got %q", got.Name)
	}
}

func TestRefreshTokenLifecycle(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	if err := s.UpsertGoogleUser(ctx, &model.User{ID: "g-2", Email: "b@example.com"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	oldID, err := s.CreateRefreshToken(ctx, "g-2", "hash-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	newID, err := s.RotateRefreshToken(ctx, oldID, "g-2", "hash-2", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}

	old, _ := s.GetRefreshTokenByHash(ctx, "hash-1")
	if !old.Revoked || old.ReplacedBy == nil || *old.ReplacedBy != newID {
		t.Errorf("old token not linked to new: %+v", old)
	}

	// a second rotation of the same token loses
	if _, err := s.RotateRefreshToken(ctx, oldID, "g-2", "hash-3", now.Add(time.Hour)); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound on double rotate, got %v", err)
	}

	if err := s.RevokeAllRefreshTokens(ctx, "g-2"); err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	cur, _ := s.GetRefreshTokenByHash(ctx, "hash-2")
	if !cur.Revoked {
		t.Error("expected current token revoked")
	}

	n, err := s.DeleteStaleRefreshTokens(ctx, now.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 swept, got %d", n)
	}
}

package coordination_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"yakssok-api/internal/coordination"
	"yakssok-api/internal/model"
	"yakssok-api/internal/store"
	"yakssok-api/internal/store/memstore"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := coordination.ParseDay(s)
	if err != nil {
		t.Fatalf("parse %s: %v", s, err)
	}
	return d
}

func ptr[T any](v T) *T { return &v }

// fixedCodes hands out codes in order and fails once they run out.
func fixedCodes(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if i >= len(codes) {
			return "", errors.New("out of codes")
		}
		i++
		return codes[i-1], nil
	}
}

func newService(t *testing.T, opts ...coordination.Option) (*coordination.Service, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	return coordination.New(st, opts...), st
}

func createRange(t *testing.T, svc *coordination.Service, creator string, max *int) *model.AppointmentDetail {
	t.Helper()
	d, err := svc.CreateAppointment(context.Background(), coordination.CreateInput{
		Name:            "Team Lunch",
		CreatorID:       creator,
		MaxParticipants: max,
		StartDate:       ptr(day(t, "2024-01-01")),
		EndDate:         ptr(day(t, "2024-01-03")),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return d
}

// ----- create -----

func TestCreateAppointmentRange(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	d := createRange(t, svc, "alice", nil)

	if d.Status != model.StatusVoting {
		t.Errorf("expected VOTING, got %s", d.Status)
	}
	if len(d.InviteCode) != 8 {
		t.Errorf("expected 8 char invite code, got %q", d.InviteCode)
	}

	want := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
	if len(d.CandidateDates) != len(want) {
		t.Fatalf("expected %d dates, got %d", len(want), len(d.CandidateDates))
	}
	for i, cd := range d.CandidateDates {
		if got := cd.Date.Format(coordination.DayLayout); got != want[i] {
			t.Errorf("date %d: expected %s, got %s", i, want[i], got)
		}
	}

	parts, err := st.Participations(ctx, d.ID)
	if err != nil {
		t.Fatalf("participations: %v", err)
	}
	if len(parts) != 1 {
		t.Fatalf("expected creator only, got %d participations", len(parts))
	}
	if parts[0].UserID != "alice" || parts[0].Status != model.Attending {
		t.Errorf("unexpected creator participation: %+v", parts[0])
	}
}

func TestCreateAppointmentExplicitDates(t *testing.T) {
	svc, _ := newService(t)

	d, err := svc.CreateAppointment(context.Background(), coordination.CreateInput{
		Name:      "Dinner",
		CreatorID: "alice",
		CandidateDates: []time.Time{
			day(t, "2024-05-03"),
			day(t, "2024-05-01"),
			day(t, "2024-05-03"),
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if len(d.CandidateDates) != 2 {
		t.Fatalf("expected duplicates dropped, got %d dates", len(d.CandidateDates))
	}
	if d.CandidateDates[0].Date.Format(coordination.DayLayout) != "2024-05-01" {
		t.Errorf("expected ascending order, got %v", d.CandidateDates)
	}
}

func TestCreateAppointmentValidation(t *testing.T) {
	tests := []struct {
		name string
		in   coordination.CreateInput
		want error
	}{
		{"empty name", coordination.CreateInput{Name: "  ", CreatorID: "a", CandidateDates: []time.Time{time.Now()}}, coordination.ErrInvalidInput},
		{"no creator", coordination.CreateInput{Name: "x", CandidateDates: []time.Time{time.Now()}}, coordination.ErrInvalidInput},
		{"no dates", coordination.CreateInput{Name: "x", CreatorID: "a"}, coordination.ErrInvalidInput},
		{"zero cap", coordination.CreateInput{Name: "x", CreatorID: "a", MaxParticipants: ptr(0), CandidateDates: []time.Time{time.Now()}}, coordination.ErrInvalidInput},
		{"cap past int4", coordination.CreateInput{Name: "x", CreatorID: "a", MaxParticipants: ptr(tooBig()), CandidateDates: []time.Time{time.Now()}}, coordination.ErrInvalidInput},
		{"long name", coordination.CreateInput{Name: strings.Repeat("약", coordination.MaxNameLength+1), CreatorID: "a", CandidateDates: []time.Time{time.Now()}}, coordination.ErrInvalidInput},
		{"start only", coordination.CreateInput{Name: "x", CreatorID: "a", StartDate: ptr(time.Now())}, coordination.ErrInvalidInput},
		{"both shapes", coordination.CreateInput{
			Name: "x", CreatorID: "a",
			CandidateDates: []time.Time{time.Now()},
			StartDate:      ptr(time.Now()), EndDate: ptr(time.Now()),
		}, coordination.ErrInvalidInput},
		{"end before start", coordination.CreateInput{
			Name: "x", CreatorID: "a",
			StartDate: ptr(time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)),
			EndDate:   ptr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
		}, coordination.ErrInvalidDateRange},
		{"range too long", coordination.CreateInput{
			Name: "x", CreatorID: "a",
			StartDate: ptr(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			EndDate:   ptr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		}, coordination.ErrDateRangeTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, st := newService(t, coordination.WithCodeGenerator(fixedCodes("AAAA0001")))
			_, err := svc.CreateAppointment(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			// nothing written
			if exists, _ := st.InviteCodeExists(context.Background(), "AAAA0001"); exists {
				t.Error("appointment written despite validation failure")
			}
		})
	}
}

func tooBig() int {
	n := coordination.MaxParticipantsCap
	return n + 1
}

func TestCreateAppointmentLimitsInclusive(t *testing.T) {
	svc, _ := newService(t)
	d, err := svc.CreateAppointment(context.Background(), coordination.CreateInput{
		Name:            strings.Repeat("약", coordination.MaxNameLength),
		CreatorID:       "a",
		MaxParticipants: ptr(coordination.MaxParticipantsCap),
		CandidateDates:  []time.Time{day(t, "2024-01-01")},
	})
	if err != nil {
		t.Fatalf("create at the limits: %v", err)
	}
	if *d.MaxParticipants != coordination.MaxParticipantsCap {
		t.Errorf("cap = %d", *d.MaxParticipants)
	}
}

func TestCreateAppointmentLeapYearRange(t *testing.T) {
	svc, _ := newService(t)
	d, err := svc.CreateAppointment(context.Background(), coordination.CreateInput{
		Name:      "year",
		CreatorID: "a",
		StartDate: ptr(day(t, "2024-01-01")),
		EndDate:   ptr(day(t, "2024-12-31")),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(d.CandidateDates) != coordination.MaxCandidateDates {
		t.Errorf("expected %d dates, got %d", coordination.MaxCandidateDates, len(d.CandidateDates))
	}
}

func TestCreateAppointmentRetriesTakenCode(t *testing.T) {
	svc, _ := newService(t, coordination.WithCodeGenerator(fixedCodes("DUPL0001", "DUPL0001", "FRESH001")))

	first := createRange(t, svc, "alice", nil)
	second := createRange(t, svc, "bob", nil)

	if first.InviteCode != "DUPL0001" {
		t.Errorf("expected first code DUPL0001, got %s", first.InviteCode)
	}
	if second.InviteCode != "FRESH001" {
		t.Errorf("expected retry to land on FRESH001, got %s", second.InviteCode)
	}
}

// blindRepo hides existing codes from the pre-check so only the unique
// constraint can catch a collision.
type blindRepo struct{ *memstore.Store }

type blindQuerier struct{ store.Querier }

func (blindQuerier) InviteCodeExists(context.Context, string) (bool, error) { return false, nil }

func (r blindRepo) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	return r.Store.InTx(ctx, func(q store.Querier) error { return fn(blindQuerier{q}) })
}

func TestCreateAppointmentRetriesOnConstraint(t *testing.T) {
	st := memstore.New()
	svc := coordination.New(blindRepo{st}, coordination.WithCodeGenerator(fixedCodes("SAME0001", "SAME0001", "NEXT0001")))

	createRange(t, svc, "alice", nil)
	second := createRange(t, svc, "bob", nil)
	if second.InviteCode != "NEXT0001" {
		t.Errorf("expected NEXT0001 after constraint hit, got %s", second.InviteCode)
	}

	// the failed attempt rolled back completely
	parts, _ := st.Participations(context.Background(), 1)
	if len(parts) != 1 {
		t.Errorf("expected 1 participation on first appointment, got %d", len(parts))
	}
}

func TestCreateAppointmentCodeExhausted(t *testing.T) {
	svc, _ := newService(t,
		coordination.WithCodeGenerator(func() (string, error) { return "STUCK001", nil }),
		coordination.WithMaxCodeAttempts(3),
	)

	createRange(t, svc, "alice", nil)
	_, err := svc.CreateAppointment(context.Background(), coordination.CreateInput{
		Name: "again", CreatorID: "bob", CandidateDates: []time.Time{day(t, "2024-01-01")},
	})
	if !errors.Is(err, coordination.ErrInviteCodeExhausted) {
		t.Fatalf("expected ErrInviteCodeExhausted, got %v", err)
	}
}

func TestCreateAppointmentUniqueCodes(t *testing.T) {
	svc, _ := newService(t)
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		d := createRange(t, svc, fmt.Sprintf("user-%d", i), nil)
		if seen[d.InviteCode] {
			t.Fatalf("duplicate invite code %s", d.InviteCode)
		}
		seen[d.InviteCode] = true
	}
}

// ----- lookup -----

func TestAppointmentByInviteCode(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)

	got, err := svc.AppointmentByInviteCode(ctx, created.InviteCode)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.ID != created.ID || len(got.CandidateDates) != 3 {
		t.Errorf("unexpected detail: %+v", got)
	}

	tests := []string{"NEVER123", "", "bad code!", "toolongtoolongtoolongtoolongtoolong"}
	for _, code := range tests {
		t.Run(code, func(t *testing.T) {
			_, err := svc.AppointmentByInviteCode(ctx, code)
			if !errors.Is(err, coordination.ErrNotFound) {
				t.Errorf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestCandidateDates(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)

	dates, err := svc.CandidateDates(ctx, created.ID)
	if err != nil {
		t.Fatalf("dates: %v", err)
	}
	if len(dates) != 3 {
		t.Fatalf("expected 3 dates, got %d", len(dates))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i-1].Date.Before(dates[i].Date) {
			t.Errorf("dates not ascending at %d", i)
		}
	}

	byCode, err := svc.CandidateDatesByInviteCode(ctx, created.InviteCode)
	if err != nil {
		t.Fatalf("dates by code: %v", err)
	}
	if len(byCode) != 3 {
		t.Errorf("expected 3 dates by code, got %d", len(byCode))
	}
}

// ----- join -----

func TestJoinAppointment(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)

	p, err := svc.JoinAppointment(ctx, created.InviteCode, "bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if p.Status != model.Attending || p.AppointmentID != created.ID {
		t.Errorf("unexpected participation: %+v", p)
	}

	// lowercase codes resolve too
	if _, err := svc.JoinAppointment(ctx, "  "+lower(created.InviteCode), "carol"); err != nil {
		t.Errorf("join with lowercase code: %v", err)
	}
}

func lower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}

func TestJoinAppointmentErrors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)

	t.Run("not found", func(t *testing.T) {
		_, err := svc.JoinAppointment(ctx, "NOPE0000", "bob")
		if !errors.Is(err, coordination.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("creator already joined", func(t *testing.T) {
		_, err := svc.JoinAppointment(ctx, created.InviteCode, "alice")
		if !errors.Is(err, coordination.ErrAlreadyJoined) {
			t.Errorf("expected ErrAlreadyJoined, got %v", err)
		}
	})

	t.Run("second join", func(t *testing.T) {
		if _, err := svc.JoinAppointment(ctx, created.InviteCode, "bob"); err != nil {
			t.Fatalf("first join: %v", err)
		}
		_, err := svc.JoinAppointment(ctx, created.InviteCode, "bob")
		if !errors.Is(err, coordination.ErrAlreadyJoined) {
			t.Errorf("expected ErrAlreadyJoined, got %v", err)
		}
	})

	t.Run("not voting", func(t *testing.T) {
		if _, err := svc.SetStatus(ctx, created.InviteCode, "alice", model.StatusConfirmed); err != nil {
			t.Fatalf("confirm: %v", err)
		}
		_, err := svc.JoinAppointment(ctx, created.InviteCode, "dave")
		if !errors.Is(err, coordination.ErrNotJoinable) {
			t.Errorf("expected ErrNotJoinable, got %v", err)
		}
	})
}

func TestJoinAppointmentCapacity(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", ptr(2))

	if _, err := svc.JoinAppointment(ctx, created.InviteCode, "bob"); err != nil {
		t.Fatalf("join within cap: %v", err)
	}
	_, err := svc.JoinAppointment(ctx, created.InviteCode, "carol")
	if !errors.Is(err, coordination.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}

	n, _ := st.CountParticipations(ctx, created.ID)
	if n != 2 {
		t.Errorf("expected 2 participations, got %d", n)
	}
}

func TestJoinAppointmentUnlimited(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)

	for i := 0; i < 25; i++ {
		if _, err := svc.JoinAppointment(ctx, created.InviteCode, fmt.Sprintf("user-%d", i)); err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
	}
	n, _ := st.CountParticipations(ctx, created.ID)
	if n != 26 {
		t.Errorf("expected 26 participations, got %d", n)
	}
}

func TestJoinAppointmentConcurrent(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", ptr(5))

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.JoinAppointment(ctx, created.InviteCode, fmt.Sprintf("user-%d", i))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	ok, full := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, coordination.ErrCapacityExceeded):
			full++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 4 || full != n-4 {
		t.Errorf("expected 4 joins and %d rejections, got %d and %d", n-4, ok, full)
	}
	count, _ := st.CountParticipations(ctx, created.ID)
	if count != 5 {
		t.Errorf("expected 5 participations, got %d", count)
	}
}

func TestJoinAppointmentConcurrentSameUser(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)

	const n = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.JoinAppointment(ctx, created.InviteCode, "bob")
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			} else if !errors.Is(err, coordination.ErrAlreadyJoined) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if ok != 1 {
		t.Errorf("expected exactly 1 successful join, got %d", ok)
	}
	count, _ := st.CountParticipations(ctx, created.ID)
	if count != 2 {
		t.Errorf("expected 2 participations, got %d", count)
	}
}

// ----- voting and lifecycle -----

func TestUpdateParticipation(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)
	if _, err := svc.JoinAppointment(ctx, created.InviteCode, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	slots := `{"2024-01-02":["18:00"]}`
	p, err := svc.UpdateParticipation(ctx, created.InviteCode, "bob", coordination.ParticipationUpdate{
		Status:         ptr(model.Maybe),
		AvailableSlots: &slots,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if p.Status != model.Maybe {
		t.Errorf("expected MAYBE, got %s", p.Status)
	}
	if p.AvailableSlots == nil || *p.AvailableSlots != slots {
		t.Errorf("slots not stored verbatim: %v", p.AvailableSlots)
	}

	// status only leaves slots alone
	p, err = svc.UpdateParticipation(ctx, created.InviteCode, "bob", coordination.ParticipationUpdate{
		Status: ptr(model.NotAttending),
	})
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if p.AvailableSlots == nil || *p.AvailableSlots != slots {
		t.Errorf("slots lost on status-only update")
	}
}

func TestUpdateParticipationErrors(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)

	tests := []struct {
		name string
		code string
		user string
		upd  coordination.ParticipationUpdate
		want error
	}{
		{"empty update", created.InviteCode, "alice", coordination.ParticipationUpdate{}, coordination.ErrInvalidInput},
		{"bad status", created.InviteCode, "alice", coordination.ParticipationUpdate{Status: ptr(model.AttendanceStatus("SOMETIMES"))}, coordination.ErrInvalidInput},
		{"unknown code", "NOPE0000", "alice", coordination.ParticipationUpdate{Status: ptr(model.Maybe)}, coordination.ErrNotFound},
		{"not participant", created.InviteCode, "mallory", coordination.ParticipationUpdate{Status: ptr(model.Maybe)}, coordination.ErrNotParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateParticipation(ctx, tt.code, tt.user, tt.upd)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	t.Run("canceled", func(t *testing.T) {
		if _, err := svc.SetStatus(ctx, created.InviteCode, "alice", model.StatusCanceled); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		_, err := svc.UpdateParticipation(ctx, created.InviteCode, "alice", coordination.ParticipationUpdate{Status: ptr(model.Maybe)})
		if !errors.Is(err, coordination.ErrNotJoinable) {
			t.Errorf("expected ErrNotJoinable, got %v", err)
		}
	})
}

func TestParticipations(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created := createRange(t, svc, "alice", nil)
	if _, err := svc.JoinAppointment(ctx, created.InviteCode, "bob"); err != nil {
		t.Fatalf("join: %v", err)
	}

	parts, err := svc.Participations(ctx, created.InviteCode, "bob")
	if err != nil {
		t.Fatalf("participations: %v", err)
	}
	if len(parts) != 2 || parts[0].UserID != "alice" || parts[1].UserID != "bob" {
		t.Errorf("unexpected participations: %+v", parts)
	}

	if _, err := svc.Participations(ctx, created.InviteCode, "mallory"); !errors.Is(err, coordination.ErrNotParticipant) {
		t.Errorf("expected ErrNotParticipant, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		user string
		to   model.AppointmentStatus
		want error
	}{
		{"confirm", "alice", model.StatusConfirmed, nil},
		{"cancel", "alice", model.StatusCanceled, nil},
		{"not creator", "bob", model.StatusConfirmed, coordination.ErrForbidden},
		{"voting to voting", "alice", model.StatusVoting, coordination.ErrInvalidTransition},
		{"unknown status", "alice", model.AppointmentStatus("DONE"), coordination.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newService(t)
			created := createRange(t, svc, "alice", nil)

			a, err := svc.SetStatus(ctx, created.InviteCode, tt.user, tt.to)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.want == nil && a.Status != tt.to {
				t.Errorf("expected %s, got %s", tt.to, a.Status)
			}
		})
	}

	t.Run("closed stays closed", func(t *testing.T) {
		svc, _ := newService(t)
		created := createRange(t, svc, "alice", nil)
		if _, err := svc.SetStatus(ctx, created.InviteCode, "alice", model.StatusCanceled); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		_, err := svc.SetStatus(ctx, created.InviteCode, "alice", model.StatusConfirmed)
		if !errors.Is(err, coordination.ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		got, _ := svc.AppointmentByInviteCode(ctx, created.InviteCode)
		if got.Status != model.StatusCanceled {
			t.Errorf("status changed to %s", got.Status)
		}
	})
}

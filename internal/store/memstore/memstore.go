// Package memstore is an in-process persistence gateway with the same
// contract as the Postgres store: unique constraints are reported as
// *store.UniqueViolation and InTx is all-or-nothing. One mutex serialises
// every call, so a transaction sees no concurrent writer. InTx snapshots
// the whole dataset, which makes this store fit for development and tests
// only.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"yakssok-api/internal/model"
	"yakssok-api/internal/store"
)

var errDuplicate = errors.New("memstore: duplicate key")

var (
	_ store.Querier = (*Store)(nil)
	_ store.Querier = (*tx)(nil)
)

type state struct {
	appointments   map[int64]model.Appointment
	dates          map[int64]model.AppointmentDate
	participations map[int64]model.Participation
	users          map[string]model.User
	tokens         map[string]model.RefreshToken

	apptSeq, dateSeq, partSeq int64
}

func newState() *state {
	return &state{
		appointments:   make(map[int64]model.Appointment),
		dates:          make(map[int64]model.AppointmentDate),
		participations: make(map[int64]model.Participation),
		users:          make(map[string]model.User),
		tokens:         make(map[string]model.RefreshToken),
	}
}

func (st *state) clone() *state {
	c := &state{
		appointments:   make(map[int64]model.Appointment, len(st.appointments)),
		dates:          make(map[int64]model.AppointmentDate, len(st.dates)),
		participations: make(map[int64]model.Participation, len(st.participations)),
		users:          make(map[string]model.User, len(st.users)),
		tokens:         make(map[string]model.RefreshToken, len(st.tokens)),
		apptSeq:        st.apptSeq,
		dateSeq:        st.dateSeq,
		partSeq:        st.partSeq,
	}
	for k, v := range st.appointments {
		c.appointments[k] = v
	}
	for k, v := range st.dates {
		c.dates[k] = v
	}
	for k, v := range st.participations {
		c.participations[k] = v
	}
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.tokens {
		c.tokens[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	st *state
	// now is swappable so tests can age tokens
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Ping(context.Context) error { return nil }

// InTx runs fn against a private copy of the data and publishes it only when
// fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(q store.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work, now: s.now}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work
	return nil
}

func (s *Store) view() *tx {
	return &tx{st: s.st, now: s.now}
}

// ----- Querier, outside a transaction -----

func (s *Store) InviteCodeExists(ctx context.Context, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InviteCodeExists(ctx, code)
}

func (s *Store) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InsertAppointment(ctx, a)
}

func (s *Store) InsertCandidateDates(ctx context.Context, appointmentID int64, dates []time.Time) ([]model.AppointmentDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// a batch either lands whole or not at all, like a statement in Postgres
	work := s.st.clone()
	out, err := (&tx{st: work, now: s.now}).InsertCandidateDates(ctx, appointmentID, dates)
	if err != nil {
		return nil, err
	}
	s.st = work
	return out, nil
}

func (s *Store) InsertParticipation(ctx context.Context, p *model.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().InsertParticipation(ctx, p)
}

func (s *Store) AppointmentByInviteCode(ctx context.Context, code string) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().AppointmentByInviteCode(ctx, code)
}

func (s *Store) LockAppointmentByInviteCode(ctx context.Context, code string) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().LockAppointmentByInviteCode(ctx, code)
}

func (s *Store) CandidateDates(ctx context.Context, appointmentID int64) ([]model.AppointmentDate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CandidateDates(ctx, appointmentID)
}

func (s *Store) ParticipationFor(ctx context.Context, appointmentID int64, userID string) (*model.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().ParticipationFor(ctx, appointmentID, userID)
}

func (s *Store) CountParticipations(ctx context.Context, appointmentID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().CountParticipations(ctx, appointmentID)
}

func (s *Store) Participations(ctx context.Context, appointmentID int64) ([]model.Participation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().Participations(ctx, appointmentID)
}

func (s *Store) UpdateParticipation(ctx context.Context, p *model.Participation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateParticipation(ctx, p)
}

func (s *Store) UpdateAppointmentStatus(ctx context.Context, id int64, status model.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view().UpdateAppointmentStatus(ctx, id, status)
}

// ----- users -----

func (s *Store) UpsertGoogleUser(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if cur, ok := s.st.users[u.ID]; ok {
		if u.GoogleRefreshToken == "" {
			u.GoogleRefreshToken = cur.GoogleRefreshToken
		}
		u.CreatedAt = cur.CreatedAt
	} else {
		for _, other := range s.st.users {
			if other.Email == u.Email {
				return &store.UniqueViolation{Constraint: "users_email_key", Err: errDuplicate}
			}
		}
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	s.st.users[u.ID] = *u
	return nil
}

func (s *Store) UserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &u, nil
}

// ----- refresh tokens -----

func (s *Store) CreateRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertToken(userID, tokenHash, expiresAt)
}

func (s *Store) insertToken(userID, tokenHash string, expiresAt time.Time) (string, error) {
	if _, ok := s.st.users[userID]; !ok {
		return "", errors.New("memstore: refresh token for unknown user")
	}
	for _, t := range s.st.tokens {
		if t.TokenHash == tokenHash {
			return "", &store.UniqueViolation{Constraint: "refresh_tokens_token_hash_key", Err: errDuplicate}
		}
	}
	id := uuid.New().String()
	s.st.tokens[id] = model.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: s.now().UTC(),
	}
	return id, nil
}

func (s *Store) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*model.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.st.tokens {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) RotateRefreshToken(_ context.Context, oldID, userID, newHash string, newExpiry time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.st.tokens[oldID]
	if !ok || old.Revoked {
		return "", store.ErrNotFound
	}
	newID, err := s.insertToken(userID, newHash, newExpiry)
	if err != nil {
		return "", err
	}
	old.Revoked = true
	old.ReplacedBy = &newID
	s.st.tokens[oldID] = old
	return newID, nil
}

func (s *Store) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.st.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			s.st.tokens[id] = t
		}
	}
	return nil
}

func (s *Store) DeleteStaleRefreshTokens(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.st.tokens {
		if t.ExpiresAt.Before(cutoff) || (t.Revoked && t.CreatedAt.Before(cutoff)) {
			delete(s.st.tokens, id)
			n++
		}
	}
	return n, nil
}

// ----- transaction view -----

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) InviteCodeExists(_ context.Context, code string) (bool, error) {
	for _, a := range t.st.appointments {
		if a.InviteCode == code {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertAppointment(ctx context.Context, a *model.Appointment) error {
	if taken, _ := t.InviteCodeExists(ctx, a.InviteCode); taken {
		return &store.UniqueViolation{Constraint: store.ConstraintInviteCode, Err: errDuplicate}
	}
	t.st.apptSeq++
	a.ID = t.st.apptSeq
	a.CreatedAt = t.now().UTC()
	t.st.appointments[a.ID] = *a
	return nil
}

func (t *tx) InsertCandidateDates(_ context.Context, appointmentID int64, dates []time.Time) ([]model.AppointmentDate, error) {
	if _, ok := t.st.appointments[appointmentID]; !ok {
		return nil, errors.New("memstore: candidate date for unknown appointment")
	}
	out := make([]model.AppointmentDate, 0, len(dates))
	for _, d := range dates {
		for _, existing := range t.st.dates {
			if existing.AppointmentID == appointmentID && existing.Date.Equal(d) {
				return nil, &store.UniqueViolation{Constraint: store.ConstraintCandidateDate, Err: errDuplicate}
			}
		}
		t.st.dateSeq++
		ad := model.AppointmentDate{ID: t.st.dateSeq, AppointmentID: appointmentID, Date: d.UTC()}
		t.st.dates[ad.ID] = ad
		out = append(out, ad)
	}
	return out, nil
}

func (t *tx) InsertParticipation(_ context.Context, p *model.Participation) error {
	if _, ok := t.st.appointments[p.AppointmentID]; !ok {
		return errors.New("memstore: participation for unknown appointment")
	}
	for _, existing := range t.st.participations {
		if existing.AppointmentID == p.AppointmentID && existing.UserID == p.UserID {
			return &store.UniqueViolation{Constraint: store.ConstraintParticipant, Err: errDuplicate}
		}
	}
	if p.Status == "" {
		p.Status = model.Attending
	}
	t.st.partSeq++
	p.ID = t.st.partSeq
	p.UpdatedAt = t.now().UTC()
	t.st.participations[p.ID] = *p
	return nil
}

func (t *tx) AppointmentByInviteCode(_ context.Context, code string) (*model.Appointment, error) {
	for _, a := range t.st.appointments {
		if a.InviteCode == code {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

// LockAppointmentByInviteCode is a plain read: the store mutex already
// serialises transactions.
func (t *tx) LockAppointmentByInviteCode(ctx context.Context, code string) (*model.Appointment, error) {
	return t.AppointmentByInviteCode(ctx, code)
}

func (t *tx) CandidateDates(_ context.Context, appointmentID int64) ([]model.AppointmentDate, error) {
	out := []model.AppointmentDate{}
	for _, d := range t.st.dates {
		if d.AppointmentID == appointmentID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *tx) ParticipationFor(_ context.Context, appointmentID int64, userID string) (*model.Participation, error) {
	for _, p := range t.st.participations {
		if p.AppointmentID == appointmentID && p.UserID == userID {
			return &p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *tx) CountParticipations(_ context.Context, appointmentID int64) (int, error) {
	n := 0
	for _, p := range t.st.participations {
		if p.AppointmentID == appointmentID {
			n++
		}
	}
	return n, nil
}

func (t *tx) Participations(_ context.Context, appointmentID int64) ([]model.Participation, error) {
	out := []model.Participation{}
	for _, p := range t.st.participations {
		if p.AppointmentID == appointmentID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) UpdateParticipation(_ context.Context, p *model.Participation) error {
	cur, ok := t.st.participations[p.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.Status = p.Status
	cur.AvailableSlots = p.AvailableSlots
	cur.UpdatedAt = t.now().UTC()
	t.st.participations[p.ID] = cur
	p.UpdatedAt = cur.UpdatedAt
	return nil
}

func (t *tx) UpdateAppointmentStatus(_ context.Context, id int64, status model.AppointmentStatus) error {
	a, ok := t.st.appointments[id]
	if !ok {
		return store.ErrNotFound
	}
	a.Status = status
	t.st.appointments[id] = a
	return nil
}

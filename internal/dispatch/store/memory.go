package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"mission-dispatch/internal/models"
)

// MemoryStore keeps dispatch state in process. It is used by tests and by the
// local development profile.
type MemoryStore struct {
	mu       sync.RWMutex
	missions map[string]models.Mission
	offers   map[string]map[string]models.Offer
	profiles map[string]models.WorkerProfile

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		missions: make(map[string]models.Mission),
		offers:   make(map[string]map[string]models.Offer),
		profiles: make(map[string]models.WorkerProfile),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) missionLock(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) GetMission(ctx context.Context, id string) (*models.Mission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.missions[id]
	if !ok {
		return nil, ErrMissionNotFound
	}
	return &m, nil
}

func (s *MemoryStore) CreateMission(ctx context.Context, m models.Mission) error {
	if !m.Status.Valid() {
		return fmt.Errorf("create mission: invalid status %q", m.Status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.missions[m.ID]; exists {
		return fmt.Errorf("create mission: %s already exists", m.ID)
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	s.missions[m.ID] = m
	return nil
}

// WithMissionLock stages changes on copies and publishes them only when fn succeeds.
func (s *MemoryStore) WithMissionLock(ctx context.Context, missionID string, fn func(ctx context.Context, tx MissionTx) error) error {
	lock := s.missionLock(missionID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	m, ok := s.missions[missionID]
	staged := make(map[string]models.Offer, len(s.offers[missionID]))
	for k, v := range s.offers[missionID] {
		staged[k] = v
	}
	s.mu.RUnlock()
	if !ok {
		return ErrMissionNotFound
	}

	tx := &memMissionTx{mission: m, offers: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.missions[missionID] = tx.mission
	s.offers[missionID] = tx.offers
	s.mu.Unlock()
	return nil
}

type memMissionTx struct {
	mission models.Mission
	offers  map[string]models.Offer
}

func (t *memMissionTx) Mission() models.Mission {
	return t.mission
}

func (t *memMissionTx) Offer(ctx context.Context, candidateID string) (*models.Offer, error) {
	o, ok := t.offers[candidateID]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (t *memMissionTx) ReplaceOffers(ctx context.Context, candidateIDs []string, sentAt, expiresAt time.Time) (int, error) {
	t.offers = make(map[string]models.Offer, len(candidateIDs))
	for _, id := range candidateIDs {
		if _, dup := t.offers[id]; dup {
			return 0, fmt.Errorf("insert offers: duplicate candidate %s", id)
		}
		t.offers[id] = models.Offer{
			MissionID:   t.mission.ID,
			CandidateID: id,
			SentAt:      sentAt,
			ExpiresAt:   expiresAt,
		}
	}
	return len(t.offers), nil
}

func (t *memMissionTx) UpdateMission(ctx context.Context, status models.MissionStatus, assignedWorkerID *string, now time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("update mission: invalid status %q", status)
	}
	t.mission.Status = status
	t.mission.AssignedWorkerID = assignedWorkerID
	t.mission.Version++
	t.mission.UpdatedAt = now
	return nil
}

func (t *memMissionTx) AcceptOffer(ctx context.Context, candidateID string, at time.Time) error {
	o, ok := t.offers[candidateID]
	if !ok || o.RefusedAt != nil {
		return ErrOfferNotFound
	}
	for id, other := range t.offers {
		if id != candidateID && other.AcceptedAt != nil {
			return fmt.Errorf("accept offer: mission %s already has an accepted offer", t.mission.ID)
		}
	}
	o.AcceptedAt = &at
	t.offers[candidateID] = o
	return nil
}

func (t *memMissionTx) ClearAcceptance(ctx context.Context) error {
	for id, o := range t.offers {
		if o.AcceptedAt != nil {
			o.AcceptedAt = nil
			t.offers[id] = o
		}
	}
	return nil
}

func (t *memMissionTx) RefuseOffer(ctx context.Context, candidateID string, at time.Time) error {
	o, ok := t.offers[candidateID]
	if !ok || o.AcceptedAt != nil {
		return ErrOfferNotFound
	}
	o.RefusedAt = &at
	t.offers[candidateID] = o
	return nil
}

func (s *MemoryStore) ListOffersForCandidate(ctx context.Context, candidateID string) ([]models.OfferWithMission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.OfferWithMission
	for missionID, offers := range s.offers {
		if o, ok := offers[candidateID]; ok {
			out = append(out, models.OfferWithMission{Offer: o, Mission: s.missions[missionID]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Offer.SentAt.Equal(out[j].Offer.SentAt) {
			return out[i].Offer.SentAt.After(out[j].Offer.SentAt)
		}
		return out[i].Offer.MissionID < out[j].Offer.MissionID
	})
	return out, nil
}

func (s *MemoryStore) ListOffersForMission(ctx context.Context, missionID string) ([]models.OfferWithMission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := s.missions[missionID]
	out := make([]models.OfferWithMission, 0, len(s.offers[missionID]))
	for _, o := range s.offers[missionID] {
		out = append(out, models.OfferWithMission{Offer: o, Mission: m})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offer.CandidateID < out[j].Offer.CandidateID })
	return out, nil
}

// MarkExpiredOffers takes each mission's lock in turn so a sweep never races a
// locked change that is about to commit its staged offers.
func (s *MemoryStore) MarkExpiredOffers(ctx context.Context, now time.Time) ([]models.Offer, error) {
	s.mu.RLock()
	missionIDs := make([]string, 0, len(s.offers))
	for id := range s.offers {
		missionIDs = append(missionIDs, id)
	}
	s.mu.RUnlock()
	sort.Strings(missionIDs)

	var out []models.Offer
	for _, missionID := range missionIDs {
		lock := s.missionLock(missionID)
		lock.Lock()
		s.mu.Lock()
		for id, o := range s.offers[missionID] {
			if o.Expired || o.AcceptedAt != nil || o.RefusedAt != nil || o.ExpiresAt.After(now) {
				continue
			}
			o.Expired = true
			s.offers[missionID][id] = o
			out = append(out, o)
		}
		s.mu.Unlock()
		lock.Unlock()
	}
	return out, nil
}

func (s *MemoryStore) ListWorkerProfiles(ctx context.Context, roles []models.WorkerRole) ([]models.WorkerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.WorkerProfile
	for _, p := range s.profiles {
		if !p.Active {
			continue
		}
		for _, r := range roles {
			if p.Role == r {
				out = append(out, p)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpsertWorkerProfile(ctx context.Context, p models.WorkerProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

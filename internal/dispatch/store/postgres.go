package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"mission-dispatch/internal/common/database"
	"mission-dispatch/internal/models"

	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

const missionColumns = `m.id, m.title, m.status, m.skill_tag, m.audience, m.address, m.city,
	m.latitude, m.longitude, m.assigned_worker_id, m.created_by, m.version, m.created_at, m.updated_at`

const offerColumns = `o.mission_id, o.candidate_id, o.sent_at, o.expires_at, o.expired, o.accepted_at, o.refused_at`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the dispatch schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply dispatch schema: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMission(row scanner, extra ...interface{}) (*models.Mission, error) {
	var (
		m        models.Mission
		status   string
		audience string
		assigned sql.NullString
	)
	dest := append([]interface{}{
		&m.ID, &m.Title, &status, &m.SkillTag, &audience, &m.Address, &m.City,
		&m.Latitude, &m.Longitude, &assigned, &m.CreatedBy, &m.Version, &m.CreatedAt, &m.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	var err error
	if m.Status, err = models.ParseMissionStatus(status); err != nil {
		return nil, fmt.Errorf("mission %s: %w", m.ID, err)
	}
	if m.Audience, err = models.ParseAudience(audience); err != nil {
		return nil, fmt.Errorf("mission %s: %w", m.ID, err)
	}
	if assigned.Valid {
		id := assigned.String
		m.AssignedWorkerID = &id
	}
	return &m, nil
}

type offerScan struct {
	offer             models.Offer
	accepted, refused sql.NullTime
}

func (o *offerScan) dest() []interface{} {
	return []interface{}{
		&o.offer.MissionID, &o.offer.CandidateID, &o.offer.SentAt, &o.offer.ExpiresAt,
		&o.offer.Expired, &o.accepted, &o.refused,
	}
}

func (o *offerScan) result() models.Offer {
	if o.accepted.Valid {
		t := o.accepted.Time
		o.offer.AcceptedAt = &t
	}
	if o.refused.Valid {
		t := o.refused.Time
		o.offer.RefusedAt = &t
	}
	return o.offer
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func (s *PostgresStore) GetMission(ctx context.Context, id string) (*models.Mission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions m WHERE m.id = $1`, id)
	m, err := scanMission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get mission: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) CreateMission(ctx context.Context, m models.Mission) error {
	if !m.Status.Valid() {
		return fmt.Errorf("create mission: invalid status %q", m.Status)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO missions (id, title, status, skill_tag, audience, address, city,
			latitude, longitude, assigned_worker_id, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())`,
		m.ID, m.Title, string(m.Status), m.SkillTag, string(m.Audience), m.Address, m.City,
		m.Latitude, m.Longitude, nullString(m.AssignedWorkerID), m.CreatedBy,
	)
	if err != nil {
		return fmt.Errorf("create mission: %w", err)
	}
	return nil
}

// WithMissionLock holds SELECT ... FOR UPDATE on the mission row for the
// duration of fn. Concurrent callers for the same mission queue on the row lock.
func (s *PostgresStore) WithMissionLock(ctx context.Context, missionID string, fn func(ctx context.Context, tx MissionTx) error) error {
	return database.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions m WHERE m.id = $1 FOR UPDATE`, missionID)
		m, err := scanMission(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrMissionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock mission: %w", err)
		}
		return fn(ctx, &pgMissionTx{tx: tx, mission: *m})
	})
}

type pgMissionTx struct {
	tx      *sql.Tx
	mission models.Mission
}

func (t *pgMissionTx) Mission() models.Mission {
	return t.mission
}

func (t *pgMissionTx) Offer(ctx context.Context, candidateID string) (*models.Offer, error) {
	var o offerScan
	err := t.tx.QueryRowContext(ctx, `
		SELECT `+offerColumns+` FROM mission_offers o
		WHERE o.mission_id = $1 AND o.candidate_id = $2
		FOR UPDATE`, t.mission.ID, candidateID).Scan(o.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	offer := o.result()
	return &offer, nil
}

func (t *pgMissionTx) ReplaceOffers(ctx context.Context, candidateIDs []string, sentAt, expiresAt time.Time) (int, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM mission_offers WHERE mission_id = $1`, t.mission.ID); err != nil {
		return 0, fmt.Errorf("delete previous offers: %w", err)
	}
	if len(candidateIDs) == 0 {
		return 0, nil
	}

	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO mission_offers (mission_id, candidate_id, sent_at, expires_at)
		SELECT $1, candidate, $3, $4 FROM unnest($2::text[]) AS candidate`,
		t.mission.ID, pq.Array(candidateIDs), sentAt, expiresAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert offers: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert offers: %w", err)
	}
	if int(n) != len(candidateIDs) {
		return 0, fmt.Errorf("insert offers: inserted %d of %d", n, len(candidateIDs))
	}
	return int(n), nil
}

func (t *pgMissionTx) UpdateMission(ctx context.Context, status models.MissionStatus, assignedWorkerID *string, now time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("update mission: invalid status %q", status)
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE missions
		SET status = $2, assigned_worker_id = $3, version = version + 1, updated_at = $4
		WHERE id = $1`,
		t.mission.ID, string(status), nullString(assignedWorkerID), now,
	)
	if err != nil {
		return fmt.Errorf("update mission: %w", err)
	}
	t.mission.Status = status
	t.mission.AssignedWorkerID = assignedWorkerID
	t.mission.Version++
	t.mission.UpdatedAt = now
	return nil
}

func (t *pgMissionTx) AcceptOffer(ctx context.Context, candidateID string, at time.Time) error {
	return t.exec1(ctx, "accept offer", `
		UPDATE mission_offers SET accepted_at = $3
		WHERE mission_id = $1 AND candidate_id = $2 AND refused_at IS NULL`, t.mission.ID, candidateID, at)
}

func (t *pgMissionTx) ClearAcceptance(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE mission_offers SET accepted_at = NULL
		WHERE mission_id = $1 AND accepted_at IS NOT NULL`, t.mission.ID)
	if err != nil {
		return fmt.Errorf("clear acceptance: %w", err)
	}
	return nil
}

func (t *pgMissionTx) RefuseOffer(ctx context.Context, candidateID string, at time.Time) error {
	return t.exec1(ctx, "refuse offer", `
		UPDATE mission_offers SET refused_at = $3
		WHERE mission_id = $1 AND candidate_id = $2 AND accepted_at IS NULL`, t.mission.ID, candidateID, at)
}

func (t *pgMissionTx) exec1(ctx context.Context, op, query string, args ...interface{}) error {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return ErrOfferNotFound
	}
	return nil
}

func (s *PostgresStore) ListOffersForCandidate(ctx context.Context, candidateID string) ([]models.OfferWithMission, error) {
	return s.listOffers(ctx, `o.candidate_id = $1 ORDER BY o.sent_at DESC, o.mission_id`, candidateID)
}

func (s *PostgresStore) ListOffersForMission(ctx context.Context, missionID string) ([]models.OfferWithMission, error) {
	return s.listOffers(ctx, `o.mission_id = $1 ORDER BY o.candidate_id`, missionID)
}

func (s *PostgresStore) listOffers(ctx context.Context, where string, arg string) ([]models.OfferWithMission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+missionColumns+`, `+offerColumns+`
		FROM mission_offers o
		JOIN missions m ON m.id = o.mission_id
		WHERE `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var out []models.OfferWithMission
	for rows.Next() {
		var o offerScan
		m, err := scanMission(rows, o.dest()...)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, models.OfferWithMission{Offer: o.result(), Mission: *m})
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkExpiredOffers(ctx context.Context, now time.Time) ([]models.Offer, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE mission_offers o SET expired = TRUE
		WHERE o.expired = FALSE AND o.expires_at <= $1
		  AND o.accepted_at IS NULL AND o.refused_at IS NULL
		RETURNING `+offerColumns, now)
	if err != nil {
		return nil, fmt.Errorf("mark expired offers: %w", err)
	}
	defer rows.Close()

	var out []models.Offer
	for rows.Next() {
		var o offerScan
		if err := rows.Scan(o.dest()...); err != nil {
			return nil, fmt.Errorf("scan expired offer: %w", err)
		}
		out = append(out, o.result())
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListWorkerProfiles(ctx context.Context, roles []models.WorkerRole) ([]models.WorkerProfile, error) {
	roleNames := make([]string, len(roles))
	for i, r := range roles {
		roleNames[i] = string(r)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.role, p.skills, p.active,
		       COALESCE(array_agg(b.city) FILTER (WHERE b.city IS NOT NULL), '{}') AS blackout
		FROM worker_profiles p
		LEFT JOIN worker_blackouts b ON b.worker_id = p.id
		WHERE p.role = ANY($1) AND p.active
		GROUP BY p.id, p.role, p.skills, p.active
		ORDER BY p.id`, pq.Array(roleNames))
	if err != nil {
		return nil, fmt.Errorf("list worker profiles: %w", err)
	}
	defer rows.Close()

	var out []models.WorkerProfile
	for rows.Next() {
		var (
			p    models.WorkerProfile
			role string
		)
		if err := rows.Scan(&p.ID, &role, pq.Array(&p.Skills), &p.Active, pq.Array(&p.BlackoutCities)); err != nil {
			return nil, fmt.Errorf("scan worker profile: %w", err)
		}
		if p.Role, err = models.ParseWorkerRole(role); err != nil {
			return nil, fmt.Errorf("worker %s: %w", p.ID, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpsertWorkerProfile(ctx context.Context, p models.WorkerProfile) error {
	return database.InTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO worker_profiles (id, role, skills, active) VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET role = EXCLUDED.role, skills = EXCLUDED.skills, active = EXCLUDED.active`,
			p.ID, string(p.Role), pq.Array(p.Skills), p.Active); err != nil {
			return fmt.Errorf("upsert worker profile: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM worker_blackouts WHERE worker_id = $1`, p.ID); err != nil {
			return fmt.Errorf("reset blackouts: %w", err)
		}
		if len(p.BlackoutCities) > 0 {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO worker_blackouts (worker_id, city)
				SELECT DISTINCT $1, city FROM unnest($2::text[]) AS city`,
				p.ID, pq.Array(p.BlackoutCities)); err != nil {
				return fmt.Errorf("insert blackouts: %w", err)
			}
		}
		return nil
	})
}

package record

import (
	"context"
	"errors"

	"github.com/GOOTEAKIM/RunUs/internal/db"

	"github.com/google/uuid"
)

var (
	ErrNoDatabase    = errors.New("record: database not configured")
	ErrInvalidResult = errors.New("record: userId and partyId required, totals must not be negative")
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func Validate(r Result) error {
	if r.UserID == "" || r.PartyID == "" || r.Distance < 0 || r.Time < 0 || r.Kcal < 0 {
		return ErrInvalidResult
	}
	return nil
}

func (s *Service) Save(ctx context.Context, input Result) (SavedResult, error) {
	if err := Validate(input); err != nil {
		return SavedResult{}, err
	}
	if s.db == nil {
		return SavedResult{}, ErrNoDatabase
	}

	saved := SavedResult{ID: uuid.NewString(), Result: input}
	row := s.db.QueryRow(ctx, `
		INSERT INTO run_results (id, user_id, party_id, distance_m, time_sec, kcal)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at
	`, saved.ID, input.UserID, input.PartyID, input.Distance, input.Time, input.Kcal)
	if err := row.Scan(&saved.CreatedAt); err != nil {
		return SavedResult{}, err
	}
	return saved, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]SavedResult, error) {
	if s.db == nil {
		return nil, ErrNoDatabase
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, party_id, distance_m, time_sec, kcal, created_at
		FROM run_results WHERE user_id=$1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SavedResult
	for rows.Next() {
		var r SavedResult
		if err := rows.Scan(&r.ID, &r.UserID, &r.PartyID, &r.Distance, &r.Time, &r.Kcal, &r.CreatedAt); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

const pgUniqueViolation = "23505"

type GormStore struct {
	db *gorm.DB
}

// OpenPostgres connects and migrates the schema.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := db.AutoMigrate(&MatchRow{}, &QueueEntryRow{}, &VoteRow{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return NewGormStore(db), nil
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) SaveMatch(ctx context.Context, m types.Match) error {
	row, err := toMatchRow(m)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"team1", "team2", "status", "winning_team", "duration_sec", "linked_record_id", "updated_at"}),
	}).Create(&row).Error
	return mapErr(err)
}

func (s *GormStore) FindMatch(ctx context.Context, id string) (types.Match, error) {
	var row MatchRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return types.Match{}, mapErr(err)
	}
	return row.toMatch()
}

func (s *GormStore) ListActiveMatches(ctx context.Context) ([]types.Match, error) {
	var rows []MatchRow
	if err := s.db.WithContext(ctx).
		Where("status IN ?", activeStatuses).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, mapErr(err)
	}
	out := make([]types.Match, 0, len(rows))
	for _, r := range rows {
		m, err := r.toMatch()
		if err != nil {
			return nil, fmt.Errorf("decode match %s: %w", r.ID, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *GormStore) FindActiveMatchByPlayer(ctx context.Context, p types.PlayerID) (types.Match, bool, error) {
	needle, _ := json.Marshal([]string{p.String()})
	var row MatchRow
	err := s.db.WithContext(ctx).
		Where("status IN ?", activeStatuses).
		Where("team1 @> ?::jsonb OR team2 @> ?::jsonb", string(needle), string(needle)).
		Order("created_at DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Match{}, false, nil
	}
	if err != nil {
		return types.Match{}, false, mapErr(err)
	}
	m, err := row.toMatch()
	return m, err == nil, err
}

func (s *GormStore) UpdateMatchStatus(ctx context.Context, id string, status types.MatchStatus) error {
	return s.updateMatch(ctx, id, map[string]any{"status": string(status)})
}

func (s *GormStore) SaveDraft(ctx context.Context, id string, status types.MatchStatus, log json.RawMessage) error {
	return s.updateMatch(ctx, id, map[string]any{
		"status":    string(status),
		"draft_log": datatypes.JSON(log),
	})
}

func (s *GormStore) LoadDraft(ctx context.Context, id string) (json.RawMessage, error) {
	var row MatchRow
	if err := s.db.WithContext(ctx).Select("id", "draft_log").First(&row, "id = ?", id).Error; err != nil {
		return nil, mapErr(err)
	}
	return json.RawMessage(row.DraftLog), nil
}

func (s *GormStore) SaveOutcome(ctx context.Context, id string, outcome types.Outcome) error {
	return s.updateMatch(ctx, id, map[string]any{
		"status":           string(types.StatusCompleted),
		"winning_team":     string(outcome.WinningTeam),
		"duration_sec":     outcome.DurationSec,
		"linked_record_id": outcome.LinkedRecordID,
	})
}

func (s *GormStore) updateMatch(ctx context.Context, id string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&MatchRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return mapErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return types.ErrMatchNotFound
	}
	return nil
}

func (s *GormStore) SaveQueueEntry(ctx context.Context, e types.QueueEntry) error {
	row := toQueueRow(e)
	return mapErr(s.db.WithContext(ctx).Create(&row).Error)
}

func (s *GormStore) DeleteQueueEntries(ctx context.Context, players ...types.PlayerID) error {
	if len(players) == 0 {
		return nil
	}
	ids := make([]string, len(players))
	for i, p := range players {
		ids[i] = p.String()
	}
	return mapErr(s.db.WithContext(ctx).Where("player IN ?", ids).Delete(&QueueEntryRow{}).Error)
}

func (s *GormStore) ListQueueEntries(ctx context.Context) ([]types.QueueEntry, error) {
	var rows []QueueEntryRow
	if err := s.db.WithContext(ctx).Order("enqueued_at ASC").Find(&rows).Error; err != nil {
		return nil, mapErr(err)
	}
	out := make([]types.QueueEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toEntry()
	}
	return out, nil
}

func (s *GormStore) SaveVote(ctx context.Context, v types.Vote) error {
	row := VoteRow{
		MatchID:     v.MatchID,
		Player:      v.Player.String(),
		CandidateID: v.CandidateID,
		Weight:      v.Weight,
		CastAt:      v.CastAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "match_id"}, {Name: "player"}},
		DoUpdates: clause.AssignmentColumns([]string{"candidate_id", "weight", "cast_at"}),
	}).Create(&row).Error
	return mapErr(err)
}

func (s *GormStore) DeleteVote(ctx context.Context, matchID string, p types.PlayerID) error {
	return mapErr(s.db.WithContext(ctx).
		Where("match_id = ? AND player = ?", matchID, p.String()).
		Delete(&VoteRow{}).Error)
}

func (s *GormStore) ListVotes(ctx context.Context, matchID string) ([]types.Vote, error) {
	var rows []VoteRow
	if err := s.db.WithContext(ctx).Where("match_id = ?", matchID).Order("cast_at ASC").Find(&rows).Error; err != nil {
		return nil, mapErr(err)
	}
	out := make([]types.Vote, len(rows))
	for i, r := range rows {
		out[i] = types.Vote{
			MatchID:     r.MatchID,
			Player:      types.PlayerID(r.Player),
			CandidateID: r.CandidateID,
			Weight:      r.Weight,
			CastAt:      r.CastAt,
		}
	}
	return out, nil
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.ErrMatchNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

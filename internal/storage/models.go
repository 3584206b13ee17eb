package storage

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

// MatchRow is a match with its rosters, draft log and outcome.
type MatchRow struct {
	ID             string         `gorm:"primaryKey;type:uuid"`
	Team1          datatypes.JSON `gorm:"type:jsonb;not null"`
	Team2          datatypes.JSON `gorm:"type:jsonb;not null"`
	Status         string         `gorm:"type:varchar(32);index;not null"`
	DraftLog       datatypes.JSON `gorm:"type:jsonb"`
	WinningTeam    string         `gorm:"type:varchar(8)"`
	DurationSec    int            `gorm:"default:0"`
	LinkedRecordID string         `gorm:"index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (MatchRow) TableName() string { return "matches" }

type QueueEntryRow struct {
	Player     string `gorm:"primaryKey"`
	Region     string `gorm:"type:varchar(16);not null"`
	Lane1      string `gorm:"type:varchar(16)"`
	Lane2      string `gorm:"type:varchar(16)"`
	Score      int
	Bot        bool
	EnqueuedAt time.Time `gorm:"index"`
}

func (QueueEntryRow) TableName() string { return "queue_entries" }

type VoteRow struct {
	MatchID     string `gorm:"primaryKey;type:uuid"`
	Player      string `gorm:"primaryKey"`
	CandidateID string `gorm:"index;not null"`
	Weight      int
	CastAt      time.Time
}

func (VoteRow) TableName() string { return "match_votes" }

func toMatchRow(m types.Match) (MatchRow, error) {
	t1, err := json.Marshal(m.Team1)
	if err != nil {
		return MatchRow{}, err
	}
	t2, err := json.Marshal(m.Team2)
	if err != nil {
		return MatchRow{}, err
	}
	return MatchRow{
		ID:             m.ID,
		Team1:          datatypes.JSON(t1),
		Team2:          datatypes.JSON(t2),
		Status:         string(m.Status),
		WinningTeam:    string(m.Outcome.WinningTeam),
		DurationSec:    m.Outcome.DurationSec,
		LinkedRecordID: m.Outcome.LinkedRecordID,
		CreatedAt:      m.CreatedAt,
	}, nil
}

func (r MatchRow) toMatch() (types.Match, error) {
	m := types.Match{
		ID:        r.ID,
		CreatedAt: r.CreatedAt,
		Status:    types.MatchStatus(r.Status),
		Outcome: types.Outcome{
			WinningTeam:    types.Team(r.WinningTeam),
			DurationSec:    r.DurationSec,
			LinkedRecordID: r.LinkedRecordID,
		},
	}
	if err := json.Unmarshal(r.Team1, &m.Team1); err != nil {
		return types.Match{}, err
	}
	if err := json.Unmarshal(r.Team2, &m.Team2); err != nil {
		return types.Match{}, err
	}
	return m, nil
}

func toQueueRow(e types.QueueEntry) QueueEntryRow {
	return QueueEntryRow{
		Player:     e.Player.String(),
		Region:     e.Region,
		Lane1:      string(e.Lanes[0]),
		Lane2:      string(e.Lanes[1]),
		Score:      e.Score,
		Bot:        e.Bot,
		EnqueuedAt: e.EnqueuedAt,
	}
}

func (r QueueEntryRow) toEntry() types.QueueEntry {
	return types.QueueEntry{
		Player:     types.PlayerID(r.Player),
		Region:     r.Region,
		Lanes:      [2]types.Lane{types.Lane(r.Lane1), types.Lane(r.Lane2)},
		EnqueuedAt: r.EnqueuedAt,
		Score:      r.Score,
		Bot:        r.Bot,
	}
}

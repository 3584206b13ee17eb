package types

import (
	"encoding/json"
	"time"
)

const TeamSize = 5

type MatchStatus string

const (
	StatusDrafting             MatchStatus = "drafting"
	StatusAwaitingConfirmation MatchStatus = "awaiting-confirmation"
	StatusInProgress           MatchStatus = "in-progress"
	StatusCompleted            MatchStatus = "completed"
	StatusCancelled            MatchStatus = "cancelled"
)

func (s MatchStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Drafting reports whether a draft session exists for a match in this status.
func (s MatchStatus) Drafting() bool {
	return s == StatusDrafting || s == StatusAwaitingConfirmation
}

type Team string

const (
	Team1 Team = "team1"
	Team2 Team = "team2"
)

type Outcome struct {
	WinningTeam    Team   `json:"winning_team,omitempty"`
	DurationSec    int    `json:"duration_sec,omitempty"`
	LinkedRecordID string `json:"linked_record_id,omitempty"`
}

type Match struct {
	ID        string      `json:"id"`
	Team1     []PlayerID  `json:"team1"`
	Team2     []PlayerID  `json:"team2"`
	CreatedAt time.Time   `json:"created_at"`
	Status    MatchStatus `json:"status"`
	Outcome   Outcome     `json:"outcome"`
}

// Players returns team1 then team2 in seat order.
func (m Match) Players() []PlayerID {
	out := make([]PlayerID, 0, len(m.Team1)+len(m.Team2))
	out = append(out, m.Team1...)
	return append(out, m.Team2...)
}

func (m Match) Has(p PlayerID) bool {
	for _, q := range m.Players() {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

func (m Match) TeamOf(p PlayerID) (Team, bool) {
	for _, q := range m.Team1 {
		if q.Equal(p) {
			return Team1, true
		}
	}
	for _, q := range m.Team2 {
		if q.Equal(p) {
			return Team2, true
		}
	}
	return "", false
}

// GameRecord is a game observed by the external game platform.
type GameRecord struct {
	ID           string          `json:"id"`
	WinningTeam  Team            `json:"winning_team,omitempty"`
	DurationSec  int             `json:"duration_sec,omitempty"`
	Participants []string        `json:"participants,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

type Vote struct {
	MatchID     string    `json:"match_id"`
	Player      PlayerID  `json:"player"`
	CandidateID string    `json:"candidate_id"`
	Weight      int       `json:"weight"`
	CastAt      time.Time `json:"cast_at"`
}

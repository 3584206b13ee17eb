package types

import (
	"strings"
	"time"
)

// PlayerID is a normalized, case-insensitive player handle.
type PlayerID string

func NewPlayerID(raw string) (PlayerID, error) {
	id := PlayerID(strings.ToLower(strings.TrimSpace(raw)))
	if id == "" {
		return "", ErrEmptyIdentity
	}
	return id, nil
}

// MustPlayerID is for constants and tests.
func MustPlayerID(raw string) PlayerID {
	id, err := NewPlayerID(raw)
	if err != nil {
		panic(err)
	}
	return id
}

func (p PlayerID) String() string { return string(p) }

func (p PlayerID) Equal(other PlayerID) bool {
	return strings.EqualFold(string(p), string(other))
}

type Lane string

const (
	LaneTop     Lane = "top"
	LaneJungle  Lane = "jungle"
	LaneMid     Lane = "mid"
	LaneBot     Lane = "bot"
	LaneSupport Lane = "support"
	LaneFill    Lane = "fill"
)

// Lanes is the roster order of a team.
var Lanes = []Lane{LaneTop, LaneJungle, LaneMid, LaneBot, LaneSupport}

func ParseLane(raw string) (Lane, bool) {
	switch l := Lane(strings.ToLower(strings.TrimSpace(raw))); l {
	case LaneTop, LaneJungle, LaneMid, LaneBot, LaneSupport, LaneFill:
		return l, true
	case "adc":
		return LaneBot, true
	case "sup", "supp":
		return LaneSupport, true
	default:
		return "", false
	}
}

// Accepts reports whether a player preferring l can play lane.
func (l Lane) Accepts(lane Lane) bool {
	return l == LaneFill || l == lane
}

type QueueEntry struct {
	Player     PlayerID  `json:"player"`
	Region     string    `json:"region"`
	Lanes      [2]Lane   `json:"lanes"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	Score      int       `json:"score"`
	Bot        bool      `json:"bot,omitempty"`
}

func (e QueueEntry) Prefers(lane Lane) bool {
	return e.Lanes[0].Accepts(lane) || e.Lanes[1].Accepts(lane)
}

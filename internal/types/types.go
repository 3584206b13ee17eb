package types

import "encoding/json"

// Client -> Server (push channel)
// identify:   { type, player }   player must equal the X-Player-Identity header
// heartbeat:  { type }           refreshes the session TTL
// unidentify: { type }
//
// Server -> Client
// { type: <event>, payload: {...} } or { type: "error", error: reason }
//
// queue_update:    count, entries, avg_wait_estimate_sec
// match_found:     match_id, team1, team2, draft
// draft_state:     the draft view (version, current_index, actions, confirmed)
// game_started:    match_id, team1, team2, started, reason
// match_cancelled: match_id, by
// vote_update:     match_id, totals, voters, threshold, latched, linked
// match_linked:    match_id, record_id, winning_team, duration_sec, override

// Push event names.
const (
	EventQueueUpdate    = "queue_update"
	EventMatchFound     = "match_found"
	EventDraftState     = "draft_state"
	EventGameStarted    = "game_started"
	EventMatchCancelled = "match_cancelled"
	EventVoteUpdate     = "vote_update"
	EventMatchLinked    = "match_linked"
	EventError          = "error"
	EventIdentified     = "identified"
)

type ClientMessage struct {
	Type   string `json:"type"` // "identify" | "unidentify" | "heartbeat"
	Player string `json:"player,omitempty"`
}

type ServerMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

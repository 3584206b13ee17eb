package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/queue"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

type joinBody struct {
	Player string   `json:"player,omitempty"`
	Region string   `json:"region"`
	Lanes  []string `json:"lanes"`
	Score  int      `json:"score"`
}

func (s *Server) JoinQueue(w http.ResponseWriter, r *http.Request) {
	var body joinBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := bodyIdentity(r, body.Player); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(body.Lanes) != 2 {
		s.fail(w, r, queue.ErrInvalidLanes)
		return
	}
	entry, err := s.deps.Queue.Join(r.Context(), queue.JoinRequest{
		Player: player(r),
		Region: body.Region,
		Lanes:  [2]types.Lane{types.Lane(body.Lanes[0]), types.Lane(body.Lanes[1])},
		Score:  body.Score,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) LeaveQueue(w http.ResponseWriter, r *http.Request) {
	left := s.deps.Queue.Leave(r.Context(), player(r))
	writeJSON(w, http.StatusOK, struct {
		Left bool `json:"left"`
	}{left})
}

// QueueStatus works without an identity.
func (s *Server) QueueStatus(w http.ResponseWriter, r *http.Request) {
	p, _ := types.PlayerFrom(r.Context())
	writeJSON(w, http.StatusOK, s.deps.Queue.Status(p))
}

type actionBody struct {
	Player     string `json:"player,omitempty"`
	Index      *int   `json:"index"`
	ChampionID string `json:"champion_id"`
}

func (s *Server) ProcessAction(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := bodyIdentity(r, body.Player); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Index == nil {
		s.fail(w, r, types.Validation("index is required"))
		return
	}
	view, err := s.deps.Drafts.ProcessAction(r.Context(), chi.URLParam(r, "id"), *body.Index, body.ChampionID, player(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) ChangePick(w http.ResponseWriter, r *http.Request) {
	var body actionBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := bodyIdentity(r, body.Player); err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := s.deps.Drafts.ChangePick(r.Context(), chi.URLParam(r, "id"), player(r), body.ChampionID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) Confirm(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Drafts.ConfirmFinal(r.Context(), chi.URLParam(r, "id"), player(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Drafts.CancelMatch(r.Context(), id, player(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		MatchID   string `json:"match_id"`
		Cancelled bool   `json:"cancelled"`
	}{id, true})
}

func (s *Server) Draft(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Drafts.Snapshot(r.Context(), chi.URLParam(r, "id")))
}

type voteBody struct {
	Player      string `json:"player,omitempty"`
	CandidateID string `json:"candidate_id"`
}

func (s *Server) CastVote(w http.ResponseWriter, r *http.Request) {
	var body voteBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := bodyIdentity(r, body.Player); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Votes.CastVote(r.Context(), chi.URLParam(r, "id"), player(r), body.CandidateID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) RemoveVote(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Votes.RemoveVote(r.Context(), chi.URLParam(r, "id"), player(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Tally(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Votes.Tally(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type linkBody struct {
	CandidateID string            `json:"candidate_id"`
	Record      *types.GameRecord `json:"record,omitempty"`
}

func (s *Server) Link(w http.ResponseWriter, r *http.Request) {
	var body linkBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.deps.Votes.LinkMatch(r.Context(), chi.URLParam(r, "id"), body.CandidateID, body.Record, player(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type botBody struct {
	Region string `json:"region"`
	Count  int    `json:"count"`
}

// AddBots backfills the queue; count defaults to one.
func (s *Server) AddBots(w http.ResponseWriter, r *http.Request) {
	var body botBody
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Count <= 0 {
		body.Count = 1
	}
	if body.Count > queue.MatchSize {
		s.fail(w, r, types.Validation("too many bots"))
		return
	}
	added := make([]types.QueueEntry, 0, body.Count)
	for i := 0; i < body.Count; i++ {
		e, err := s.deps.Queue.AddBot(r.Context(), body.Region)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		added = append(added, e)
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) ResetBots(w http.ResponseWriter, r *http.Request) {
	s.deps.Queue.ResetBotCounter()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ResetQueue(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Queue.Reset(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Removed int `json:"removed"`
	}{n})
}

package gateway

import "github.com/DoyleJ11/lol-inhouse-backend/internal/types"

// VoterDirectory is the configured set of privileged voters.
type VoterDirectory struct {
	privileged map[types.PlayerID]bool
	weight     int
}

func NewVoterDirectory(names []string, weight int) *VoterDirectory {
	if weight < 1 {
		weight = 1
	}
	d := &VoterDirectory{privileged: make(map[types.PlayerID]bool, len(names)), weight: weight}
	for _, n := range names {
		if p, err := types.NewPlayerID(n); err == nil {
			d.privileged[p] = true
		}
	}
	return d
}

func (d *VoterDirectory) IsPrivileged(p types.PlayerID) bool {
	p, err := types.NewPlayerID(p.String())
	return err == nil && d.privileged[p]
}

func (d *VoterDirectory) GetWeight(p types.PlayerID) int {
	if d.IsPrivileged(p) {
		return d.weight
	}
	return 1
}

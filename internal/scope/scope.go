// Package scope models the partition context that decides which source and
// thread collections a call reads and writes. It is always passed explicitly.
package scope

import "fmt"

type Kind int

const (
	Personal Kind = iota
	Team
)

type Scope struct {
	Kind   Kind
	TeamID uint
}

func NewPersonal() Scope {
	return Scope{Kind: Personal}
}

func NewTeam(teamID uint) Scope {
	return Scope{Kind: Team, TeamID: teamID}
}

func (s Scope) IsTeam() bool {
	return s.Kind == Team
}

// Validate rejects malformed scopes (a team scope needs a team id).
func (s Scope) Validate() error {
	switch s.Kind {
	case Personal:
		if s.TeamID != 0 {
			return fmt.Errorf("personal scope must not carry a team id")
		}
		return nil
	case Team:
		if s.TeamID == 0 {
			return fmt.Errorf("team scope requires a team id")
		}
		return nil
	default:
		return fmt.Errorf("unknown scope kind %d", s.Kind)
	}
}

func (s Scope) String() string {
	if s.Kind == Team {
		return fmt.Sprintf("team:%d", s.TeamID)
	}
	return "personal"
}

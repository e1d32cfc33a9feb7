// Package memory implements every persistence interface of the service with
// in-process maps guarded by one mutex. Relations (membership, project
// assignment) live in single authoritative join maps; the reference slices on
// users, teams and projects are derived views computed on read, so the two
// sides of a relation cannot drift apart. Used by tests and by cmd/api when no
// database DSN is configured.
package memory

import (
	"sort"
	"sync"

	"phasegate.org/internal/access"
	"phasegate.org/internal/auth"
	"phasegate.org/internal/project"
	"phasegate.org/internal/team"
)

type Store struct {
	mu sync.RWMutex

	users    map[string]*auth.User
	roles    map[string]*access.Role
	teams    map[string]*team.Team
	projects map[string]*project.Project

	// teamID -> userID -> roleID
	members map[string]map[string]string
	// projectID -> teamID set
	projectTeams map[string]map[string]struct{}

	logs []*access.AccessLog
}

var (
	_ auth.UserStore        = (*Store)(nil)
	_ access.RoleStore      = (*Store)(nil)
	_ access.AccessLogStore = (*Store)(nil)
	_ access.PhaseLookup    = (*Store)(nil)
	_ team.Store            = (*Store)(nil)
	_ project.Store         = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:        make(map[string]*auth.User),
		roles:        make(map[string]*access.Role),
		teams:        make(map[string]*team.Team),
		projects:     make(map[string]*project.Project),
		members:      make(map[string]map[string]string),
		projectTeams: make(map[string]map[string]struct{}),
	}
}

// teamsOfUser derives the user's team reference set from the join relation.
// Callers must hold at least a read lock.
func (s *Store) teamsOfUser(userID string) []string {
	var out []string
	for teamID, users := range s.members {
		if _, ok := users[userID]; ok {
			out = append(out, teamID)
		}
	}
	sort.Strings(out)
	return out
}

// teamsOfProject derives the project's team reference set.
func (s *Store) teamsOfProject(projectID string) []string {
	var out []string
	for teamID := range s.projectTeams[projectID] {
		out = append(out, teamID)
	}
	sort.Strings(out)
	return out
}

// projectsOfTeam derives the team's project reference set.
func (s *Store) projectsOfTeam(teamID string) []string {
	var out []string
	for projectID, teams := range s.projectTeams {
		if _, ok := teams[teamID]; ok {
			out = append(out, projectID)
		}
	}
	sort.Strings(out)
	return out
}

// membersOfTeam derives the team's member list, sorted by user id.
func (s *Store) membersOfTeam(teamID string) []team.Member {
	users := s.members[teamID]
	out := make([]team.Member, 0, len(users))
	for userID, roleID := range users {
		out = append(out, team.Member{UserID: userID, RoleID: roleID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func copyStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

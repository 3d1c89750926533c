package domain

// Role differentiates callers resolved by the identity collaborator.
type Role string

const (
	RoleUser   Role = "user"
	RoleAgent  Role = "agent"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// Valid reports whether r is a role a token may carry.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAgent || r == RoleAdmin
}

// Principal is the resolved caller identity.
type Principal struct {
	ID     string
	Role   Role
	Tenant string
}

// Actor is who performs a coordinator operation: an agent acting for itself,
// an administrator acting as override, or the system reaper.
type Actor struct {
	Role Role
	ID   string
}

func AgentActor(id string) Actor { return Actor{Role: RoleAgent, ID: id} }
func AdminActor(id string) Actor { return Actor{Role: RoleAdmin, ID: id} }
func UserActor(id string) Actor  { return Actor{Role: RoleUser, ID: id} }

// SystemActor is the reaper.
func SystemActor() Actor { return Actor{Role: RoleSystem, ID: "reaper"} }

// Actor converts the principal into the actor it acts as.
func (p Principal) Actor() Actor {
	return Actor{Role: p.Role, ID: p.ID}
}

// IsAdmin reports whether the actor carries administrative override.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// CanWork reports whether the actor may hold sessions and tickets.
func (a Actor) CanWork() bool { return a.Role == RoleAgent || a.Role == RoleAdmin }

// CanActFor reports whether the actor may operate on agentID's behalf.
func (a Actor) CanActFor(agentID string) bool {
	switch a.Role {
	case RoleAdmin, RoleSystem:
		return true
	case RoleAgent:
		return a.ID == agentID
	}
	return false
}

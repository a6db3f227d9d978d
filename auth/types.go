package auth

// Role is the closed set of dashboard roles the remote API issues.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleClient   Role = "client"
	RoleTrainer  Role = "trainer"
	RoleTeacher  Role = "teacher"
	RoleStudent  Role = "student"
	RoleDivision Role = "division_role"
	RoleBNU      Role = "bnu"
)

// AllRoles lists every known role. Per-role persisted state (filter
// buckets) is cleared by iterating this set on logout.
var AllRoles = []Role{
	RoleAdmin, RoleClient, RoleTrainer, RoleTeacher,
	RoleStudent, RoleDivision, RoleBNU,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range AllRoles {
		if r == known {
			return true
		}
	}
	return false
}

// TokenPair is the credential pair minted by login and refresh. The pair
// is always replaced atomically: a refresh updates both tokens or
// neither.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Identity is the in-memory session identity for the current user.
// Division fields are set only for RoleDivision and only when the
// server profile supplied a division.
type Identity struct {
	Role         Role   `json:"role"`
	UserID       string `json:"userId,omitempty"`
	Email        string `json:"email,omitempty"`
	UserName     string `json:"userName,omitempty"`
	DivisionID   string `json:"divisionId,omitempty"`
	DivisionName string `json:"divisionName,omitempty"`
}

// State is the per-process session state machine.
type State int

const (
	// StateUnknown means startup has not yet resolved stored credentials.
	StateUnknown State = iota
	StateAuthenticated
	StateUnauthenticated
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateUnauthenticated:
		return "unauthenticated"
	default:
		return "unknown"
	}
}

// loginRequest is the wire shape of the POST /auth/login body.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// loginResponse is the wire shape of POST /auth/login.
type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Role         Role   `json:"role"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	} `json:"user"`
}

// profileResponse is the wire shape of GET /auth/me.
type profileResponse struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
	Profile *struct {
		Name     string `json:"name"`
		Division *struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"division"`
		DivisionID string `json:"divisionId"`
	} `json:"profile"`
}

// refreshRequest and refreshResponse are the wire shapes of
// POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

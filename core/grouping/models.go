package grouping

// Rating bounds of a SkillProfile dimension.
const (
	MinRating = 0
	MaxRating = 5
)

// SkillProfile is a student's self-rated strengths. Absent ratings are 0.
type SkillProfile struct {
	Research  int `json:"research" db:"research" validate:"min=0,max=5"`
	Writing   int `json:"writing" db:"writing" validate:"min=0,max=5"`
	Design    int `json:"design" db:"design" validate:"min=0,max=5"`
	Technical int `json:"technical" db:"technical" validate:"min=0,max=5"`
}

// Aggregate is the sum of the four ratings.
func (p SkillProfile) Aggregate() int {
	return p.Research + p.Writing + p.Design + p.Technical
}

// Member is a read-only roster view assembled for one grouping operation.
type Member struct {
	ID          string       `json:"id"`
	DisplayName string       `json:"display_name"`
	Email       string       `json:"email"`
	Profile     SkillProfile `json:"skills"`
}

type Mode string

const (
	ModeManual    Mode = "manual"
	ModeAutomatic Mode = "automatic"
)

func (m Mode) Valid() bool { return m == ModeManual || m == ModeAutomatic }

// ManualGroup is a caller-submitted group.
type ManualGroup struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// Request is the grouping request surface.
type Request struct {
	Mode      Mode          `json:"mode" validate:"required"`
	Groups    []ManualGroup `json:"groups,omitempty"`
	GroupSize int           `json:"group_size,omitempty"`
}

type Group struct {
	Name    string   `json:"name"`
	Members []Member `json:"members"`
}

// MemberIDs returns the ids of the group members, in group order.
func (g Group) MemberIDs() []string {
	ids := make([]string, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

type (
	ResultMember struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
		Email       string `json:"email"`
	}

	// Result is the grouping result surface: skill profiles are not exposed.
	Result struct {
		Name    string         `json:"name"`
		Members []ResultMember `json:"members"`
	}
)

func (g Group) Result() Result {
	res := Result{Name: g.Name, Members: make([]ResultMember, 0, len(g.Members))}
	for _, m := range g.Members {
		res.Members = append(res.Members, ResultMember{ID: m.ID, DisplayName: m.DisplayName, Email: m.Email})
	}
	return res
}

func Results(groups []Group) []Result {
	res := make([]Result, 0, len(groups))
	for _, g := range groups {
		res = append(res, g.Result())
	}
	return res
}

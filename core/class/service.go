package class

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/synccache"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
)

const (
	rosterConcurrency = 8
	maxCodeAttempts   = 5
)

var (
	// errors
	ErrNotFound      = errors.New("class not found")
	ErrInvalidCode   = errors.New("no class matches this code")
	ErrCodeTaken     = errors.New("class code already in use")
	ErrAlreadyMember = errors.New("already a member of this class")
	ErrNoGroups      = errors.New("groups have not been formed yet")
	ErrForbidden     = errors.New("permission denied")
)

type (
	Repository interface {
		// CreateClass fails with ErrCodeTaken when the join code is already in use.
		CreateClass(ctx context.Context, cls Class) (Class, error)
		GetClassByID(ctx context.Context, id string) (Class, error)
		GetClassByCode(ctx context.Context, code string) (Class, error)
		// QueryClassesForUser returns the classes owned or joined by the user, newest first.
		QueryClassesForUser(ctx context.Context, userID string) ([]Class, error)
		// AddMember fails with ErrAlreadyMember when the student already joined.
		AddMember(ctx context.Context, m Membership) error
		IsMember(ctx context.Context, classID, studentID string) (bool, error)
		// QueryMemberIDs returns the student IDs of a class in join order.
		QueryMemberIDs(ctx context.Context, classID string) ([]string, error)
		SaveGroupSet(ctx context.Context, gs GroupSet) error
		// GetGroupSet fails with ErrNoGroups when no groups were formed for the class.
		GetGroupSet(ctx context.Context, classID string) (GroupSet, error)
	}

	Service interface {
		Create(ctx context.Context, professor user.User, nc NewClass) (Class, error)
		Join(ctx context.Context, student user.User, code string) (Class, error)
		// Get returns the class if usr may see it; ErrNotFound otherwise.
		Get(ctx context.Context, usr user.User, id string) (Class, error)
		ListForUser(ctx context.Context, usr user.User) ([]Class, error)
		Roster(ctx context.Context, cls Class) ([]grouping.Member, error)
		FormGroups(ctx context.Context, professor user.User, cls Class, fg FormGroups) ([]grouping.Group, error)
		Groups(ctx context.Context, cls Class) ([]grouping.Group, error)
		// MemberChanged pushes the new roster view of usr to the member cache.
		MemberChanged(usr user.User)
	}

	service struct {
		repo             Repository
		members          *MemberCache
		mailSvc          core.EmailService
		logger           core.Logger
		ttl              time.Duration
		defaultGroupSize int
		baseURL          string
		now              func() time.Time
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, members *MemberCache, mailSvc core.EmailService, conf *core.Config, logger core.Logger) Service {
	return &service{
		repo:             repo,
		members:          members,
		mailSvc:          mailSvc,
		logger:           logger,
		ttl:              conf.Sync.DefaultTTL,
		defaultGroupSize: conf.Grouping.DefaultGroupSize,
		baseURL:          conf.FrontendBaseURL,
		now:              time.Now,
	}
}

func (svc *service) Create(ctx context.Context, professor user.User, nc NewClass) (Class, error) {
	if !(professor.IsProfessor() || professor.IsAdmin()) {
		return Class{}, ErrForbidden
	}

	now := svc.now().UTC()
	cls := Class{
		ID:          uuid.NewString(),
		Name:        nc.Name,
		Description: nc.Description,
		ProfessorID: professor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for attempt := 1; ; attempt++ {
		cls.Code = NewCode()
		created, err := svc.repo.CreateClass(ctx, cls)
		if err == nil {
			return created, nil
		}
		if errors.Cause(err) != ErrCodeTaken || attempt == maxCodeAttempts {
			return Class{}, errors.Wrap(err, "creating class")
		}
	}
}

func (svc *service) Join(ctx context.Context, student user.User, code string) (Class, error) {
	if !student.IsStudent() {
		return Class{}, ErrForbidden
	}

	cls, err := svc.repo.GetClassByCode(ctx, NormalizeCode(code))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Class{}, ErrInvalidCode
		}
		return Class{}, errors.Wrap(err, "finding class by code")
	}
	m := Membership{ClassID: cls.ID, StudentID: student.ID, JoinedAt: svc.now().UTC()}
	if err = svc.repo.AddMember(ctx, m); err != nil {
		return Class{}, err
	}
	svc.MemberChanged(student)
	return cls, nil
}

func (svc *service) Get(ctx context.Context, usr user.User, id string) (Class, error) {
	cls, err := svc.repo.GetClassByID(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if usr.IsAdmin() || cls.ProfessorID == usr.ID {
		return cls, nil
	}
	ok, err := svc.repo.IsMember(ctx, cls.ID, usr.ID)
	if err != nil {
		return Class{}, errors.Wrap(err, "checking membership")
	}
	if !ok {
		return Class{}, ErrNotFound
	}
	return cls, nil
}

func (svc *service) ListForUser(ctx context.Context, usr user.User) ([]Class, error) {
	return svc.repo.QueryClassesForUser(ctx, usr.ID)
}

// Roster assembles the members of a class in join order.
// Profiles are read through the member cache; a member whose refresh fails is kept with
// their last known profile.
func (svc *service) Roster(ctx context.Context, cls Class) ([]grouping.Member, error) {
	ids, err := svc.repo.QueryMemberIDs(ctx, cls.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying member IDs")
	}

	members := make([]grouping.Member, len(ids))
	found := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rosterConcurrency)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			m, ok, err := svc.members.Read(gctx, MemberKey(id), svc.ttl)
			switch {
			case err == nil:
			case errors.Is(err, user.ErrNotFound):
				return nil
			case ok && errors.Is(err, synccache.ErrRetrievalFailed):
				svc.logger.Warn(fmt.Sprintf("class.Roster: using stale profile of %s", id), err)
			default:
				return errors.Wrapf(err, "reading member %s", id)
			}
			members[i], found[i] = m, true
			return nil
		})
	}
	if err = g.Wait(); err != nil {
		return nil, err
	}

	roster := members[:0]
	for i, m := range members {
		if found[i] {
			roster = append(roster, m)
		}
	}
	return roster, nil
}

// FormGroups forms the groups of a class, replaces its previous groups and mails every
// member their assignment. Grouping errors are returned as is.
func (svc *service) FormGroups(ctx context.Context, professor user.User, cls Class, fg FormGroups) ([]grouping.Group, error) {
	if cls.ProfessorID != professor.ID && !professor.IsAdmin() {
		return nil, ErrForbidden
	}

	req := fg.Request()
	if req.Mode == grouping.ModeAutomatic && req.GroupSize == 0 {
		req.GroupSize = svc.defaultGroupSize
	}

	roster, err := svc.Roster(ctx, cls)
	if err != nil {
		return nil, errors.Wrap(err, "assembling roster")
	}
	groups, err := grouping.Form(roster, req)
	if err != nil {
		return nil, err
	}

	if err = svc.repo.SaveGroupSet(ctx, NewGroupSet(cls.ID, req.Mode, groups, svc.now().UTC())); err != nil {
		return nil, errors.Wrap(err, "saving groups")
	}
	svc.notifyGroups(cls, groups)
	return groups, nil
}

func (svc *service) notifyGroups(cls Class, groups []grouping.Group) {
	msgs := make([]*core.EmailMessage, 0)
	for _, g := range groups {
		for _, m := range g.Members {
			if m.Email == "" {
				continue
			}
			teammates := make([]string, 0, len(g.Members)-1)
			for _, other := range g.Members {
				if other.ID != m.ID {
					teammates = append(teammates, other.DisplayName)
				}
			}
			msg := &core.EmailMessage{
				To:           []mail.Address{{Name: m.DisplayName, Address: m.Email}},
				Subject:      fmt.Sprintf("Your group in %s", cls.Name),
				TemplateName: "group_assignment",
				TemplateData: map[string]interface{}{
					"Name":      m.DisplayName,
					"GroupName": g.Name,
					"ClassName": cls.Name,
					"Teammates": teammates,
				},
			}
			msg.SetFrontendBaseURL(svc.baseURL)
			msgs = append(msgs, msg)
		}
	}
	if len(msgs) > 0 {
		svc.mailSvc.SendMessages(msgs...)
	}
}

// Groups returns the latest groups of a class with their members resolved against the
// current roster.
func (svc *service) Groups(ctx context.Context, cls Class) ([]grouping.Group, error) {
	gs, err := svc.repo.GetGroupSet(ctx, cls.ID)
	if err != nil {
		return nil, err
	}
	roster, err := svc.Roster(ctx, cls)
	if err != nil {
		return nil, errors.Wrap(err, "assembling roster")
	}
	byID := make(map[string]grouping.Member, len(roster))
	for _, m := range roster {
		byID[m.ID] = m
	}

	groups := make([]grouping.Group, 0, len(gs.Groups))
	for _, sg := range gs.Groups {
		g := grouping.Group{Name: sg.Name, Members: make([]grouping.Member, 0, len(sg.MemberIDs))}
		for _, id := range sg.MemberIDs {
			if m, ok := byID[id]; ok {
				g.Members = append(g.Members, m)
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (svc *service) MemberChanged(usr user.User) {
	m := usr.Member()
	_, tag, err := encodeMember(m)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("class.MemberChanged(%s): %v", usr.ID, err), err)
		svc.members.Invalidate(MemberKey(usr.ID))
		return
	}
	svc.members.Write(MemberKey(usr.ID), m, tag)
}

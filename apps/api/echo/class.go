package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/grouping"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
)

type classApi struct {
	usrSvc   user.Service
	svc      class.Service
	validate *validator.Validate
}

func registerClassAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := classApi{
		usrSvc:   deps.UserSvc,
		svc:      deps.ClassSvc,
		validate: deps.Validate,
	}

	cg := g.Group("/classes", jwt)
	cg.GET("", api.list)
	cg.POST("", api.create, professorMiddleware)
	cg.POST("/join", api.join)

	// detail endpoints
	dg := cg.Group("/:id", classMiddleware(api.usrSvc, api.svc))
	dg.GET("", api.retrieve)
	dg.GET("/groups", api.groups)
	dg.GET("/roster", api.roster, classOwnerMiddleware(api.usrSvc))
	dg.POST("/groups", api.formGroups, classOwnerMiddleware(api.usrSvc))
}

type (
	ClassesResponse struct {
		Classes []class.Class `json:"classes"`
	}

	RosterResponse struct {
		Roster []grouping.Member `json:"roster"`
	}

	GroupsResponse struct {
		Groups []grouping.Result `json:"groups"`
	}
)

// Handlers

func (api *classApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data class.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, cls)
}

func (api *classApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	classes, err := api.svc.ListForUser(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing classes")
	}
	if classes == nil {
		classes = []class.Class{}
	}
	sortClasses(classes, ordering.Orderings)
	return etagJSON(ctx, http.StatusOK, ClassesResponse{Classes: classes})
}

func (api *classApi) join(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var data class.JoinClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	cls, err := api.svc.Join(ctx.Request().Context(), usr, data.Code)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, cls)
}

func (api *classApi) retrieve(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	return etagJSON(ctx, http.StatusOK, cls)
}

func (api *classApi) roster(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	roster, err := api.svc.Roster(ctx.Request().Context(), cls)
	if err != nil {
		return errors.Wrap(err, "assembling roster")
	}
	return etagJSON(ctx, http.StatusOK, RosterResponse{Roster: roster})
}

func (api *classApi) groups(ctx echo.Context) error {
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}
	groups, err := api.svc.Groups(ctx.Request().Context(), cls)
	if err != nil {
		return err
	}
	return etagJSON(ctx, http.StatusOK, GroupsResponse{Groups: grouping.Results(groups)})
}

func (api *classApi) formGroups(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	cls, err := getContextClass(ctx)
	if err != nil {
		return err
	}

	var data class.FormGroups
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to FormGroups")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	groups, err := api.svc.FormGroups(ctx.Request().Context(), usr, cls, data)
	if err != nil {
		return err
	}
	return etagJSON(ctx, http.StatusOK, GroupsResponse{Groups: grouping.Results(groups)})
}

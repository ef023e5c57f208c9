package echoapi

import (
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/tymastrangelo/groupgrade-sub000/core/class"
	"github.com/tymastrangelo/groupgrade-sub000/core/user"
)

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	if claims, err := getContextClaims(ctx); err == nil {
		sort.Strings(claims.Roles)
		for _, role := range roles {
			if i := sort.SearchStrings(claims.Roles, role); i < len(claims.Roles) && claims.Roles[i] == role {
				return true
			}
		}
	}
	return false
}

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// professorMiddleware lets professors & admins through.
func professorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if claims.IsProfessor || claims.IsAdmin {
			return next(ctx)
		}
		return errHttpForbidden
	}
}

// classMiddleware loads the class `:id` visible to the context user.
func classMiddleware(usrSvc user.Service, classSvc class.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return err
			}
			cls, err := classSvc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == class.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding class")
			}
			ctx.Set(contextClassKey, cls)
			return next(ctx)
		}
	}
}

// classOwnerMiddleware must run after classMiddleware.
func classOwnerMiddleware(usrSvc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return err
			}
			cls, err := getContextClass(ctx)
			if err != nil {
				return err
			}
			if cls.ProfessorID != usr.ID && !usr.IsAdmin() {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

var errClassNotFoundInCtx = errors.New("class object not found in echo.Context")

func getContextClass(ctx echo.Context) (class.Class, error) {
	cls, ok := ctx.Get(contextClassKey).(class.Class)
	if !ok {
		return class.Class{}, errClassNotFoundInCtx
	}
	return cls, nil
}

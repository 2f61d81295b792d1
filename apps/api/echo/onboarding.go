package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
)

var errSessNotFoundInCtx = errors.New("session object not found in echo.Context")

type onboardingApi struct {
	userSvc *user.Service
	svc     *student.Service
}

func registerOnboardingAPI(g *echo.Group, jwt echo.MiddlewareFunc, userSvc *user.Service, svc *student.Service) {
	api := onboardingApi{userSvc: userSvc, svc: svc}

	og := g.Group("/onboarding", jwt, parentOrAdminMiddleware())
	og.POST("", api.start)
	og.GET("", api.query)

	// detail endpoints
	dg := og.Group("/:id", sessionOwnerMiddleware(userSvc, svc))
	dg.GET("", api.retrieve)
	dg.POST("/advance", api.advance)
	dg.POST("/back", api.back)
	dg.POST("/complete", api.complete)
}

// Handlers

func (api *onboardingApi) start(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sess, err := api.svc.StartOnboarding(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "starting onboarding")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *onboardingApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	sessions, err := api.svc.QuerySessions(ctx.Request().Context(), ctxUsr.ID)
	if err != nil {
		return errors.Wrap(err, "querying onboarding sessions")
	}
	if sessions == nil {
		sessions = []student.Session{}
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *onboardingApi) retrieve(ctx echo.Context) error {
	sess, ok := ctx.Get("object").(student.Session)
	if !ok {
		return errors.Wrap(errSessNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *onboardingApi) advance(ctx echo.Context) error {
	var payload student.StepPayload
	if err := ctx.Bind(&payload); err != nil {
		return errors.Wrap(err, "binding to StepPayload")
	}

	sess, err := api.svc.Advance(ctx.Request().Context(), ctx.Param("id"), payload)
	if err != nil {
		return errors.Wrap(err, "advancing onboarding session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *onboardingApi) back(ctx echo.Context) error {
	sess, err := api.svc.Back(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "stepping onboarding session back")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *onboardingApi) complete(ctx echo.Context) error {
	stu, err := api.svc.Complete(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "completing onboarding session")
	}
	return ctx.JSON(http.StatusCreated, stu)
}

// sessionOwnerMiddleware loads the session and lets its parent or an admin
// through; others get a 404 to avoid leaking session IDs.
func sessionOwnerMiddleware(userSvc *user.Service, svc *student.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, userSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			sess, err := svc.GetSession(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == student.ErrSessionNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding session by ID")
			}
			if sess.ParentUserID == ctxUsr.ID || ctxUsr.IsAdmin() {
				ctx.Set("object", sess)
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}

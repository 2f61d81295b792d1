package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/iep"
	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
)

var errIEPNotFoundInCtx = errors.New("iep object not found in echo.Context")

type iepApi struct {
	userSvc    *user.Service
	studentSvc *student.Service
	svc        *iep.Service
}

func registerIEPAPI(g *echo.Group, jwt echo.MiddlewareFunc, userSvc *user.Service, studentSvc *student.Service, svc *iep.Service) {
	api := iepApi{userSvc: userSvc, studentSvc: studentSvc, svc: svc}

	ig := g.Group("/ieps", jwt)
	ig.POST("", api.create, staffMiddleware())
	ig.GET("", api.query)

	// detail endpoints; read access for the student's parent, writes for staff
	dg := ig.Group("/:id", api.accessMiddleware())
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, staffMiddleware())
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.POST("/activate", api.activate, staffMiddleware())
	dg.POST("/archive", api.archive, staffMiddleware())
	dg.POST("/schedule-review", api.scheduleReview, staffMiddleware())
	dg.POST("/meetings", api.recordMeeting, staffMiddleware())
	dg.PUT("/goals/:goalID/progress", api.updateGoalProgress, staffMiddleware())
}

// Handlers

func (api *iepApi) create(ctx echo.Context) error {
	var data iep.NewIEP
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewIEP")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	// the student must exist
	if _, err := api.studentSvc.GetByID(ctx.Request().Context(), data.StudentID); err != nil {
		return errors.Wrap(err, "finding student by ID")
	}

	doc, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating iep")
	}
	return ctx.JSON(http.StatusCreated, doc)
}

// query lists a student's IEPs: `GET /ieps?student=<id>`.
func (api *iepApi) query(ctx echo.Context) error {
	studentID := core.CleanString(ctx.QueryParam("student"))
	if studentID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "student", Error: "a student ID is required"})
	}

	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	stu, err := api.studentSvc.GetByID(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	if !(stu.ParentUserID == ctxUsr.ID || ctxUsr.IsAdmin() || ctxUsr.IsTeacher()) {
		return errHttpNotFound
	}

	docs, err := api.svc.QueryByStudent(ctx.Request().Context(), studentID)
	if err != nil {
		return errors.Wrap(err, "querying ieps")
	}
	if docs == nil {
		docs = []iep.IEP{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *iepApi) retrieve(ctx echo.Context) error {
	doc, ok := ctx.Get("object").(iep.IEP)
	if !ok {
		return errors.Wrap(errIEPNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *iepApi) update(ctx echo.Context) error {
	var data iep.UpdateIEP
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateIEP")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	doc, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating iep")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *iepApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting iep")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *iepApi) activate(ctx echo.Context) error {
	doc, err := api.svc.Activate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "activating iep")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *iepApi) archive(ctx echo.Context) error {
	doc, err := api.svc.Archive(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "archiving iep")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *iepApi) scheduleReview(ctx echo.Context) error {
	var data ScheduleReviewRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScheduleReviewRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	doc, err := api.svc.ScheduleReview(ctx.Request().Context(), ctx.Param("id"), data.ReviewAt)
	if err != nil {
		return errors.Wrap(err, "scheduling iep review")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *iepApi) recordMeeting(ctx echo.Context) error {
	var data iep.NewMeeting
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMeeting")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	doc, err := api.svc.RecordMeeting(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "recording iep meeting")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *iepApi) updateGoalProgress(ctx echo.Context) error {
	var data GoalProgressRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GoalProgressRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	doc, err := api.svc.UpdateGoalProgress(ctx.Request().Context(), ctx.Param("id"), ctx.Param("goalID"), data.Progress)
	if err != nil {
		return errors.Wrap(err, "updating goal progress")
	}
	return ctx.JSON(http.StatusOK, doc)
}

// accessMiddleware loads the IEP and gates it on the underlying student's
// visibility rules.
func (api *iepApi) accessMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, api.userSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			doc, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == iep.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding iep by ID")
			}
			stu, err := api.studentSvc.GetByID(ctx.Request().Context(), doc.StudentID)
			if err != nil {
				return errors.Wrap(err, "finding student by ID")
			}
			if stu.ParentUserID == ctxUsr.ID || ctxUsr.IsAdmin() || ctxUsr.IsTeacher() {
				ctx.Set("object", doc)
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}

type (
	ScheduleReviewRequest struct {
		ReviewAt time.Time `json:"review_at" validate:"required"`
	}

	GoalProgressRequest struct {
		Progress int `json:"progress" validate:"gte=0,lte=100"`
	}
)

func (sr ScheduleReviewRequest) Validate() error { return core.Validate.Struct(sr) }
func (gp GoalProgressRequest) Validate() error   { return core.Validate.Struct(gp) }

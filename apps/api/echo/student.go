package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shulehq/shule/core/student"
	"github.com/shulehq/shule/core/user"
	exportsvc "github.com/shulehq/shule/services/export"
)

var errStuNotFoundInCtx = errors.New("student object not found in echo.Context")

type studentApi struct {
	userSvc  *user.Service
	svc      *student.Service
	exporter *exportsvc.RosterExporter
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, userSvc *user.Service, svc *student.Service, exporter *exportsvc.RosterExporter) {
	api := studentApi{userSvc: userSvc, svc: svc, exporter: exporter}

	sg := g.Group("/students", jwt)
	sg.GET("", api.query)
	sg.GET("/export", api.export, staffMiddleware())
	sg.DELETE("", api.destroyMultiple, adminMiddleware())

	// detail endpoints
	dg := sg.Group("/:id", studentOwnerMiddleware(userSvc, svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, adminMiddleware())
	dg.POST("/confirm-purchase", api.confirmPurchase, adminMiddleware())
}

// Handlers

// query lists students. Parents only ever see their own children, admins and
// teachers see everything the filter allows; other accounts are denied.
func (api *studentApi) query(ctx echo.Context) error {
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()
	switch {
	case ctxUsr.IsAdmin() || ctxUsr.IsTeacher():
		// roster-wide access
	case ctxUsr.IsParent():
		filter.ParentUserID = ctxUsr.ID
	default:
		return errHttpForbidden
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	stu, ok := ctx.Get("object").(student.Student)
	if !ok {
		return errors.Wrap(errStuNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (api *studentApi) update(ctx echo.Context) error {
	stu, ok := ctx.Get("object").(student.Student)
	if !ok {
		return errors.Wrap(errStuNotFoundInCtx, "retrieving object from context")
	}

	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	// enrollment status changes are an admin concern
	ctxUsr, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if data.Status != "" && !ctxUsr.IsAdmin() {
		return errHttpForbidden
	}

	stu, err = api.svc.Update(ctx.Request().Context(), stu.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return ctx.JSON(http.StatusOK, stu)
}

func (api *studentApi) destroy(ctx echo.Context) error {
	stu, ok := ctx.Get("object").(student.Student)
	if !ok {
		return errors.Wrap(errStuNotFoundInCtx, "retrieving object from context")
	}

	if err := api.svc.Delete(ctx.Request().Context(), stu.ID); err != nil {
		return errors.Wrap(err, "deleting student")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting students")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *studentApi) confirmPurchase(ctx echo.Context) error {
	stu, err := api.svc.ConfirmPurchase(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "confirming purchase")
	}
	return ctx.JSON(http.StatusOK, stu)
}

// export streams the roster as an xlsx download: `GET /students/export?district=<id>`.
func (api *studentApi) export(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	students, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}

	filename := fmt.Sprintf("roster-%s.xlsx", time.Now().UTC().Format("2006-01-02"))
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename=`+filename)
	ctx.Response().Header().Set(echo.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	ctx.Response().WriteHeader(http.StatusOK)

	if err := api.exporter.WriteRoster(ctx.Response(), students); err != nil {
		return errors.Wrap(err, "writing roster")
	}
	return nil
}

// studentOwnerMiddleware loads the student and lets their parent or an admin
// through; others get a 404.
func studentOwnerMiddleware(userSvc *user.Service, svc *student.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, userSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			stu, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == student.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding student by ID")
			}
			if stu.ParentUserID == ctxUsr.ID || ctxUsr.IsAdmin() || ctxUsr.IsTeacher() {
				ctx.Set("object", stu)
				return next(ctx)
			}
			return errHttpNotFound
		}
	}
}

package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shulehq/shule/core"
	"github.com/shulehq/shule/core/district"
	"github.com/shulehq/shule/core/user"
)

type districtApi struct {
	svc *district.Service
}

func registerDistrictAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *district.Service) {
	api := districtApi{svc: svc}

	dg := g.Group("/districts", jwt)
	dg.GET("/resolve", api.resolve)
	dg.POST("", api.create, adminMiddleware(user.RoleAdminOwner, user.RoleAdminPrincipal))
	dg.GET("", api.query)
	dg.GET("/:id", api.retrieve)
	dg.PUT("/:id", api.update, adminMiddleware(user.RoleAdminOwner, user.RoleAdminPrincipal))
}

// resolve looks a district up by ZIP code: `GET /districts/resolve?zip=78701`.
func (api *districtApi) resolve(ctx echo.Context) error {
	zip := core.CleanString(ctx.QueryParam("zip"))
	d, err := api.svc.ResolveZIP(ctx.Request().Context(), zip)
	if err != nil {
		return errors.Wrap(err, "resolving zip")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *districtApi) create(ctx echo.Context) error {
	var data district.NewDistrict
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewDistrict")
	}

	d, err := api.svc.Register(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "registering district")
	}
	return ctx.JSON(http.StatusCreated, d)
}

func (api *districtApi) query(ctx echo.Context) error {
	filter := new(district.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []district.District{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	districts, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying districts")
	}
	if districts == nil {
		districts = []district.District{}
	}
	return ctx.JSON(http.StatusOK, districts)
}

func (api *districtApi) retrieve(ctx echo.Context) error {
	d, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding district by ID")
	}
	return ctx.JSON(http.StatusOK, d)
}

func (api *districtApi) update(ctx echo.Context) error {
	var data district.UpdateDistrict
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateDistrict")
	}

	d, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating district")
	}
	return ctx.JSON(http.StatusOK, d)
}

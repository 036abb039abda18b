package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kannanru/studentfee/core/fee"
	"github.com/kannanru/studentfee/core/student"
)

type studentApi struct {
	svc      *student.Service
	feeSvc   *fee.Service
	validate *validator.Validate
}

func registerStudentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *student.Service, feeSvc *fee.Service, validate *validator.Validate) {
	api := studentApi{svc: svc, feeSvc: feeSvc, validate: validate}

	sg := g.Group("/students", jwt)
	sg.GET("", api.query)
	sg.POST("", api.create, adminMiddleware())
	sg.GET("/summary", api.summary)
	sg.GET("/:id", api.retrieve)
	sg.GET("/:id/plans", api.plans, collectorMiddleware())
	sg.GET("/:id/plans/:plan/heads", api.heads, collectorMiddleware())
}

func (api *studentApi) query(ctx echo.Context) error {
	filter := new(student.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []student.Student{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	students, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *studentApi) create(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	std, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating student")
	}
	return ctx.JSON(http.StatusCreated, std)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	std, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	return ctx.JSON(http.StatusOK, std)
}

func (api *studentApi) summary(ctx echo.Context) error {
	sum, err := api.svc.Summary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "counting students")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *studentApi) plans(ctx echo.Context) error {
	plans, err := api.feeSvc.PlansForStudent(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying student fee plans")
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *studentApi) heads(ctx echo.Context) error {
	stmt, err := api.feeSvc.HeadsWithStatus(ctx.Request().Context(), ctx.Param("id"), ctx.Param("plan"))
	if err != nil {
		return errors.Wrap(err, "loading fee heads")
	}
	return ctx.JSON(http.StatusOK, stmt)
}

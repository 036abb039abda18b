package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kannanru/studentfee/core/attendance"
)

type attendanceApi struct {
	svc      *attendance.Service
	validate *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attendance.Service, validate *validator.Validate) {
	api := attendanceApi{svc: svc, validate: validate}

	ag := g.Group("/attendance", jwt)
	ag.POST("", api.mark, teacherMiddleware())
	ag.GET("", api.list)
	ag.GET("/summary", api.summary)
}

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.NewMarks
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewMarks")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	recs, err := api.svc.Mark(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusCreated, recs)
}

func (api *attendanceApi) list(ctx echo.Context) error {
	date, err := bindDate(ctx)
	if err != nil {
		return err
	}
	recs, err := api.svc.ListByDate(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "listing attendance")
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	return ctx.JSON(http.StatusOK, recs)
}

func (api *attendanceApi) summary(ctx echo.Context) error {
	date, err := bindDate(ctx)
	if err != nil {
		return err
	}
	sum, err := api.svc.Summary(ctx.Request().Context(), date)
	if err != nil {
		return errors.Wrap(err, "summarizing attendance")
	}
	return ctx.JSON(http.StatusOK, sum)
}

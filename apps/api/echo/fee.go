package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kannanru/studentfee/core"
	"github.com/kannanru/studentfee/core/fee"
)

type feeApi struct {
	svc           *fee.Service
	validate      *validator.Validate
	checkoutKeyID string
}

func registerFeeAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *fee.Service, validate *validator.Validate, checkoutKeyID string) {
	api := feeApi{svc: svc, validate: validate, checkoutKeyID: checkoutKeyID}
	collector := collectorMiddleware()

	pg := g.Group("/plans", jwt)
	pg.GET("", api.queryPlans)
	pg.POST("", api.createPlan, adminMiddleware())
	pg.GET("/:id", api.retrievePlan)

	pmg := g.Group("/payments", jwt, collector)
	pmg.POST("", api.recordPayment)
	pmg.GET("", api.queryPayments)

	g.GET("/fees/summary", api.summary, jwt)

	cg := g.Group("/checkout", jwt, collector)
	cg.GET("/config", api.checkoutConfig)
	cg.POST("/orders", api.createOrder)
	cg.POST("/verify", api.verifyPayment)
}

func (api *feeApi) queryPlans(ctx echo.Context) error {
	var filter fee.PlanFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []fee.Plan{})
	}
	plans, err := api.svc.QueryPlans(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying fee plans")
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *feeApi) createPlan(ctx echo.Context) error {
	var data fee.NewPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlan")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	plan, err := api.svc.CreatePlan(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating fee plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

func (api *feeApi) retrievePlan(ctx echo.Context) error {
	plan, err := api.svc.GetPlan(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding fee plan by ID")
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *feeApi) recordPayment(ctx echo.Context) error {
	var data fee.NewPayment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPayment")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	pmt, err := api.svc.RecordPayment(ctx.Request().Context(), data, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "recording payment")
	}
	return ctx.JSON(http.StatusCreated, pmt)
}

func (api *feeApi) queryPayments(ctx echo.Context) error {
	var filter fee.PaymentFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []fee.Payment{})
	}
	if date, err := bindDate(ctx); err != nil {
		return err
	} else if !date.IsZero() {
		filter.From = date
		filter.To = date.Add(24 * time.Hour)
	}
	pmts, err := api.svc.QueryPayments(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, pmts)
}

func (api *feeApi) summary(ctx echo.Context) error {
	sum, err := api.svc.Summary(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "summarizing payments")
	}
	return ctx.JSON(http.StatusOK, sum)
}

func (api *feeApi) checkoutConfig(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, CheckoutConfigResponse{KeyID: api.checkoutKeyID})
}

func (api *feeApi) createOrder(ctx echo.Context) error {
	var data fee.NewOrder
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewOrder")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}
	order, err := api.svc.CreateOrder(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating checkout order")
	}
	return ctx.JSON(http.StatusCreated, order)
}

func (api *feeApi) verifyPayment(ctx echo.Context) error {
	var data fee.Verification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Verification")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}
	data.OrderID = core.CleanString(data.OrderID)
	order, err := api.svc.VerifyPayment(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "verifying payment")
	}
	return ctx.JSON(http.StatusOK, order)
}

type CheckoutConfigResponse struct {
	KeyID string `json:"key_id"`
}

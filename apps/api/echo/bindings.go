package echoapi

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kannanru/studentfee/core"
)

const (
	orderingParam = "ordering"
	dateParam     = "date"
	dateLayout    = "2006-01-02"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads `?ordering=name,-created_at`.
func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindDate reads `?date=YYYY-MM-DD`; a missing date is the zero time.
func bindDate(ctx echo.Context) (time.Time, error) {
	val := ctx.QueryParam(dateParam)
	if val == "" {
		return time.Time{}, nil
	}
	date, err := time.Parse(dateLayout, val)
	if err != nil {
		return time.Time{}, core.NewFieldValidationError(dateParam, errors.New("date must be formatted as YYYY-MM-DD"))
	}
	return date, nil
}

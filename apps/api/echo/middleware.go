package echoapi

import (
	"github.com/labstack/echo/v4"
)

// claimsMiddleware only lets through requests whose claims satisfy allowed.
func claimsMiddleware(allowed func(Claims) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			if allowed(claims) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return claimsMiddleware(func(c Claims) bool { return c.IsAdmin })
}

// collectorMiddleware allows the accounts office and admins.
func collectorMiddleware() echo.MiddlewareFunc {
	return claimsMiddleware(func(c Claims) bool { return c.IsAdmin || c.CanCollect })
}

func teacherMiddleware() echo.MiddlewareFunc {
	return claimsMiddleware(func(c Claims) bool { return c.IsAdmin || c.IsTeacher })
}

package echoapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/kannanru/studentfee/core"
)

const (
	liveBuffer    = 64
	liveKeepAlive = 15 * time.Second
)

type liveApi struct {
	events Streamer
	logger core.Logger
}

func registerLiveAPI(g *echo.Group, jwt echo.MiddlewareFunc, events Streamer, logger core.Logger) {
	api := liveApi{events: events, logger: logger}
	g.GET("/live", api.stream, jwt)
}

// stream writes live events as server-sent events until the client goes away.
func (api *liveApi) stream(ctx echo.Context) error {
	events, cancel := api.events.Stream(liveBuffer)
	defer cancel()

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	// subscribed; lets clients know they will not miss anything from now on
	if _, err := fmt.Fprint(res, ": connected\n\n"); err != nil {
		return nil
	}
	res.Flush()

	keepAlive := time.NewTicker(liveKeepAlive)
	defer keepAlive.Stop()

	done := ctx.Request().Context().Done()
	for {
		select {
		case <-done:
			return nil
		case <-keepAlive.C:
			if _, err := fmt.Fprint(res, ": ping\n\n"); err != nil {
				return nil
			}
			res.Flush()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			data, err := json.Marshal(evt)
			if err != nil {
				api.logger.Error(fmt.Sprintf("encoding live event: %v", err), err)
				continue
			}
			if _, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return nil
			}
			res.Flush()
		}
	}
}

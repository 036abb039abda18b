package gateway

import (
	"bufio"
	"context"
	"net/http"
	"strings"
)

// Message is one server-sent event.
type Message struct {
	Event string
	Data  []byte
}

// Stream reads the server-sent events feed at path and hands every message to fn until ctx is
// done, the server closes the feed or fn fails. A nil error means ctx was cancelled or the feed ended.
func (c *Client) Stream(ctx context.Context, path string, fn func(Message) error) error {
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	// the feed is long lived: keep the transport, drop the client timeout
	hc := *c.HTTP
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return transportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err = c.checkResponse(resp); err != nil {
		return err
	}

	var (
		msg  Message
		data []string
	)
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			msg.Data = []byte(strings.Join(data, "\n"))
			if err = fn(msg); err != nil {
				return err
			}
			msg, data = Message{}, nil
		case strings.HasPrefix(line, ":"): // comment / keepalive
		case strings.HasPrefix(line, "event:"):
			msg.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err = scanner.Err(); err != nil && ctx.Err() == nil {
		return transportError(err)
	}
	return nil
}

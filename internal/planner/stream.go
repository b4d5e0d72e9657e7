package planner

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/orangehq/orange-agent/api/schemas"
)

// StreamEvents opens the session's server-sent event stream and decodes one
// PlannerStreamEvent per `data:` frame. The stream is infinite until the
// remote side closes it or ctx is cancelled; cancellation closes the events
// channel without an error.
func (c *HTTPClient) StreamEvents(ctx context.Context, sessionID string) (<-chan schemas.PlannerStreamEvent, <-chan error) {
	events := make(chan schemas.PlannerStreamEvent)
	errc := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errc)

		url := fmt.Sprintf("%s/v1/events/%s", c.baseURL, sessionID)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			errc <- &Error{Kind: ErrKindNetwork, Op: "stream_events", Err: err}
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.streamClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errc <- &Error{Kind: transportKind(err), Op: "stream_events", Err: err}
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errc <- &Error{Kind: ErrKindStatus, Op: "stream_events", StatusCode: resp.StatusCode,
				Err: fmt.Errorf("event stream rejected")}
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			// SSE frames arrive as "event: <name>" / "data: <json>" pairs
			// separated by blank lines; only data lines carry the payload.
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}

			var event schemas.PlannerStreamEvent
			if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &event); err != nil {
				c.logger.Warn("Dropping malformed stream event",
					zap.String("session_id", sessionID), zap.Error(err))
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			errc <- &Error{Kind: ErrKindNetwork, Op: "stream_events", Err: err}
		}
	}()

	return events, errc
}

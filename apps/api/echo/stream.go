package echoapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/minierp/core/cache"
)

const (
	eventAtRisk    = "at_risk"
	eventAnalytics = "analytics"

	defaultStreamInterval = 5 * time.Second
)

// streamer serves Server-Sent Events. A stream sends a frame at once, then on every tick and
// every cache refresh, until the client leaves, the server shuts down, or maxEvents frames were sent.
type streamer struct {
	cache     *cache.Cache
	interval  time.Duration
	maxEvents int
	done      <-chan struct{}
}

func newStreamer(s *server) *streamer {
	interval := s.Conf.Stream.Interval
	if interval <= 0 {
		interval = defaultStreamInterval
	}
	return &streamer{
		cache:     s.Cache,
		interval:  interval,
		maxEvents: s.Conf.Stream.MaxEvents,
		done:      s.done,
	}
}

func (st *streamer) stream(ctx echo.Context, event string, produce func(context.Context) interface{}) error {
	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	changes, unsubscribe := st.cache.Subscribe()
	defer unsubscribe()
	ticker := time.NewTicker(st.interval)
	defer ticker.Stop()

	reqCtx := ctx.Request().Context()
	for sent := 0; ; {
		if err := writeEvent(res, event, produce(reqCtx)); err != nil {
			return err
		}
		sent++
		if st.maxEvents > 0 && sent >= st.maxEvents {
			return nil
		}

		select {
		case <-reqCtx.Done():
			return nil
		case <-st.done:
			return nil
		case <-ticker.C:
		case <-changes:
		}
	}
}

func writeEvent(res *echo.Response, event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return errors.Wrapf(err, "encoding %s event", event)
	}
	if _, err = fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return errors.Wrapf(err, "writing %s event", event)
	}
	res.Flush()
	return nil
}

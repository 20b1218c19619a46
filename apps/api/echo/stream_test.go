package echoapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minierp/apps/api/echo"
	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/testutil"
)

type sseFrame struct {
	event string
	data  string
}

func parseFrames(t *testing.T, body string) []sseFrame {
	var frames []sseFrame
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if block == "" {
			continue
		}
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				f.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				f.data = strings.TrimPrefix(line, "data: ")
			default:
				t.Fatalf("unexpected line %q", line)
			}
		}
		frames = append(frames, f)
	}
	return frames
}

func Test_stream_maxEvents(t *testing.T) {
	env := setup(t)
	seedStudents(t, env)
	counselor := env.roleToken(t, core.RoleCounselor)

	t.Run("at risk", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/dashboard/at-risk/stream?student_id=S1", counselor)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
		assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))

		frames := parseFrames(t, rec.Body.String())
		require.Len(t, frames, 2)
		for _, f := range frames {
			assert.Equal(t, "at_risk", f.event)
			var resp echoapi.AssessmentsResponse
			require.NoError(t, json.Unmarshal([]byte(f.data), &resp))
			require.Len(t, resp.Items, 1)
			assert.Equal(t, "S1", resp.Items[0].StudentID)
		}
	})

	t.Run("analytics", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/dashboard/analytics/stream", counselor)
		require.Equal(t, http.StatusOK, rec.Code)

		frames := parseFrames(t, rec.Body.String())
		require.Len(t, frames, 2)
		var resp echoapi.AnalyticsResponse
		require.NoError(t, json.Unmarshal([]byte(frames[1].data), &resp))
		assert.Equal(t, "analytics", frames[1].event)
		assert.Equal(t, 2, resp.Analytics.Risk.AtRiskCount)
	})

	t.Run("counselor only", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/dashboard/at-risk/stream", env.roleToken(t, core.RoleStudent))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_stream_endsOnDisconnect(t *testing.T) {
	env := setup(t, func(conf *core.Config) {
		conf.Stream.Interval = time.Hour
		conf.Stream.MaxEvents = 0
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, rec := newAuthRequest(http.MethodGet, "/dashboard/at-risk/stream", env.roleToken(t, core.RoleCounselor))
	env.app.ServeHTTP(rec, req.WithContext(ctx))

	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "at_risk", frames[0].event)
}

func Test_stream_endsOnClose(t *testing.T) {
	env := setup(t, func(conf *core.Config) {
		conf.Stream.Interval = time.Hour
		conf.Stream.MaxEvents = 0
	})
	require.NoError(t, env.app.Close())

	rec := env.do(http.MethodGet, "/dashboard/analytics/stream", env.roleToken(t, core.RoleCounselor))
	frames := parseFrames(t, rec.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "analytics", frames[0].event)
}

func Test_stream_pushesCacheChanges(t *testing.T) {
	env := setup(t, func(conf *core.Config) {
		conf.Stream.Interval = time.Hour
		conf.Stream.MaxEvents = 2
	})
	srv := httptest.NewServer(env.app)
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/dashboard/at-risk/stream", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+env.roleToken(t, core.RoleCounselor))
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	reader := bufio.NewReader(res.Body)
	readFrame := func() string {
		var b strings.Builder
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if line == "\n" {
				return b.String() + "\n"
			}
			b.WriteString(line)
		}
	}

	first := parseFrames(t, readFrame())
	require.Len(t, first, 1)
	assert.JSONEq(t, `{"items":[]}`, first[0].data)

	rec := env.do(http.MethodPost, "/records/attendance", env.roleToken(t, core.RoleTeacher),
		[]byte(`{"student_id":"S9","date":"`+testutil.Date(0)+`","present":false}`))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	second := parseFrames(t, readFrame())
	require.Len(t, second, 1)
	var resp echoapi.AssessmentsResponse
	require.NoError(t, json.Unmarshal([]byte(second[0].data), &resp))
	require.Len(t, resp.Items, 1)
	assert.Equal(t, "S9", resp.Items[0].StudentID)
}

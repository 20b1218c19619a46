package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minierp/apps/api/echo"
	"github.com/trezcool/minierp/core"
	"github.com/trezcool/minierp/core/docstore"
	"github.com/trezcool/minierp/testutil"
)

func addNotification(t *testing.T, env *testEnv, sid, createdAt string, read bool) string {
	return testutil.AddDoc(t, env.db, docstore.Notifications, map[string]interface{}{
		"student_id": sid, "type": "risk_alert", "message": "Student " + sid + " flagged",
		"reasons": []string{"Failing grades"}, "created_at": createdAt, "read": read,
	})
}

func Test_notificationApi(t *testing.T) {
	env := setup(t)
	counselor := env.roleToken(t, core.RoleCounselor)
	oldID := addNotification(t, env, "S1", "2026-02-01T08:00:00.000000Z", false)
	addNotification(t, env, "S2", "2026-02-02T08:00:00.000000Z", true)
	newID := addNotification(t, env, "S3", "2026-02-03T08:00:00.000000Z", false)

	env.run(t, []httpTest{
		{name: "Auth required", path: "/notifications", wantCode: http.StatusUnauthorized, wantData: marshallObj(t, errMissingToken)},
		{
			name: "teacher", path: "/notifications", token: env.roleToken(t, core.RoleTeacher),
			wantCode: http.StatusForbidden, wantData: marshallObj(t, errForbidden),
		},
		{
			name: "mark unknown", method: http.MethodPost, path: "/notifications/nope/read", token: counselor,
			wantCode: http.StatusNotFound, wantData: marshallObj(t, errNotFound),
		},
	})

	list := func(t *testing.T, path string) []string {
		rec := env.do(http.MethodGet, path, counselor)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp echoapi.NotificationsResponse
		unmarshall(t, rec, &resp)
		sids := make([]string, 0, len(resp.Items))
		for _, n := range resp.Items {
			sids = append(sids, n.StudentID)
		}
		return sids
	}

	t.Run("all, latest first", func(t *testing.T) {
		assert.Equal(t, []string{"S3", "S2", "S1"}, list(t, "/notifications"))
	})
	t.Run("unread only", func(t *testing.T) {
		assert.Equal(t, []string{"S3", "S1"}, list(t, "/notifications?unread=1"))
		assert.Equal(t, []string{"S3", "S1"}, list(t, "/notifications?unread=true"))
		assert.Equal(t, []string{"S3", "S2", "S1"}, list(t, "/notifications?unread=0"))
	})
	t.Run("mark read", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/notifications/"+newID+"/read", counselor)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var n map[string]interface{}
		unmarshall(t, rec, &n)
		assert.Equal(t, newID, n["id"])
		assert.Equal(t, true, n["read"])

		assert.Equal(t, []string{"S1"}, list(t, "/notifications?unread=yes"))

		rec = env.do(http.MethodPost, "/notifications/"+oldID+"/read", env.roleToken(t, core.RoleAdmin))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, list(t, "/notifications?unread=1"))
	})
}

package echoapi_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/cohort/apps/api/echo"
	"github.com/trezcool/cohort/core/notification"
	"github.com/trezcool/cohort/core/task"
	"github.com/trezcool/cohort/tests"
)

func Test_notificationApi(t *testing.T) {
	env, app := setup(t)

	admin := testutil.CreateAdmin(t, env.UserRepo, "admin")
	mentor := testutil.CreateMentor(t, env.UserRepo, "mentor")
	stud := testutil.CreateStudent(t, env.UserRepo, "stud")
	other := testutil.CreateStudent(t, env.UserRepo, "other")
	crs := testutil.CreateCourse(t, env.CourseRepo, "Go", "GO101")
	testutil.CreateBatch(t, env.CourseRepo, crs, "B1", mentor.ID, stud)

	testutil.CreateTask(t, env, admin, task.NewTask{Title: "T1", CourseID: crs.ID, TaskOrder: 1})
	testutil.CreateTask(t, env, admin, task.NewTask{Title: "T2", CourseID: crs.ID, TaskOrder: 2})

	notifs := testutil.Notifications(t, env, stud.ID)
	require.Len(t, notifs, 2)
	studToken := getToken(t, env, stud)

	tests := []httpTest{
		{
			name:     "list",
			method:   http.MethodGet,
			path:     "/v1/notifications",
			token:    studToken,
			wantCode: http.StatusOK,
			wantData: marchallList(t, notifs[0], notifs[1]),
		},
		{
			name:     "unread count",
			method:   http.MethodGet,
			path:     "/v1/notifications/unread-count",
			token:    studToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CountResponse{Count: 2}),
		},
		{
			name:     "cannot read others' notification",
			method:   http.MethodPost,
			path:     "/v1/notifications/" + notifs[0].ID + "/read",
			token:    getToken(t, env, other),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "mark read",
			method:   http.MethodPost,
			path:     "/v1/notifications/" + notifs[0].ID + "/read",
			token:    studToken,
			wantCode: http.StatusOK,
		},
		{
			name:     "unread only",
			method:   http.MethodGet,
			path:     "/v1/notifications?unread=true",
			token:    studToken,
			wantCode: http.StatusOK,
			wantData: marchallList(t, notifs[1]),
		},
		{
			name:     "mark all read",
			method:   http.MethodPost,
			path:     "/v1/notifications/read-all",
			token:    studToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CountResponse{Count: 1}),
		},
		{
			name:     "nothing unread",
			method:   http.MethodGet,
			path:     "/v1/notifications/unread-count",
			token:    studToken,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CountResponse{Count: 0}),
		},
	}
	runHTTPTests(t, app, tests)

	var read []notification.Notification
	req, rec := newAuthRequest(http.MethodGet, "/v1/notifications", studToken)
	app.ServeHTTP(rec, req)
	unmarshall(t, rec, &read)
	for _, n := range read {
		assert.True(t, n.IsRead)
	}
}

package azdo

import (
	"context"
	"net/http"
	"testing"

	"github.com/Sternrassler/azdo-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListTestPlans_FollowsContinuation(t *testing.T) {
	mock := testutil.NewMockAzDO()
	defer mock.Close()

	path := testutil.OrgPath("Fabrikam/_apis/testplan/plans")
	mock.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("continuationToken") == "" {
			w.Header().Set("x-ms-continuationtoken", "page2")
			_, _ = w.Write([]byte(`{"count":1,"value":[{"id":1,"name":"Release 1","state":"Active","rootSuite":{"id":2}}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"count":1,"value":[{"id":5,"name":"Release 2","state":"Inactive","rootSuite":{"id":6}}]}`))
	})

	svc := newTestService(t, mock, Options{Project: "Fabrikam"})

	plans, err := svc.ListTestPlans(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Release 2", plans[1].Name)
	assert.Equal(t, 6, plans[1].RootSuite.ID)

	reqs := mock.RequestsFor(path)
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].Query, "continuationToken=page2")
}

func TestListTestCases_RootSuite(t *testing.T) {
	mock := testutil.NewMockAzDO()
	defer mock.Close()

	mock.SetResponse(testutil.OrgPath("Fabrikam/_apis/testplan/plans/1"),
		testutil.NewJSONResponse(`{"id":1,"name":"Release 1","rootSuite":{"id":2,"name":"Release 1"}}`))
	casesPath := testutil.OrgPath("Fabrikam/_apis/testplan/Plans/1/Suites/2/TestCase")
	mock.SetResponse(casesPath, testutil.NewJSONResponse(`{"count":2,"value":[
		{"workItem":{"id":101,"name":"Sign in with SSO"},"pointAssignments":[{"id":9,"configurationName":"Windows 11","tester":{"displayName":"Jamie Rivera"}}]},
		{"workItem":{"id":102,"name":"Sign out"},"pointAssignments":[]}
	]}`))

	svc := newTestService(t, mock, Options{Project: "Fabrikam"})

	cases, err := svc.ListTestCases(context.Background(), "", 1, 0)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "Sign in with SSO", cases[0].WorkItem.Name)
	require.Len(t, cases[0].PointAssignments, 1)
	assert.Equal(t, "Jamie Rivera", cases[0].PointAssignments[0].Tester.DisplayName)
	assert.Len(t, mock.RequestsFor(casesPath), 1)
}

func TestListTestSuites(t *testing.T) {
	mock := testutil.NewMockAzDO()
	defer mock.Close()

	mock.SetResponse(testutil.OrgPath("Fabrikam/_apis/testplan/Plans/1/suites"),
		testutil.NewJSONResponse(`{"count":2,"value":[{"id":2,"name":"Root","suiteType":"staticTestSuite"},{"id":3,"name":"Smoke","suiteType":"staticTestSuite","parentSuite":{"id":2}}]}`))

	svc := newTestService(t, mock, Options{Project: "Fabrikam"})

	suites, err := svc.ListTestSuites(context.Background(), "", 1)
	require.NoError(t, err)
	require.Len(t, suites, 2)
	assert.Nil(t, suites[0].ParentSuite)
	require.NotNil(t, suites[1].ParentSuite)
	assert.Equal(t, 2, suites[1].ParentSuite.ID)
}

package azdo

import (
	"context"
	"testing"

	"github.com/Sternrassler/azdo-client/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const iterationsJSON = `{"count":2,"value":[
	{"id":"a1","name":"Sprint 41","path":"Fabrikam\\Sprint 41","attributes":{"startDate":"2025-03-03T00:00:00Z","finishDate":"2025-03-14T00:00:00Z","timeFrame":"past"}},
	{"id":"a2","name":"Sprint 42","path":"Fabrikam\\Sprint 42","attributes":{"startDate":"2025-03-17T00:00:00Z","finishDate":"2025-03-28T00:00:00Z","timeFrame":"current"}}
]}`

func TestListIterations(t *testing.T) {
	mock := testutil.NewMockAzDO()
	defer mock.Close()

	path := testutil.OrgPath("Fabrikam/Web/_apis/work/teamsettings/iterations")
	mock.SetResponse(path, testutil.NewJSONResponse(iterationsJSON))

	svc := newTestService(t, mock, Options{Project: "Fabrikam", Team: "Web"})

	its, err := svc.ListIterations(context.Background(), "", "", TimeframeAll)
	require.NoError(t, err)
	require.Len(t, its, 2)
	assert.Equal(t, "Sprint 42", its[1].Name)
	assert.Equal(t, "current", its[1].Attributes.TimeFrame)
	require.NotNil(t, its[1].Attributes.FinishDate)
	assert.Equal(t, 28, its[1].Attributes.FinishDate.Day())

	reqs := mock.RequestsFor(path)
	require.Len(t, reqs, 1)
	assert.NotContains(t, reqs[0].Query, "timeframe")
}

func TestCurrentIteration(t *testing.T) {
	mock := testutil.NewMockAzDO()
	defer mock.Close()

	path := testutil.OrgPath("Fabrikam/Web/_apis/work/teamsettings/iterations")
	mock.SetSequence(path,
		testutil.NewJSONResponse(`{"count":1,"value":[{"id":"a2","name":"Sprint 42","path":"Fabrikam\\Sprint 42","attributes":{"timeFrame":"current"}}]}`),
		testutil.NewJSONResponse(`{"count":0,"value":[]}`),
	)

	svc := newTestService(t, mock, Options{Project: "Fabrikam"})

	it, err := svc.CurrentIteration(context.Background(), "", "Web")
	require.NoError(t, err)
	assert.Equal(t, "Sprint 42", it.Name)
	assert.Contains(t, mock.RequestsFor(path)[0].Query, "%24timeframe=current")

	_, err = svc.CurrentIteration(context.Background(), "", "Web")
	assert.ErrorIs(t, err, ErrNoCurrentIteration)
}

func TestListIterations_TeamRequired(t *testing.T) {
	mock := testutil.NewMockAzDO()
	defer mock.Close()

	svc := newTestService(t, mock, Options{Project: "Fabrikam"})

	_, err := svc.ListIterations(context.Background(), "", "", TimeframeCurrent)
	assert.ErrorIs(t, err, ErrTeamRequired)
	assert.Zero(t, mock.RequestCount())
}

package jobs

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/jobctl/internal/engine"
	"github.com/jmylchreest/jobctl/internal/enginetest"
	"github.com/jmylchreest/jobctl/internal/models"
)

func testRequest(input string) models.JobRequest {
	return models.JobRequest{
		WorkflowID: "wf-1",
		InputRef:   input,
		Priority:   "3",
		Variables:  []models.Variable{{Name: "s_project", Data: "caller"}},
	}
}

func TestSubmitter_Submit(t *testing.T) {
	fake := enginetest.NewServer()
	defer fake.Close()

	s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{}, nil)
	handle, err := s.Submit(context.Background(), testRequest("/media/a.mov"))
	require.NoError(t, err)

	assert.NotEmpty(t, handle.JobID)
	assert.Equal(t, "/media/a.mov", handle.InputRef)
	assert.False(t, handle.SubmittedAt.IsZero())

	subs := fake.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, handle.JobID, subs[0].JobID)
	assert.Equal(t, []models.Variable{{Name: "s_project", Data: "caller"}}, subs[0].Variables)
}

func TestSubmitter_InvalidRequest(t *testing.T) {
	fake := enginetest.NewServer()
	defer fake.Close()

	s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{}, nil)
	_, err := s.Submit(context.Background(), models.JobRequest{InputRef: "a.mov"})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrWorkflowIDRequired)
	assert.Empty(t, fake.Submissions())
}

func TestSubmitter_NoJobID(t *testing.T) {
	fake := enginetest.NewServer()
	defer fake.Close()
	fake.SetDefaultScript(enginetest.Script{NoJobID: true})

	s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{}, nil)
	_, err := s.Submit(context.Background(), testRequest("a.mov"))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrNoJobID)
}

func TestSubmitter_Rejected(t *testing.T) {
	fake := enginetest.NewServer()
	defer fake.Close()
	fake.SetDefaultScript(enginetest.Script{SubmitStatus: http.StatusBadRequest})

	s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{}, nil)
	_, err := s.Submit(context.Background(), testRequest("a.mov"))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnreachable)
}

func TestSubmitter_ReferenceEnrichment(t *testing.T) {
	fake := enginetest.NewServer()
	defer fake.Close()
	fake.AddRunningTicket("ref-42",
		models.Variable{Name: "s_project", Data: "inherited"},
		models.Variable{Name: "s_timecode", Data: "10:00:00:00"},
	)

	s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{ReferenceJobID: "ref-42"}, nil)
	_, err := s.Submit(context.Background(), testRequest("a.mov"))
	require.NoError(t, err)
	_, err = s.Submit(context.Background(), testRequest("b.mov"))
	require.NoError(t, err)

	subs := fake.Submissions()
	require.Len(t, subs, 2)
	for _, sub := range subs {
		assert.Equal(t, []models.Variable{
			{Name: "s_project", Data: "inherited"},
			{Name: "s_timecode", Data: "10:00:00:00"},
			{Name: "s_project", Data: "caller"},
		}, sub.Variables, "fetched variables come first and duplicates are kept")
	}
}

func TestSubmitter_ReferenceNotFound(t *testing.T) {
	fake := enginetest.NewServer()
	defer fake.Close()
	fake.AddRunningTicket("other")

	t.Run("lenient", func(t *testing.T) {
		s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{ReferenceJobID: "typo"}, nil)
		_, err := s.Submit(context.Background(), testRequest("a.mov"))
		require.NoError(t, err)

		subs := fake.Submissions()
		assert.Equal(t, []models.Variable{{Name: "s_project", Data: "caller"}}, subs[len(subs)-1].Variables)
	})

	t.Run("strict", func(t *testing.T) {
		s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{ReferenceJobID: "typo", StrictReference: true}, nil)
		_, err := s.Submit(context.Background(), testRequest("a.mov"))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrReferenceJobNotFound)
	})
}

func TestSubmitter_ReferenceTicketsUnavailable(t *testing.T) {
	fake := enginetest.NewServer()
	defer fake.Close()
	fake.SetTicketsStatus(http.StatusNotFound)

	s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{ReferenceJobID: "ref"}, nil)
	_, err := s.Submit(context.Background(), testRequest("a.mov"))
	assert.NoError(t, err)

	strict := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{ReferenceJobID: "ref", StrictReference: true}, nil)
	_, err = strict.Submit(context.Background(), testRequest("a.mov"))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrUnreachable)
}

func TestSubmitter_ReferenceVariables(t *testing.T) {
	fake := enginetest.NewServer()
	defer fake.Close()
	fake.AddRunningTicket("ref-1", models.Variable{Name: "s_a", Data: "1"})

	s := NewSubmitter(fastEngineClient(fake.URL), SubmitterConfig{}, nil)
	vars, err := s.ReferenceVariables(context.Background(), "ref-1")
	require.NoError(t, err)
	assert.Equal(t, []models.Variable{{Name: "s_a", Data: "1"}}, vars)

	_, err = s.ReferenceVariables(context.Background(), "ref-2")
	assert.ErrorIs(t, err, ErrReferenceJobNotFound)
}

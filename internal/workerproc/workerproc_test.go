package workerproc

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"autosurvey-backend/internal/batch"
	"autosurvey-backend/internal/queue"
	"autosurvey-backend/internal/roster"
)

type call struct {
	method string
	task   string
	url    string
	count  int
}

type fakeAutomation struct {
	calls []call
	err   error
}

func (f *fakeAutomation) RunAttendance(ctx context.Context, url string, ps []roster.Participant) (batch.Report, error) {
	f.calls = append(f.calls, call{method: "attendance", url: url, count: len(ps)})
	return batch.Report{Total: len(ps)}, f.err
}

func (f *fakeAutomation) RunQuiz(ctx context.Context, url string, ps []roster.Participant) (batch.Report, error) {
	f.calls = append(f.calls, call{method: "quiz", url: url, count: len(ps)})
	return batch.Report{Total: len(ps)}, f.err
}

func (f *fakeAutomation) RunPersonal(ctx context.Context, task, url string, p roster.Participant) (batch.Report, error) {
	f.calls = append(f.calls, call{method: "personal", task: task, url: url, count: 1})
	return batch.Report{Total: 1}, f.err
}

type staticRoster []roster.Participant

func (s staticRoster) Participants(ctx context.Context) ([]roster.Participant, error) {
	return s, nil
}

func encode(t *testing.T, msg queue.Message) string {
	t.Helper()
	body, err := queue.EncodeMessage(msg)
	require.NoError(t, err)
	return string(body)
}

func TestParseMessageErrors(t *testing.T) {
	_, _, err := ParseMessage("  ")
	require.ErrorAs(t, err, &ErrEmptyBody{})

	_, meta, err := ParseMessage("{bad-json")
	var decodeErr ErrDecode
	require.ErrorAs(t, err, &decodeErr)
	require.Equal(t, len("{bad-json"), meta.BodyLen)
	require.Len(t, meta.BodySHA, 64)

	_, _, err = ParseMessage(`{"jobId":"j1","task":"bake","url":"u"}`)
	var invalid ErrInvalid
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "j1", invalid.JobID)
	require.ErrorIs(t, err, queue.ErrUnknownTask)
	require.True(t, Unrecoverable(err))

	require.False(t, Unrecoverable(ErrProcess{Err: errors.New("boom")}))
}

func TestHandleMessageDispatchesByTask(t *testing.T) {
	auto := &fakeAutomation{}
	proc := &Processor{Automation: auto, Roster: staticRoster{
		{Name: "A", Email: "a@example.com", CompanyName: "Acme"},
		{Name: "B", Email: "b@example.com", CompanyName: "Acme"},
	}}
	ctx := context.Background()

	require.NoError(t, HandleMessage(ctx, proc, encode(t, queue.Message{JobID: "1", Task: queue.TaskBatchAttendance, URL: "att"})))
	require.NoError(t, HandleMessage(ctx, proc, encode(t, queue.Message{JobID: "2", Task: queue.TaskBatchQuiz, URL: "quiz"})))
	require.NoError(t, HandleMessage(ctx, proc, encode(t, queue.Message{
		JobID: "3", Task: queue.TaskPersonalQuiz, URL: "quiz",
		Personal: &roster.Participant{Name: "C", Email: "c@example.com", CompanyName: "Other"},
	})))

	require.Equal(t, []call{
		{method: "attendance", url: "att", count: 2},
		{method: "quiz", url: "quiz", count: 2},
		{method: "personal", task: batch.TaskQuiz, url: "quiz", count: 1},
	}, auto.calls)
}

func TestHandleMessageWrapsProcessErrors(t *testing.T) {
	boom := errors.New("boom")
	proc := &Processor{Automation: &fakeAutomation{err: boom}, Roster: staticRoster{}}
	msg := queue.Message{JobID: "j9", RequestID: "r9", Task: queue.TaskBatchQuiz, URL: "quiz"}

	err := HandleMessage(WithParsedMessage(context.Background(), msg), proc, "")
	var procErr ErrProcess
	require.ErrorAs(t, err, &procErr)
	require.Equal(t, "j9", procErr.JobID)
	require.ErrorIs(t, err, boom)
	require.False(t, Unrecoverable(err))
}

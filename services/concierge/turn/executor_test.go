package turn

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	openai2 "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kaytu-io/ai-concierge/pkg/utils"
	conciergeErrors "github.com/kaytu-io/ai-concierge/services/concierge/errors"
)

// fakeUpstream plays the assistants API from a scripted list of run statuses.
type fakeUpstream struct {
	mu sync.Mutex

	calls    []string
	threadID string
	runID    string
	statuses []openai2.RunStatus
	lastErr  *openai2.RunLastError
	messages []openai2.Message

	threadErr   error
	sendErr     error
	runErr      error
	retrieveErr error
	listErr     error

	sent      []string
	cancelled []string
}

func newFakeUpstream(statuses ...openai2.RunStatus) *fakeUpstream {
	return &fakeUpstream{
		threadID: "T1",
		runID:    "run_1",
		statuses: statuses,
		messages: []openai2.Message{
			assistantMessage("msg_3", "run_1", "Hi, how can I help?"),
			userMessage("msg_2", "Hello"),
			assistantMessage("msg_1", "run_0", "an earlier answer"),
		},
	}
}

func assistantMessage(id, runID, text string) openai2.Message {
	return openai2.Message{
		ID:      id,
		Role:    openai2.ChatMessageRoleAssistant,
		RunID:   utils.GetPointer(runID),
		Content: []openai2.MessageContent{{Type: "text", Text: &openai2.MessageText{Value: text}}},
	}
}

func userMessage(id, text string) openai2.Message {
	return openai2.Message{
		ID:      id,
		Role:    openai2.ChatMessageRoleUser,
		Content: []openai2.MessageContent{{Type: "text", Text: &openai2.MessageText{Value: text}}},
	}
}

func (f *fakeUpstream) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeUpstream) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeUpstream) NewThread(context.Context) (openai2.Thread, error) {
	f.record("create_thread")
	if f.threadErr != nil {
		return openai2.Thread{}, f.threadErr
	}
	return openai2.Thread{ID: f.threadID}, nil
}

func (f *fakeUpstream) SendMessage(_ context.Context, threadID, content string) (openai2.Message, error) {
	f.record("append_message")
	if f.sendErr != nil {
		return openai2.Message{}, f.sendErr
	}
	f.sent = append(f.sent, threadID+":"+content)
	return userMessage("msg_new", content), nil
}

func (f *fakeUpstream) RunThread(_ context.Context, threadID, assistantID string) (openai2.Run, error) {
	f.record("create_run")
	if f.runErr != nil {
		return openai2.Run{}, f.runErr
	}
	return openai2.Run{ID: f.runID, ThreadID: threadID, AssistantID: assistantID, Status: openai2.RunStatusQueued}, nil
}

func (f *fakeUpstream) RetrieveRun(ctx context.Context, threadID, runID string) (openai2.Run, error) {
	f.record("retrieve_run")
	if err := ctx.Err(); err != nil {
		return openai2.Run{}, err
	}
	if f.retrieveErr != nil {
		return openai2.Run{}, f.retrieveErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	status := openai2.RunStatusInProgress
	if len(f.statuses) > 0 {
		status = f.statuses[0]
		if len(f.statuses) > 1 {
			f.statuses = f.statuses[1:]
		}
	}
	return openai2.Run{ID: runID, ThreadID: threadID, Status: status, LastError: f.lastErr}, nil
}

func (f *fakeUpstream) CancelRun(_ context.Context, threadID, runID string) (openai2.Run, error) {
	f.record("cancel_run")
	f.mu.Lock()
	f.cancelled = append(f.cancelled, runID)
	f.mu.Unlock()
	return openai2.Run{ID: runID, ThreadID: threadID, Status: openai2.RunStatusCancelling}, nil
}

func (f *fakeUpstream) ListMessages(context.Context, string) (openai2.MessagesList, error) {
	f.record("list_messages")
	if f.listErr != nil {
		return openai2.MessagesList{}, f.listErr
	}
	return openai2.MessagesList{Messages: f.messages}, nil
}

func newTestExecutor(up Upstream, opts Options) *Executor {
	return NewExecutor(zap.NewNop(), up, opts)
}

var fastPoll = Options{PollInterval: time.Millisecond, Timeout: 5 * time.Second}

func TestExecuteNewConversation(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusInProgress, openai2.RunStatusCompleted)

	reply, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{Message: "Hello", AssistantID: "asst_1"})
	require.NoError(t, err)

	assert.Equal(t, "T1", reply.ThreadID)
	assert.Equal(t, "run_1", reply.RunID)
	assert.Equal(t, "Hi, how can I help?", reply.Message)
	assert.Equal(t, []string{"T1:Hello"}, up.sent)
	assert.Equal(t, []string{
		"create_thread", "append_message", "create_run",
		"retrieve_run", "retrieve_run", "list_messages",
	}, up.calls)
}

func TestExecuteReusesSuppliedThread(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusCompleted)

	reply, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{ThreadID: " T1 ", Message: "Follow up", AssistantID: "asst_1"})
	require.NoError(t, err)

	assert.Equal(t, "T1", reply.ThreadID)
	assert.Zero(t, up.count("create_thread"))
	assert.Equal(t, []string{"T1:Follow up"}, up.sent)
}

func TestExecuteRejectsBlankMessage(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusCompleted)

	_, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{Message: "  "})
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Equal(t, conciergeErrors.KindInvalidInput, conciergeErrors.KindOf(err))
	assert.Empty(t, up.calls)
}

func TestExecuteTerminalFailures(t *testing.T) {
	for _, status := range []openai2.RunStatus{
		openai2.RunStatusFailed,
		openai2.RunStatusCancelled,
		openai2.RunStatusExpired,
		openai2.RunStatusRequiresAction,
	} {
		t.Run(string(status), func(t *testing.T) {
			up := newFakeUpstream(openai2.RunStatusInProgress, status)
			up.lastErr = &openai2.RunLastError{Message: "rate limit exceeded"}

			_, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{Message: "Hello", AssistantID: "asst_1"})
			require.ErrorIs(t, err, ErrRunFailed)
			assert.Equal(t, conciergeErrors.KindUpstream, conciergeErrors.KindOf(err))
			assert.Contains(t, err.Error(), string(status))
			assert.Contains(t, err.Error(), "rate limit exceeded")
			assert.Zero(t, up.count("list_messages"))
			assert.Equal(t, 2, up.count("retrieve_run"))
		})
	}
}

func TestExecuteRequiresActionCancelsRun(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusRequiresAction)

	_, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{Message: "Hello"})
	require.Error(t, err)
	assert.Equal(t, []string{"run_1"}, up.cancelled)
}

func TestExecuteMaxAttempts(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusInProgress)

	_, err := newTestExecutor(up, Options{PollInterval: time.Millisecond, MaxAttempts: 3}).Execute(context.Background(), Request{Message: "Hello"})
	require.ErrorIs(t, err, ErrPollExhausted)
	assert.Equal(t, conciergeErrors.KindTimeout, conciergeErrors.KindOf(err))
	assert.Equal(t, 3, up.count("retrieve_run"))
	assert.Equal(t, []string{"run_1"}, up.cancelled)
	assert.Zero(t, up.count("list_messages"))
}

func TestExecuteTimeout(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusQueued)

	start := time.Now()
	_, err := newTestExecutor(up, Options{PollInterval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond}).Execute(context.Background(), Request{Message: "Hello"})
	require.ErrorIs(t, err, ErrPollExhausted)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, conciergeErrors.KindTimeout, conciergeErrors.KindOf(err))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, []string{"run_1"}, up.cancelled)
}

func TestExecuteCallerDeadline(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusInProgress)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newTestExecutor(up, Options{PollInterval: 5 * time.Millisecond}).Execute(ctx, Request{Message: "Hello"})
	require.ErrorIs(t, err, ErrPollExhausted)
	assert.Equal(t, []string{"run_1"}, up.cancelled, "cancel outlives the caller's context")
}

func TestExecuteUpstreamErrors(t *testing.T) {
	boom := errors.New("connection reset by peer")

	cases := []struct {
		name  string
		setup func(*fakeUpstream)
		calls int
	}{
		{"create thread", func(f *fakeUpstream) { f.threadErr = boom }, 1},
		{"append message", func(f *fakeUpstream) { f.sendErr = boom }, 2},
		{"create run", func(f *fakeUpstream) { f.runErr = boom }, 3},
		{"retrieve run", func(f *fakeUpstream) { f.retrieveErr = boom }, 4},
		{"list messages", func(f *fakeUpstream) { f.listErr = boom }, 5},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			up := newFakeUpstream(openai2.RunStatusCompleted)
			tc.setup(up)

			_, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{Message: "Hello"})
			require.ErrorIs(t, err, boom)
			assert.Equal(t, conciergeErrors.KindUpstream, conciergeErrors.KindOf(err))
			assert.Len(t, up.calls, tc.calls, "no retries")
		})
	}
}

func TestExecuteUnknownThread(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusCompleted)
	up.sendErr = &openai2.APIError{HTTPStatusCode: http.StatusNotFound, Message: "No thread found with id 'T9'."}

	_, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{ThreadID: "T9", Message: "Hello"})
	require.Error(t, err)
	assert.Equal(t, conciergeErrors.KindNotFound, conciergeErrors.KindOf(err))
}

func TestExecuteUnknownAssistant(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusCompleted)
	up.runErr = &openai2.APIError{HTTPStatusCode: http.StatusNotFound, Message: "No assistant found with id 'asst_gone'."}

	_, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{Message: "Hello", AssistantID: "asst_gone"})
	require.ErrorIs(t, err, ErrUnknownAssistant)
	assert.Equal(t, conciergeErrors.KindUpstream, conciergeErrors.KindOf(err))
}

func TestExecuteNoAssistantReply(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusCompleted)
	up.messages = []openai2.Message{userMessage("msg_1", "Hello")}

	_, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{Message: "Hello"})
	require.ErrorIs(t, err, ErrNoReply)
	assert.Equal(t, conciergeErrors.KindUpstream, conciergeErrors.KindOf(err))
}

func TestExecuteRunWroteNoMessage(t *testing.T) {
	up := newFakeUpstream(openai2.RunStatusCompleted)
	up.messages = []openai2.Message{
		userMessage("msg_2", "Follow up"),
		assistantMessage("msg_1", "run_0", "an earlier answer"),
	}

	reply, err := newTestExecutor(up, fastPoll).Execute(context.Background(), Request{ThreadID: "T1", Message: "Follow up", AssistantID: "asst_1"})
	require.ErrorIs(t, err, ErrNoReply)
	assert.Equal(t, conciergeErrors.KindUpstream, conciergeErrors.KindOf(err))
	assert.Empty(t, reply.Message)
	assert.Equal(t, http.StatusBadGateway, conciergeErrors.ToHTTPError(err).Code)
}

func TestNewExecutorDefaultsPollInterval(t *testing.T) {
	for _, interval := range []time.Duration{0, -time.Second} {
		e := NewExecutor(zap.NewNop(), newFakeUpstream(), Options{PollInterval: interval})
		assert.Equal(t, DefaultPollInterval, e.opts.PollInterval)
	}

	e := NewExecutor(zap.NewNop(), newFakeUpstream(), Options{PollInterval: time.Millisecond})
	assert.Equal(t, time.Millisecond, e.opts.PollInterval)
}

func TestLatestReply(t *testing.T) {
	multi := assistantMessage("msg_5", "run_2", "first part")
	multi.Content = append(multi.Content,
		openai2.MessageContent{Type: "image_file"},
		openai2.MessageContent{Type: "text", Text: &openai2.MessageText{Value: "second part"}},
	)

	cases := []struct {
		name  string
		msgs  []openai2.Message
		runID string
		want  string
	}{
		{
			name:  "newest assistant message of the run",
			msgs:  []openai2.Message{assistantMessage("msg_4", "run_2", "new"), assistantMessage("msg_2", "run_1", "old")},
			runID: "run_2",
			want:  "new",
		},
		{
			name:  "run message wins over a newer foreign one",
			msgs:  []openai2.Message{assistantMessage("msg_9", "run_x", "foreign"), userMessage("msg_8", "q"), assistantMessage("msg_7", "run_2", "ours")},
			runID: "run_2",
			want:  "ours",
		},
		{
			name: "falls back to a message without run id",
			msgs: []openai2.Message{
				assistantMessage("msg_4", "run_1", "previous turn"),
				{ID: "msg_3", Role: openai2.ChatMessageRoleAssistant, Content: []openai2.MessageContent{{Type: "text", Text: &openai2.MessageText{Value: "unattributed"}}}},
			},
			runID: "run_2",
			want:  "unattributed",
		},
		{
			name:  "text parts are joined",
			msgs:  []openai2.Message{multi},
			runID: "run_2",
			want:  "first part\nsecond part",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := LatestReply(tc.msgs, tc.runID)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := LatestReply(nil, "run_1")
	assert.ErrorIs(t, err, ErrNoReply)

	earlier := []openai2.Message{userMessage("msg_3", "q"), assistantMessage("msg_2", "run_1", "latest"), assistantMessage("msg_1", "run_0", "older")}
	_, err = LatestReply(earlier, "run_2")
	assert.ErrorIs(t, err, ErrNoReply, "earlier turns' replies are never returned")

	imageOnly := openai2.Message{ID: "msg_1", Role: openai2.ChatMessageRoleAssistant, Content: []openai2.MessageContent{{Type: "image_file"}}}
	_, err = LatestReply([]openai2.Message{imageOnly}, "")
	assert.ErrorIs(t, err, ErrNoReply)
}

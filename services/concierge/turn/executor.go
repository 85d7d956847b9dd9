package turn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai2 "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kaytu-io/ai-concierge/services/concierge/config"
	conciergeErrors "github.com/kaytu-io/ai-concierge/services/concierge/errors"
	"github.com/kaytu-io/ai-concierge/services/concierge/model"
)

const (
	cancelTimeout = 5 * time.Second

	// DefaultPollInterval replaces a non-positive PollInterval.
	DefaultPollInterval = time.Second
)

var (
	ErrEmptyMessage     = errors.New("message is required")
	ErrRunFailed        = errors.New("run did not complete")
	ErrPollExhausted    = errors.New("run did not settle in time")
	ErrNoReply          = errors.New("no assistant reply")
	ErrUnknownAssistant = errors.New("assistant not found")
)

// Upstream is the part of the assistants API a turn needs.
type Upstream interface {
	NewThread(ctx context.Context) (openai2.Thread, error)
	SendMessage(ctx context.Context, threadID, content string) (openai2.Message, error)
	RunThread(ctx context.Context, threadID, assistantID string) (openai2.Run, error)
	RetrieveRun(ctx context.Context, threadID, runID string) (openai2.Run, error)
	CancelRun(ctx context.Context, threadID, runID string) (openai2.Run, error)
	ListMessages(ctx context.Context, threadID string) (openai2.MessagesList, error)
}

// Options bound the wait for a run. Zero MaxAttempts or Timeout means no bound of
// that kind; the caller's context deadline always applies.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	Timeout      time.Duration
}

func OptionsFromConfig(cnf config.Poll) Options {
	return Options{
		PollInterval: cnf.Interval,
		MaxAttempts:  cnf.MaxAttempts,
		Timeout:      cnf.Timeout,
	}
}

type Request struct {
	ThreadID    string
	Message     string
	AssistantID string
}

type Reply struct {
	Message  string
	ThreadID string
	RunID    string
}

type Executor struct {
	logger *zap.Logger
	tracer trace.Tracer
	up     Upstream
	opts   Options
}

func NewExecutor(logger *zap.Logger, up Upstream, opts Options) *Executor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	return &Executor{
		logger: logger.Named("turn"),
		tracer: otel.GetTracerProvider().Tracer("concierge.turn"),
		up:     up,
		opts:   opts,
	}
}

// Execute appends the message to the conversation (creating one when ThreadID is
// empty), runs the assistant on it and returns the assistant's newest reply.
func (e *Executor) Execute(ctx context.Context, req Request) (reply Reply, err error) {
	ctx, span := e.tracer.Start(ctx, "turn.execute")
	defer span.End()

	start := time.Now()
	defer func() {
		observeTurn(err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if strings.TrimSpace(req.Message) == "" {
		return Reply{}, conciergeErrors.InvalidInput("execute turn", ErrEmptyMessage)
	}

	threadID := strings.TrimSpace(req.ThreadID)
	supplied := threadID != ""
	if !supplied {
		th, err := e.up.NewThread(ctx)
		if err != nil {
			e.logger.Error("failed to create thread", zap.Error(err))
			return Reply{}, conciergeErrors.Upstream("create thread", err)
		}
		threadID = th.ID
	}
	span.SetAttributes(attribute.String("thread_id", threadID), attribute.Bool("new_thread", !supplied))

	if _, err := e.up.SendMessage(ctx, threadID, req.Message); err != nil {
		e.logger.Error("failed to send message", zap.String("thread_id", threadID), zap.Error(err))
		if supplied && isNotFound(err) {
			return Reply{}, conciergeErrors.NotFound("append message", fmt.Errorf("conversation %s: %w", threadID, err))
		}
		return Reply{}, conciergeErrors.Upstream("append message", err)
	}

	run, err := e.up.RunThread(ctx, threadID, req.AssistantID)
	if err != nil {
		e.logger.Error("failed to create run", zap.String("thread_id", threadID), zap.String("assistant_id", req.AssistantID), zap.Error(err))
		if isNotFound(err) {
			err = fmt.Errorf("%w: %w", ErrUnknownAssistant, err)
		}
		return Reply{}, conciergeErrors.Upstream("create run", err)
	}
	span.SetAttributes(attribute.String("run_id", run.ID))

	run, err = e.wait(ctx, threadID, run)
	if err != nil {
		return Reply{}, err
	}

	msgs, err := e.up.ListMessages(ctx, threadID)
	if err != nil {
		e.logger.Error("failed to list messages", zap.String("thread_id", threadID), zap.Error(err))
		return Reply{}, conciergeErrors.Upstream("list messages", err)
	}

	text, err := LatestReply(msgs.Messages, run.ID)
	if err != nil {
		return Reply{}, conciergeErrors.Upstream("read reply", err)
	}

	e.logger.Info("turn completed",
		zap.String("thread_id", threadID),
		zap.String("run_id", run.ID),
		zap.Duration("duration", time.Since(start)),
	)

	return Reply{Message: text, ThreadID: threadID, RunID: run.ID}, nil
}

// wait polls the run until it settles or the poll budget runs out.
func (e *Executor) wait(ctx context.Context, threadID string, run openai2.Run) (openai2.Run, error) {
	pollCtx := ctx
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	attempts := 0
	defer func() { pollAttempts.Observe(float64(attempts)) }()

	for {
		if run.Status == openai2.RunStatusCompleted {
			return run, nil
		}
		if model.IsFailure(run.Status) {
			e.logger.Warn("run ended without reply",
				zap.String("thread_id", threadID),
				zap.String("run_id", run.ID),
				zap.String("status", string(run.Status)),
			)
			if run.Status == openai2.RunStatusRequiresAction {
				e.cancel(ctx, threadID, run)
			}
			return run, conciergeErrors.Upstream("run", runFailure(run))
		}

		if e.opts.MaxAttempts > 0 && attempts >= e.opts.MaxAttempts {
			e.cancel(ctx, threadID, run)
			return run, conciergeErrors.Timeout("poll run",
				fmt.Errorf("%w: run %s still %s after %d attempts", ErrPollExhausted, run.ID, run.Status, attempts))
		}

		timer := time.NewTimer(e.opts.PollInterval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			e.cancel(ctx, threadID, run)
			return run, conciergeErrors.Timeout("poll run",
				fmt.Errorf("%w: run %s still %s: %w", ErrPollExhausted, run.ID, run.Status, pollCtx.Err()))
		case <-timer.C:
		}

		next, err := e.up.RetrieveRun(pollCtx, threadID, run.ID)
		attempts++
		if err != nil {
			if pollCtx.Err() != nil {
				e.cancel(ctx, threadID, run)
				return run, conciergeErrors.Timeout("poll run",
					fmt.Errorf("%w: run %s still %s: %w", ErrPollExhausted, run.ID, run.Status, pollCtx.Err()))
			}
			e.logger.Error("failed to retrieve run", zap.String("thread_id", threadID), zap.String("run_id", run.ID), zap.Error(err))
			return run, conciergeErrors.Upstream("retrieve run", err)
		}
		run = next
	}
}

// cancel asks the service to stop a run that is still active, so the thread accepts
// new messages. It outlives ctx on purpose and only logs failures.
func (e *Executor) cancel(ctx context.Context, threadID string, run openai2.Run) {
	if model.IsTerminal(run.Status) || run.Status == openai2.RunStatusCancelling {
		return
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cancelTimeout)
	defer cancel()

	if _, err := e.up.CancelRun(cctx, threadID, run.ID); err != nil {
		e.logger.Warn("failed to cancel run", zap.String("thread_id", threadID), zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	e.logger.Info("cancelled run", zap.String("thread_id", threadID), zap.String("run_id", run.ID))
}

func runFailure(run openai2.Run) error {
	if run.LastError != nil && run.LastError.Message != "" {
		return fmt.Errorf("%w: run %s %s: %s", ErrRunFailed, run.ID, run.Status, run.LastError.Message)
	}
	return fmt.Errorf("%w: run %s %s", ErrRunFailed, run.ID, run.Status)
}

// LatestReply picks the text of the assistant's reply to runID. msgs must be ordered
// newest first. Messages that name another run belong to earlier turns and are never
// returned; an assistant message without a run id is accepted only when no message of
// runID exists.
func LatestReply(msgs []openai2.Message, runID string) (string, error) {
	var latest *openai2.Message
	for i := range msgs {
		msg := &msgs[i]
		if msg.Role != openai2.ChatMessageRoleAssistant {
			continue
		}
		msgRun := ""
		if msg.RunID != nil {
			msgRun = *msg.RunID
		}
		if msgRun != "" && msgRun == runID {
			latest = msg
			break
		}
		if msgRun == "" && latest == nil {
			latest = msg
		}
	}
	if latest == nil {
		return "", fmt.Errorf("%w: run %s wrote no message", ErrNoReply, runID)
	}

	var parts []string
	for _, content := range latest.Content {
		if content.Text != nil {
			parts = append(parts, content.Text.Value)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: message %s has no text", ErrNoReply, latest.ID)
	}

	return strings.Join(parts, "\n"), nil
}

func isNotFound(err error) bool {
	var apiErr *openai2.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusNotFound
	}
	var reqErr *openai2.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}

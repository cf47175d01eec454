package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// ChatMessenger delivers a message through the chat platform. It is
// the ordinary reply path and the failure-notification path alike.
type ChatMessenger interface {
	Send(ctx context.Context, msg OutboundMessage) (MessageReceipt, error)
}

// MessageSource fetches a message body by id; webhook envelopes only
// carry the id of the message that triggered them.
type MessageSource interface {
	GetMessage(ctx context.Context, messageID string) (ChatMessage, error)
}

type RoomSource interface {
	GetRoom(ctx context.Context, roomID string) (Room, error)
}

// PersonResolver resolves a chat person id into a rich profile.
type PersonResolver interface {
	ResolvePerson(ctx context.Context, personID string) (Person, error)
}

// TrustPolicy authorizes a sender address before command extraction.
type TrustPolicy interface {
	Allows(email string) (bool, error)
	Check(email string) error
}

// MonitorReader is the read surface of the monitoring backend the
// chat commands report against.
type MonitorReader interface {
	ActiveIssues(ctx context.Context) ([]Issue, error)
	Status(ctx context.Context) (MonitorStatus, error)
}

const (
	// TaskClassReport covers monitoring-report commands; TaskClassMessage
	// covers chat message delivery. Each class carries its own retry
	// schedule in Config.Retry.
	TaskClassReport  = "report"
	TaskClassMessage = "message"
)

// TaskRequest is one unit of asynchronous work handed to the task
// executor. Room and IssuerEmail travel along so failure
// notifications can address the originating conversation.
type TaskRequest struct {
	Name        string
	Class       string
	Room        Room
	IssuerEmail string
	Run         func(ctx context.Context) error
}

// TaskSubmitter accepts a task for asynchronous execution and returns
// a tracking id.
type TaskSubmitter interface {
	Submit(ctx context.Context, req TaskRequest) (string, error)
}

// Job ids for the two task classes as they travel through a queue.
const (
	JobIDCommandReport = "zpark.command.report"
	JobIDAlertMessage  = "zpark.alert.message"
)

// JobExecutionMessage is the queue-neutral submission contract the
// task executor speaks; adapters/gojob maps it onto go-job.
type JobExecutionMessage struct {
	JobID          string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

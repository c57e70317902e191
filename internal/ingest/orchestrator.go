package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/clinicore/imagingest/internal/archive"
	"github.com/clinicore/imagingest/internal/dicomfile"
	"github.com/clinicore/imagingest/internal/logging"
)

// ProgressEvent is a snapshot of one task's state, published on every
// transition. The final event of a run carries the Summary and nothing else.
type ProgressEvent struct {
	TaskIndex     int
	FileName      string
	State         TaskState
	UploadedBytes int64
	TotalBytes    int64
	Err           error

	// Summary is non-nil only on the last event before the channel closes.
	Summary *Summary
}

// Summary aggregates the outcome of a finished (or cancelled) run.
type Summary struct {
	Completed int
	Errored   int
	Remaining int

	// RemoteStudyIDs lists the distinct archive study identifiers the batch
	// landed in, in first-seen order.
	RemoteStudyIDs []string

	TotalBytes    int64
	UploadedBytes int64
	Duration      time.Duration
	Cancelled     bool
}

// Orchestrator transmits a session's upload tasks to the archive one file at
// a time. Failures are isolated per file and cancellation takes effect
// between files, never mid-transfer.
type Orchestrator struct {
	store         archive.Store
	uploadTimeout time.Duration
	log           *logging.Logger
}

// NewOrchestrator wires an orchestrator to an archive store. A zero timeout
// falls back to archive.DefaultUploadTimeout.
func NewOrchestrator(store archive.Store, uploadTimeout time.Duration, log *logging.Logger) *Orchestrator {
	if uploadTimeout <= 0 {
		uploadTimeout = archive.DefaultUploadTimeout
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Orchestrator{store: store, uploadTimeout: uploadTimeout, log: log}
}

// Run builds one task per valid file, starts the upload loop in its own
// goroutine and returns the event stream. The channel is buffered so the
// loop never blocks on a slow consumer, and is closed after the summary
// event. Cancelling ctx stops the loop before the next file; the file in
// flight always runs to completion under its own timeout.
func (o *Orchestrator) Run(ctx context.Context, sess *Session) <-chan ProgressEvent {
	files := sess.ValidFiles()
	sess.Tasks = make([]*UploadTask, 0, len(files))
	for _, f := range files {
		sess.Tasks = append(sess.Tasks, newUploadTask(f))
	}

	// Every task emits at most two events, plus the summary.
	events := make(chan ProgressEvent, 2*len(sess.Tasks)+1)
	go o.run(ctx, sess, events)
	return events
}

func (o *Orchestrator) run(ctx context.Context, sess *Session, events chan<- ProgressEvent) {
	defer close(events)
	start := time.Now()

	for i, task := range sess.Tasks {
		if ctx.Err() != nil {
			break
		}
		task.advance(TaskUploading, 0)
		events <- snapshot(i, task)
		o.uploadOne(ctx, sess, task)
		events <- snapshot(i, task)
	}

	sum := summarize(sess, time.Since(start), ctx.Err() != nil)
	sess.Summary = sum
	o.log.Info("ingestion run finished",
		"session", sess.ID.String(),
		"completed", sum.Completed,
		"errored", sum.Errored,
		"remaining", sum.Remaining,
	)
	events <- ProgressEvent{TaskIndex: -1, Summary: sum}
}

// uploadOne materializes the file with the session override and transmits
// it. The per-file context is detached from the session context so that a
// session cancel never truncates an instance mid-transfer.
func (o *Orchestrator) uploadOne(ctx context.Context, sess *Session, task *UploadTask) {
	payload, err := dicomfile.Materialize(task.File.Content, sess.Override)
	if err != nil {
		o.log.Warn("materialize failed", "file", task.File.Name, "error", err)
		task.fail(fmt.Errorf("materialize %s: %w", task.File.Name, err))
		return
	}
	task.TotalBytes = int64(len(payload))

	fileCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.uploadTimeout)
	defer cancel()

	opts := archive.StoreOptions{OrderID: sess.OrderID}
	if sess.Candidate != nil {
		opts.PatientID = sess.Candidate.Patient.ID.String()
	}
	res, err := o.store.StoreInstance(fileCtx, payload, opts)
	if err != nil {
		o.log.Warn("store failed", "file", task.File.Name, "error", err)
		task.fail(fmt.Errorf("store %s: %w", task.File.Name, err))
		return
	}
	task.complete(res.StudyID)
}

func snapshot(i int, t *UploadTask) ProgressEvent {
	return ProgressEvent{
		TaskIndex:     i,
		FileName:      t.File.Name,
		State:         t.State,
		UploadedBytes: t.UploadedBytes,
		TotalBytes:    t.TotalBytes,
		Err:           t.Err,
	}
}

func summarize(sess *Session, d time.Duration, cancelled bool) *Summary {
	sum := &Summary{Duration: d, Cancelled: cancelled}
	seen := make(map[string]bool)
	for _, t := range sess.Tasks {
		sum.TotalBytes += t.TotalBytes
		sum.UploadedBytes += t.UploadedBytes
		switch t.State {
		case TaskCompleted:
			sum.Completed++
			if t.RemoteStudyID != "" && !seen[t.RemoteStudyID] {
				seen[t.RemoteStudyID] = true
				sum.RemoteStudyIDs = append(sum.RemoteStudyIDs, t.RemoteStudyID)
			}
		case TaskError:
			sum.Errored++
		default:
			sum.Remaining++
		}
	}
	return sum
}

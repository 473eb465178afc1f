package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bwmarrin/snowflake"

	"askhc/src/core/document"
	"askhc/src/infrastructure/job"
)

type fakePublisher struct {
	mu   sync.Mutex
	msgs []*message.Message
	err  error
}

func (p *fakePublisher) Publish(topic string, msgs ...*message.Message) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msgs...)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type fakeIndexer struct {
	err     error
	indexed []string

	mu       sync.Mutex
	reindexs int
}

func (f *fakeIndexer) reindexCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reindexs
}

func (f *fakeIndexer) Reindex(ctx context.Context) (*document.LoadResult, int, error) {
	f.mu.Lock()
	f.reindexs++
	f.mu.Unlock()
	if f.err != nil {
		return nil, 0, f.err
	}
	return &document.LoadResult{Files: 2, TotalChunks: 9}, 9, nil
}

func (f *fakeIndexer) IndexStored(ctx context.Context, name string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.indexed = append(f.indexed, name)
	return 3, nil
}

func newService(t *testing.T, pub message.Publisher, idx job.Indexer) *job.JobService {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("NewNode() error = %v", err)
	}
	svc := job.NewJobService(pub, job.NewMemoryJobRepository(), watermill.NopLogger{}, node)
	job.RegisterDocumentTasks(svc, idx)
	return svc
}

func TestEnqueueAndProcess(t *testing.T) {
	tests := []struct {
		name     string
		taskType string
		payload  string
		idxErr   error
		want     job.JobStatus
	}{
		{"reindex", job.TaskTypeReindex, "", nil, job.JobStatusCompleted},
		{"index document", job.TaskTypeIndexDocument, `{"filename":"a.pdf"}`, nil, job.JobStatusCompleted},
		{"index document without name", job.TaskTypeIndexDocument, `{}`, nil, job.JobStatusFailed},
		{"reindex fails", job.TaskTypeReindex, "", errors.New("store down"), job.JobStatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			svc := newService(t, pub, &fakeIndexer{err: tt.idxErr})
			ctx := context.Background()

			created, err := svc.EnqueueJob(ctx, tt.taskType, json.RawMessage(tt.payload))
			if err != nil {
				t.Fatalf("EnqueueJob() error = %v", err)
			}
			if created.Status != job.JobStatusPending {
				t.Errorf("EnqueueJob() status = %v, want %v", created.Status, job.JobStatusPending)
			}
			if len(pub.msgs) != 1 {
				t.Fatalf("published %d messages, want 1", len(pub.msgs))
			}

			if err := svc.ProcessJobMessage(pub.msgs[0]); err != nil {
				t.Errorf("ProcessJobMessage() error = %v, want nil", err)
			}

			got, err := svc.GetJob(ctx, created.ID)
			if err != nil {
				t.Fatalf("GetJob() error = %v", err)
			}
			if got.Status != tt.want {
				t.Errorf("GetJob() status = %v, want %v", got.Status, tt.want)
			}
			if tt.want == job.JobStatusFailed && got.Error == nil {
				t.Error("failed job has no error message")
			}
			if tt.want == job.JobStatusCompleted && len(got.Result) == 0 {
				t.Error("completed job has no result")
			}
		})
	}
}

func TestReindexResult(t *testing.T) {
	pub := &fakePublisher{}
	svc := newService(t, pub, &fakeIndexer{})
	ctx := context.Background()

	created, _ := svc.EnqueueJob(ctx, job.TaskTypeReindex, nil)
	if err := svc.ProcessJobMessage(pub.msgs[0]); err != nil {
		t.Fatalf("ProcessJobMessage() error = %v", err)
	}
	got, _ := svc.GetJob(ctx, created.ID)

	var res job.ReindexResult
	if err := json.Unmarshal(got.Result, &res); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if res.Files != 2 || res.TotalChunks != 9 || res.TotalDocuments != 9 {
		t.Errorf("result = %+v", res)
	}
}

func TestIndexDocumentSanitizesFilename(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantStatus job.JobStatus
		wantIndex  []string
	}{
		{"parent traversal", `{"filename":"../notes.md"}`, job.JobStatusCompleted, []string{"notes.md"}},
		{"nested path", `{"filename":"a/b\\c.pdf"}`, job.JobStatusCompleted, []string{"c.pdf"}},
		{"dot dot only", `{"filename":".."}`, job.JobStatusFailed, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{}
			idx := &fakeIndexer{}
			svc := newService(t, pub, idx)
			ctx := context.Background()

			created, err := svc.EnqueueJob(ctx, job.TaskTypeIndexDocument, json.RawMessage(tt.payload))
			if err != nil {
				t.Fatalf("EnqueueJob() error = %v", err)
			}
			if err := svc.ProcessJobMessage(pub.msgs[0]); err != nil {
				t.Fatalf("ProcessJobMessage() error = %v", err)
			}
			got, _ := svc.GetJob(ctx, created.ID)
			if got.Status != tt.wantStatus {
				t.Fatalf("Status = %v, want %v", got.Status, tt.wantStatus)
			}
			if !reflect.DeepEqual(idx.indexed, tt.wantIndex) {
				t.Errorf("indexed = %v, want %v", idx.indexed, tt.wantIndex)
			}
			if tt.wantStatus != job.JobStatusCompleted {
				return
			}
			var res job.IndexDocumentResult
			if err := json.Unmarshal(got.Result, &res); err != nil {
				t.Fatalf("result is not JSON: %v", err)
			}
			if res.Filename != tt.wantIndex[0] {
				t.Errorf("result filename = %q, want %q", res.Filename, tt.wantIndex[0])
			}
		})
	}
}

func TestEnqueueErrors(t *testing.T) {
	svc := newService(t, &fakePublisher{}, &fakeIndexer{})
	if _, err := svc.EnqueueJob(context.Background(), "translate", nil); err == nil {
		t.Error("EnqueueJob() expected error for unknown task type")
	}

	svc = newService(t, &fakePublisher{err: errors.New("broker down")}, &fakeIndexer{})
	if _, err := svc.EnqueueJob(context.Background(), job.TaskTypeReindex, nil); err == nil {
		t.Error("EnqueueJob() expected error when publishing fails")
	}
}

func TestGetJobNotFound(t *testing.T) {
	svc := newService(t, &fakePublisher{}, &fakeIndexer{})
	if _, err := svc.GetJob(context.Background(), 42); !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("GetJob() error = %v, want %v", err, job.ErrJobNotFound)
	}
}

func TestParseID(t *testing.T) {
	if _, err := job.ParseID("not-a-number"); !errors.Is(err, job.ErrJobNotFound) {
		t.Errorf("ParseID() error = %v, want %v", err, job.ErrJobNotFound)
	}
	id, err := job.ParseID(strconv.FormatInt(1234567890123, 10))
	if err != nil || id != 1234567890123 {
		t.Errorf("ParseID() = %d, %v", id, err)
	}
}

func TestJobJSONUsesStringID(t *testing.T) {
	b, err := json.Marshal(job.Job{ID: 1, Status: job.JobStatusPending})
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]interface{}
	json.Unmarshal(b, &m)
	if m["id"] != "1" {
		t.Errorf("id = %#v, want \"1\"", m["id"])
	}
}

func TestRouterRunsJobs(t *testing.T) {
	logger := watermill.NopLogger{}
	pubSub := job.NewGoChannel(logger)
	svc := newService(t, pubSub, &fakeIndexer{})

	router, err := job.NewRouter(logger)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	svc.AddProcessor(router, pubSub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)
	<-router.Running()

	created, err := svc.EnqueueJob(ctx, job.TaskTypeIndexDocument, json.RawMessage(`{"filename":"notes.md"}`))
	if err != nil {
		t.Fatalf("EnqueueJob() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := svc.GetJob(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if got.Status == job.JobStatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not complete in time")
}

func TestRedeliveredFinishedJobIsSkipped(t *testing.T) {
	pub := &fakePublisher{}
	idx := &fakeIndexer{err: errors.New("store down")}
	svc := newService(t, pub, idx)

	if _, err := svc.EnqueueJob(context.Background(), job.TaskTypeReindex, nil); err != nil {
		t.Fatalf("EnqueueJob() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := svc.ProcessJobMessage(pub.msgs[0]); err != nil {
			t.Fatalf("ProcessJobMessage() error = %v", err)
		}
	}
	if got := idx.reindexCalls(); got != 1 {
		t.Errorf("Reindex calls = %d, want 1", got)
	}
}

func TestRouterSettlesFailedJob(t *testing.T) {
	logger := watermill.NopLogger{}
	pubSub := job.NewGoChannel(logger)
	idx := &fakeIndexer{err: errors.New("store down")}
	svc := newService(t, pubSub, idx)

	router, err := job.NewRouter(logger)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	svc.AddProcessor(router, pubSub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go router.Run(ctx)
	<-router.Running()

	created, err := svc.EnqueueJob(ctx, job.TaskTypeReindex, nil)
	if err != nil {
		t.Fatalf("EnqueueJob() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		got, err := svc.GetJob(ctx, created.ID)
		if err != nil {
			t.Fatalf("GetJob() error = %v", err)
		}
		if got.Status == job.JobStatusFailed {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job status = %v, want %v", got.Status, job.JobStatusFailed)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// leave room for a redelivery or a middleware retry
	time.Sleep(1500 * time.Millisecond)
	if got := idx.reindexCalls(); got != 1 {
		t.Errorf("Reindex calls = %d, want 1", got)
	}
}

package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/systemstart/launchpad/pkg/deploy"
)

func seedContext() *deploy.Context {
	return deploy.New(deploy.Seed{Name: "demo", OrgSlug: "personal"})
}

func TestRun_AbortsAtFirstFailure(t *testing.T) {
	var ran []string
	record := func(name string, err error) Action {
		return func(context.Context, *deploy.Context) error {
			ran = append(ran, name)
			return err
		}
	}

	boom := errors.New("boom")
	tasks := []Task{
		{Title: "T1", Action: record("T1", nil)},
		{Title: "T2", Action: record("T2", boom)},
		{Title: "T3", Action: record("T3", nil)},
	}

	_, err := Run(context.Background(), tasks, seedContext())
	if err == nil {
		t.Fatal("expected error")
	}

	if strings.Join(ran, ",") != "T1,T2" {
		t.Errorf("expected only T1 and T2 to run, got %v", ran)
	}

	var taskErr *TaskError
	if !errors.As(err, &taskErr) {
		t.Fatalf("expected *TaskError, got %T", err)
	}
	if taskErr.Index != 1 || taskErr.Title != "T2" {
		t.Errorf("expected failure at T2 (index 1), got %d %q", taskErr.Index, taskErr.Title)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected underlying error to be preserved, got %v", err)
	}
	if !strings.Contains(err.Error(), `"T2"`) {
		t.Errorf("error message should name the task: %v", err)
	}
}

func TestRun_ThreadsContext(t *testing.T) {
	tasks := []Task{
		{Title: "cache", Action: func(_ context.Context, dc *deploy.Context) error {
			return dc.SetCacheURL("redis://cache")
		}},
		{Title: "reader", Action: func(_ context.Context, dc *deploy.Context) error {
			if dc.CacheURL != "redis://cache" {
				return errors.New("cache url not visible to later task")
			}
			return dc.SetBucket("demo-storage")
		}},
	}

	dc, err := Run(context.Background(), tasks, seedContext())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dc.CacheURL != "redis://cache" || dc.Bucket != "demo-storage" {
		t.Errorf("unexpected final context: %+v", dc)
	}
}

func TestRun_FailedTaskLeavesNoMutation(t *testing.T) {
	tasks := []Task{
		{Title: "ok", Action: func(_ context.Context, dc *deploy.Context) error {
			return dc.SetCacheURL("redis://cache")
		}},
		{Title: "half-done", Action: func(_ context.Context, dc *deploy.Context) error {
			_ = dc.SetBucket("partial")
			dc.PutSecrets(map[string]string{"LEAK": "1"})
			return errors.New("remote failure")
		}},
	}

	dc, err := Run(context.Background(), tasks, seedContext())
	if err == nil {
		t.Fatal("expected error")
	}
	if dc.CacheURL != "redis://cache" {
		t.Errorf("expected earlier result to survive, got %q", dc.CacheURL)
	}
	if dc.Bucket != "" {
		t.Errorf("failed task mutation leaked: bucket=%q", dc.Bucket)
	}
	if _, ok := dc.Secrets["LEAK"]; ok {
		t.Error("failed task secret leaked")
	}
}

func TestRun_InputContextUntouched(t *testing.T) {
	seed := seedContext()
	tasks := []Task{{Title: "set", Action: func(_ context.Context, dc *deploy.Context) error {
		return dc.SetAppID("app-1")
	}}}

	dc, err := Run(context.Background(), tasks, seed)
	if err != nil {
		t.Fatal(err)
	}
	if dc.AppID != "app-1" {
		t.Errorf("expected app id on result, got %q", dc.AppID)
	}
	if seed.AppID != "" {
		t.Errorf("seed context mutated: %q", seed.AppID)
	}
}

func TestRun_NilAction(t *testing.T) {
	_, err := Run(context.Background(), []Task{{Title: "empty"}}, seedContext())
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Title != "empty" {
		t.Fatalf("expected TaskError for empty task, got %v", err)
	}
}

func TestRun_CancelledBeforeTask(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ran := 0
	tasks := []Task{
		{Title: "first", Action: func(context.Context, *deploy.Context) error {
			ran++
			cancel()
			return nil
		}},
		{Title: "second", Action: func(context.Context, *deploy.Context) error {
			ran++
			return nil
		}},
	}

	_, err := Run(ctx, tasks, seedContext())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	var taskErr *TaskError
	if !errors.As(err, &taskErr) || taskErr.Title != "second" {
		t.Errorf("expected cancellation reported at second task, got %v", err)
	}
	if ran != 1 {
		t.Errorf("expected one task to run, got %d", ran)
	}
}

type recordingObserver struct {
	events []string
}

func (o *recordingObserver) TaskStarted(_ int, title string) {
	o.events = append(o.events, "start:"+title)
}

func (o *recordingObserver) TaskFinished(_ int, title string, _ time.Duration, err error) {
	if err != nil {
		o.events = append(o.events, "fail:"+title)
		return
	}
	o.events = append(o.events, "done:"+title)
}

func TestRun_Observer(t *testing.T) {
	obs := &recordingObserver{}
	tasks := []Task{
		{Title: "a", Action: func(context.Context, *deploy.Context) error { return nil }},
		{Title: "b", Action: func(context.Context, *deploy.Context) error { return errors.New("x") }},
	}

	_, _ = Run(context.Background(), tasks, seedContext(), WithObserver(obs))

	want := "start:a,done:a,start:b,fail:b"
	if got := strings.Join(obs.events, ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestTee(t *testing.T) {
	a, b := &recordingObserver{}, &recordingObserver{}
	tasks := []Task{{Title: "only", Action: func(context.Context, *deploy.Context) error { return nil }}}

	_, err := Run(context.Background(), tasks, seedContext(), WithObserver(Tee(a, LogObserver(), b)))
	if err != nil {
		t.Fatal(err)
	}
	for _, o := range []*recordingObserver{a, b} {
		if got := strings.Join(o.events, ","); got != "start:only,done:only" {
			t.Errorf("events = %s", got)
		}
	}
}

func TestRunOne(t *testing.T) {
	dc := seedContext()
	task := Task{Title: "secret", Action: func(_ context.Context, dc *deploy.Context) error {
		return dc.SetGeneratedSecret("s3cr3t")
	}}

	out, err := RunOne(context.Background(), task, dc)
	if err != nil {
		t.Fatal(err)
	}
	if out.GeneratedSecret != "s3cr3t" {
		t.Errorf("unexpected secret %q", out.GeneratedSecret)
	}
}

package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

type fakeLock struct {
	held map[string]bool
}

func (f *fakeLock) Acquire(_ context.Context, job string) (bool, error) {
	if f.held == nil {
		f.held = map[string]bool{}
	}
	if f.held[job] {
		return false, nil
	}
	f.held[job] = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, job string) error {
	delete(f.held, job)
	return nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func TestServiceRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Jobs:   []Job{success, failure},
		Lock:   lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	service.RunOnce(context.Background())

	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job to run once, got %d and %d", success.runs, failure.runs)
	}
	if len(lock.held) != 0 {
		t.Fatalf("expected all job locks released, still held: %v", lock.held)
	}
}

func TestServiceSkipsJobHeldElsewhere(t *testing.T) {
	held := &testJob{name: "held"}
	free := &testJob{name: "free"}
	lock := &fakeLock{held: map[string]bool{"held": true}}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Jobs: []Job{held, free}, Lock: lock})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	service.RunOnce(context.Background())

	if held.runs != 0 {
		t.Fatalf("expected held job to be skipped, ran %d", held.runs)
	}
	if free.runs != 1 {
		t.Fatalf("expected free job to run once, ran %d", free.runs)
	}
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "tick"}
	service, err := NewService(ServiceParams{Logger: logger.Nop(), Jobs: []Job{job}, Lock: &fakeLock{}, Interval: time.Hour})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop after cancel")
	}
}

func TestNewServiceRequiresLock(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: logger.Nop()}); err == nil {
		t.Fatal("expected missing lock to fail")
	}
}

func TestNewServiceRejectsDuplicateJobNames(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: logger.Nop(),
		Lock:   &fakeLock{},
		Jobs:   []Job{&testJob{name: "same"}, nil, &testJob{name: "same"}},
	})
	if err == nil {
		t.Fatal("expected duplicate job names to fail")
	}
}

func TestServiceRecordsSkippedRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	held := &testJob{name: "held"}
	service, err := NewService(ServiceParams{
		Logger:  logger.Nop(),
		Jobs:    []Job{held},
		Lock:    &fakeLock{held: map[string]bool{"held": true}},
		Metrics: metrics.NewCronMetrics(reg),
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	service.RunOnce(context.Background())

	want := `
# HELP cron_job_runs_total Cron job runs by outcome.
# TYPE cron_job_runs_total counter
cron_job_runs_total{job="held",outcome="skipped"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "cron_job_runs_total"); err != nil {
		t.Fatal(err)
	}
}

type memoryRedis struct {
	values map[string]string
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	if m.values[key] != expected {
		return false, nil
	}
	delete(m.values, key)
	return true, nil
}

func TestRedisLockIsPerJob(t *testing.T) {
	ctx := context.Background()
	store := &memoryRedis{values: map[string]string{}}
	first, err := NewRedisLock(store, "bazaar:cron", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	second, _ := NewRedisLock(store, "bazaar:cron", 0)

	if ok, _ := first.Acquire(ctx, "outbox-retention"); !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if ok, _ := second.Acquire(ctx, "outbox-retention"); ok {
		t.Fatal("expected second replica to be refused")
	}
	if ok, _ := second.Acquire(ctx, "invoice-link-reconcile"); !ok {
		t.Fatal("expected a different job to be free")
	}

	if err := second.Release(ctx, "outbox-retention"); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, ok := store.values["bazaar:cron:outbox-retention"]; !ok {
		t.Fatal("non-owner release must not delete the key")
	}
	if err := first.Release(ctx, "outbox-retention"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok := store.values["bazaar:cron:outbox-retention"]; ok {
		t.Fatal("owner release should delete the key")
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	store := &memoryRedis{values: map[string]string{}}
	lock, _ := NewRedisLock(store, "bazaar:cron", time.Minute)
	if ok, _ := lock.Acquire(ctx, "job"); !ok {
		t.Fatal("expected acquire")
	}
	delete(store.values, "bazaar:cron:job")
	if err := lock.Release(ctx, "job"); err != nil {
		t.Fatalf("expected expired key to release cleanly, got %v", err)
	}
}

func TestRedisLockAgainstRedis(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)
	client := pkgredis.Wrap(goredis.NewClient(&goredis.Options{Addr: srv.Addr()}))
	t.Cleanup(func() { _ = client.Close() })

	lock, err := NewRedisLock(client, client.LockKey("cron"), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if ok, err := lock.Acquire(ctx, "invoice-link-reconcile"); err != nil || !ok {
		t.Fatalf("expected acquire, ok=%v err=%v", ok, err)
	}
	if ttl := srv.TTL("bazaar:lock:cron:invoice-link-reconcile"); ttl != time.Minute {
		t.Fatalf("expected lock ttl of one minute, got %v", ttl)
	}
	if err := lock.Release(ctx, "invoice-link-reconcile"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if srv.Exists("bazaar:lock:cron:invoice-link-reconcile") {
		t.Fatal("expected lock key removed")
	}
}

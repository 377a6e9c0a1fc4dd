package session_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"scanmaster/internal/export"
	"scanmaster/internal/notifications"
	"scanmaster/internal/queue"
	"scanmaster/internal/services"
	"scanmaster/internal/session"
	"scanmaster/internal/testsupport"
	"scanmaster/internal/workflow"
)

type stubProvider struct {
	ref string
	err error
}

func (p stubProvider) Generate(context.Context) (string, error) {
	return p.ref, p.err
}

func openSession(t *testing.T, client *testsupport.FakeClient, opts ...session.Option) *session.Session {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	sess, err := session.OpenWithClient(cfg, client, nil)
	if err != nil {
		t.Fatalf("OpenWithClient: %v", err)
	}
	for _, opt := range opts {
		opt(sess)
	}
	t.Cleanup(sess.Close)
	return sess
}

func TestGeneratedName(t *testing.T) {
	at := time.UnixMilli(1717171234567)
	if got := session.GeneratedName(at); got != "AI_Sample_4567.png" {
		t.Fatalf("unexpected name %q", got)
	}
	if got := session.GeneratedName(time.UnixMilli(1700000000042)); got != "AI_Sample_0042.png" {
		t.Fatalf("expected zero padding, got %q", got)
	}
}

func TestAddFilesRejectsEmptyInput(t *testing.T) {
	sess := openSession(t, testsupport.NewFakeClient())
	if _, err := sess.AddFiles(); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := sess.AddFiles(session.File{Name: "a.png"}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty file, got %v", err)
	}
	if len(sess.Items()) != 0 {
		t.Fatal("rejected add must not register items")
	}
}

func TestEndToEndProcessingAndExport(t *testing.T) {
	client := testsupport.NewFakeClient()
	client.FailPredict("bad.png", errors.New("boom"))
	sess := openSession(t, client)

	png := testsupport.PNG(t, 8, 8)
	added, err := sess.AddFiles(
		session.File{Name: "good.png", MIMEType: "image/png", Data: png},
		session.File{Name: "bad.png", MIMEType: "image/png", Data: png},
	)
	if err != nil {
		t.Fatalf("AddFiles: %v", err)
	}
	if queued := sess.StartProcessing(context.Background()); queued != 2 {
		t.Fatalf("expected 2 queued, got %d", queued)
	}
	if err := sess.Wait(testsupport.WaitContext(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if sess.Progress() != 50 {
		t.Fatalf("expected 50%% progress, got %d", sess.Progress())
	}
	if n := len(sess.Notifications()); n != 2 {
		t.Fatalf("expected 2 notifications, got %d", n)
	}

	var buf bytes.Buffer
	manifest, err := sess.Export(context.Background(), &buf)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if len(manifest.Items) != 2 || manifest.Items[1].Error != "boom" {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if zr.File[0].Name != "processed_scans/good_processed.png" {
		t.Fatalf("unexpected first entry %s", zr.File[0].Name)
	}

	if _, err := sess.RetryItem(context.Background(), added[0].ID); err == nil {
		t.Fatal("retrying a cropped item must fail")
	}
}

func TestGenerateSampleAddsItem(t *testing.T) {
	clock := func() time.Time { return time.UnixMilli(1234) }
	sess := openSession(t, testsupport.NewFakeClient(),
		session.WithProvider(stubProvider{ref: "data:image/png;base64,iVBORw0KGgo="}),
		session.WithClock(clock),
	)

	item, err := sess.GenerateSample(context.Background())
	if err != nil {
		t.Fatalf("GenerateSample: %v", err)
	}
	if item.Name != "AI_Sample_1234.png" || item.Status != queue.StatusIdle || item.Source.IsFile() {
		t.Fatalf("unexpected generated item %+v", item)
	}
}

func TestGenerateSampleFailureLeavesQueueUntouched(t *testing.T) {
	failure := services.Wrap(services.ErrConfiguration, "generator", "generate", "API Key is missing. Cannot generate sample.", nil)
	sess := openSession(t, testsupport.NewFakeClient(), session.WithProvider(stubProvider{err: failure}))

	if _, err := sess.GenerateSample(context.Background()); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if len(sess.Items()) != 0 || sess.HasStarted() {
		t.Fatal("generation failure must not touch the queue")
	}
}

func TestResetAllClearsEverything(t *testing.T) {
	sess := openSession(t, testsupport.NewFakeClient())
	if _, err := sess.AddFiles(session.File{Name: "a.png", Data: []byte{1}}); err != nil {
		t.Fatalf("AddFiles: %v", err)
	}
	sess.StartProcessing(context.Background())
	if err := sess.Wait(testsupport.WaitContext(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	sess.ResetAll()
	if len(sess.Items()) != 0 || len(sess.Notifications()) != 0 || sess.HasStarted() || sess.IsProcessing() {
		t.Fatal("reset must clear items, notifications and flags")
	}
	if _, err := sess.Export(context.Background(), &bytes.Buffer{}); !errors.Is(err, export.ErrNothingToExport) {
		t.Fatalf("expected nothing to export, got %v", err)
	}
}

// heldSink holds the first Notify until released, then forwards to the sink.
type heldSink struct {
	sink    *notifications.Sink
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (h *heldSink) Notify(message string, kind notifications.Kind) notifications.Notification {
	first := false
	h.once.Do(func() { first = true })
	if first {
		close(h.entered)
		<-h.release
	}
	return h.sink.Notify(message, kind)
}

func TestResetAllDuringOutcomeNotification(t *testing.T) {
	sink := notifications.NewSink(time.Minute)
	held := &heldSink{sink: sink, entered: make(chan struct{}), release: make(chan struct{})}
	manager := workflow.NewManager(queue.NewRegistry(), testsupport.NewFakeClient(), workflow.WithSink(held))
	sess := session.New(manager, sink)
	t.Cleanup(sess.Close)

	if _, err := sess.AddFiles(session.File{Name: "a.png", MIMEType: "image/png", Data: testsupport.PNG(t, 8, 8)}); err != nil {
		t.Fatalf("AddFiles: %v", err)
	}
	sess.StartProcessing(context.Background())

	select {
	case <-held.entered:
	case <-testsupport.WaitContext(t).Done():
		t.Fatal("outcome notification never sent")
	}

	reset := make(chan struct{})
	go func() {
		sess.ResetAll()
		close(reset)
	}()
	select {
	case <-reset:
	case <-time.After(50 * time.Millisecond):
	}
	close(held.release)

	select {
	case <-reset:
	case <-testsupport.WaitContext(t).Done():
		t.Fatal("ResetAll did not return")
	}
	if n := len(sess.Notifications()); n != 0 {
		t.Fatalf("notification from the run before reset survived: %+v", sess.Notifications())
	}
	if len(sess.Items()) != 0 || sess.IsProcessing() {
		t.Fatal("reset must clear items and flags")
	}
}

package testsupport

import (
	"context"
	"strings"
	"sync"
	"time"

	"scanmaster/internal/scanapi"
)

// Gate suspends a fake backend call until released.
type Gate struct {
	entered     chan struct{}
	release     chan struct{}
	enterOnce   sync.Once
	releaseOnce sync.Once
}

// NewGate returns a closed-until-released gate.
func NewGate() *Gate {
	return &Gate{entered: make(chan struct{}), release: make(chan struct{})}
}

// Entered is closed once a call reaches the gate.
func (g *Gate) Entered() <-chan struct{} {
	return g.entered
}

// Release lets the suspended call continue.
func (g *Gate) Release() {
	g.releaseOnce.Do(func() { close(g.release) })
}

func (g *Gate) wait(ctx context.Context) error {
	g.enterOnce.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call records one fake backend invocation.
type Call struct {
	Op   string
	Name string
}

// FakeClient is a scriptable scanapi.Client keyed by payload name.
type FakeClient struct {
	mu             sync.Mutex
	delay          time.Duration
	results        map[string][]scanapi.BackendResult
	uploadFailures map[string]error
	predictErrors  map[string]error
	gates          map[string]*Gate
	refs           map[string]string
	calls          []Call
	active         int
	maxActive      int
}

// NewFakeClient returns a client that succeeds with one result per item.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		results:        make(map[string][]scanapi.BackendResult),
		uploadFailures: make(map[string]error),
		predictErrors:  make(map[string]error),
		gates:          make(map[string]*Gate),
		refs:           make(map[string]string),
	}
}

// SetDelay makes every predict or crop call take at least d.
func (f *FakeClient) SetDelay(d time.Duration) {
	f.mu.Lock()
	f.delay = d
	f.mu.Unlock()
}

// SetResults scripts the results returned for name. An empty list scripts a
// response with no results.
func (f *FakeClient) SetResults(name string, results ...scanapi.BackendResult) {
	f.mu.Lock()
	f.results[name] = append([]scanapi.BackendResult{}, results...)
	f.mu.Unlock()
}

// FailUpload makes uploads of name return err.
func (f *FakeClient) FailUpload(name string, err error) {
	f.mu.Lock()
	f.uploadFailures[name] = err
	f.mu.Unlock()
}

// FailPredict makes processing of name return err. A nil err clears it.
func (f *FakeClient) FailPredict(name string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.predictErrors, name)
	} else {
		f.predictErrors[name] = err
	}
	f.mu.Unlock()
}

// GatePredict suspends processing of name until the returned gate is released.
func (f *FakeClient) GatePredict(name string) *Gate {
	gate := NewGate()
	f.mu.Lock()
	f.gates[name] = gate
	f.mu.Unlock()
	return gate
}

// Calls returns the recorded invocations in order.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// Names returns the payload names seen by op, in call order.
func (f *FakeClient) Names(op string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c.Name)
		}
	}
	return out
}

// MaxConcurrent reports the highest number of overlapping processing calls.
func (f *FakeClient) MaxConcurrent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

func (f *FakeClient) Upload(ctx context.Context, payload scanapi.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Op: "upload", Name: payload.Name})
	if err := f.uploadFailures[payload.Name]; err != nil {
		return "", err
	}
	ref := "/uploads/" + strings.ReplaceAll(payload.Name, " ", "_")
	f.refs[ref] = payload.Name
	return ref, ctx.Err()
}

func (f *FakeClient) PredictAndCrop(ctx context.Context, refs []string) ([]scanapi.BackendResult, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	return f.produce(ctx, "predict_crop", refs[0])
}

func (f *FakeClient) Detect(ctx context.Context, ref string) (scanapi.Boundary, error) {
	f.mu.Lock()
	name := f.refs[ref]
	f.calls = append(f.calls, Call{Op: "detect", Name: name})
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return scanapi.Boundary{}, err
	}
	return scanapi.Boundary{X: 5, Y: 5, Width: 90, Height: 90}, nil
}

func (f *FakeClient) Crop(ctx context.Context, ref string, _ scanapi.Boundary) ([]scanapi.BackendResult, error) {
	return f.produce(ctx, "crop", ref)
}

func (f *FakeClient) produce(ctx context.Context, op, ref string) ([]scanapi.BackendResult, error) {
	f.mu.Lock()
	name := f.refs[ref]
	f.calls = append(f.calls, Call{Op: op, Name: name})
	gate := f.gates[name]
	delay := f.delay
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if gate != nil {
		if err := gate.wait(ctx); err != nil {
			return nil, err
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.predictErrors[name]; err != nil {
		return nil, err
	}
	if scripted, ok := f.results[name]; ok {
		return append([]scanapi.BackendResult(nil), scripted...), nil
	}
	return []scanapi.BackendResult{{
		Original: ref,
		Preview:  "/previews/" + name,
		Cropped:  "data:image/jpeg;base64,/9j/AAAA",
	}}, nil
}

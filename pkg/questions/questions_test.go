package questions

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/abdhe/readcoach/pkg/fragment"
	"github.com/abdhe/readcoach/pkg/provider"
)

type fakeGenerator struct {
	requests  []provider.Request
	responses []string
	errs      []error
}

func (f *fakeGenerator) Generate(_ context.Context, req provider.Request) (provider.Response, error) {
	i := len(f.requests)
	f.requests = append(f.requests, req)
	if i < len(f.errs) && f.errs[i] != nil {
		return provider.Response{}, f.errs[i]
	}
	if i < len(f.responses) {
		return provider.Response{Text: f.responses[i]}, nil
	}
	return provider.Response{Text: `["fallthrough question?"]`}, nil
}

func newTestGenerator(gen *fakeGenerator) *Generator {
	return NewGenerator(gen, "test-model", DefaultSingleModeMaxChars, zerolog.Nop())
}

func TestQuotaFor(t *testing.T) {
	tests := []struct {
		chars int
		want  int
	}{
		{0, 2},
		{299, 2},
		{300, 3},
		{599, 3},
		{600, 4},
		{999, 4},
		{1000, 5},
		{4000, 5},
	}
	for _, tt := range tests {
		text := strings.Repeat("x", tt.chars)
		if got := QuotaFor(text); got != tt.want {
			t.Errorf("QuotaFor(%d chars) = %d, want %d", tt.chars, got, tt.want)
		}
	}
}

func TestGenerateParsesStringList(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`["What happened first?", "Who helped?"]`}}

	qs, err := newTestGenerator(gen).Generate(context.Background(), "some fragment text", Options{Language: "English"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(qs, []string{"What happened first?", "Who helped?"}) {
		t.Errorf("got %v", qs)
	}
}

func TestGenerateMalformedOutputIsEmptyNotError(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"Sorry, I refuse."}}

	qs, err := newTestGenerator(gen).Generate(context.Background(), "fragment", Options{Language: "English"})
	if err != nil {
		t.Fatalf("malformed output must not error on the single path: %v", err)
	}
	if len(qs) != 0 {
		t.Errorf("got %v, want empty", qs)
	}
}

func TestGenerateBackendErrorPropagates(t *testing.T) {
	gen := &fakeGenerator{errs: []error{provider.ErrUnavailable}}

	_, err := newTestGenerator(gen).Generate(context.Background(), "fragment", Options{})
	if !errors.Is(err, provider.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestGenerateQuotaInSystemMessage(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`["q"]`, `["q"]`}}
	g := newTestGenerator(gen)

	g.Generate(context.Background(), strings.Repeat("x", 100), Options{Language: "English"})
	if !strings.Contains(gen.requests[0].System, "TWO") {
		t.Error("short fragment should request two questions")
	}

	g.Generate(context.Background(), strings.Repeat("x", 1200), Options{Language: "English"})
	if !strings.Contains(gen.requests[1].System, "FIVE") {
		t.Error("long fragment should request five questions")
	}
}

func fragsOf(texts ...string) []fragment.Fragment {
	return fragment.Wrap(texts)
}

func TestPlanSelectsSingleMode(t *testing.T) {
	g := newTestGenerator(&fakeGenerator{})
	frags := fragsOf(strings.Repeat("a", 400), strings.Repeat("b", 700))

	plan := g.Plan(frags)
	if plan.Mode != ModeSingle {
		t.Errorf("mode = %v, want single", plan.Mode)
	}
	if !reflect.DeepEqual(plan.Quotas, []int{3, 4}) {
		t.Errorf("quotas = %v", plan.Quotas)
	}
	if plan.TotalQuestions != 7 {
		t.Errorf("total = %d, want 7", plan.TotalQuestions)
	}
}

func TestPlanSelectsSequentialMode(t *testing.T) {
	g := newTestGenerator(&fakeGenerator{})
	frags := fragsOf(strings.Repeat("a", 3000), strings.Repeat("b", 3000))

	if plan := g.Plan(frags); plan.Mode != ModeSequential {
		t.Errorf("mode = %v, want sequential", plan.Mode)
	}
}

func TestExecuteSingleOneCall(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"0": ["q0a", "q0b"], "1": ["q1a"]}`}}
	g := newTestGenerator(gen)
	frags := fragsOf("first fragment", "second fragment")

	res, err := g.Execute(context.Background(), g.Plan(frags), frags, Options{Language: "English"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Calls != 1 {
		t.Errorf("calls = %d, want 1", res.Calls)
	}
	if len(gen.requests) != 1 {
		t.Errorf("backend calls = %d, want 1", len(gen.requests))
	}
	if !reflect.DeepEqual(res.Questions[0], []string{"q0a", "q0b"}) {
		t.Errorf("fragment 0: %v", res.Questions[0])
	}
	if !reflect.DeepEqual(res.Questions[1], []string{"q1a"}) {
		t.Errorf("fragment 1: %v", res.Questions[1])
	}
}

func TestExecuteSingleMalformedIsHardError(t *testing.T) {
	gen := &fakeGenerator{responses: []string{"no json here"}}
	g := newTestGenerator(gen)
	frags := fragsOf("first", "second")

	_, err := g.Execute(context.Background(), g.Plan(frags), frags, Options{})
	if err == nil {
		t.Fatal("single-mode malformed output must be a hard error")
	}
	// It must not have fallen back to per-fragment calls.
	if len(gen.requests) != 1 {
		t.Errorf("backend calls = %d, want exactly 1", len(gen.requests))
	}
}

func TestExecuteSingleDropsBadKeys(t *testing.T) {
	gen := &fakeGenerator{responses: []string{`{"0": ["ok"], "seven": ["bad key"], "99": ["out of range"], "1": "not a list"}`}}
	g := newTestGenerator(gen)
	frags := fragsOf("first", "second")

	res, err := g.Execute(context.Background(), g.Plan(frags), frags, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(res.Questions[0], []string{"ok"}) {
		t.Errorf("fragment 0: %v", res.Questions[0])
	}
	if _, ok := res.Questions[1]; ok {
		t.Error("non-list value should have been dropped")
	}
	if len(res.Questions) != 1 {
		t.Errorf("questions = %v, want only index 0", res.Questions)
	}
}

func TestExecuteSequentialIsolatesFailures(t *testing.T) {
	gen := &fakeGenerator{
		responses: []string{`["q0"]`, "", `["q2"]`},
		errs:      []error{nil, provider.ErrUnavailable, nil},
	}
	g := newTestGenerator(gen)
	frags := fragsOf(strings.Repeat("a", 3000), strings.Repeat("b", 3000), strings.Repeat("c", 3000))

	plan := g.Plan(frags)
	if plan.Mode != ModeSequential {
		t.Fatalf("mode = %v, want sequential", plan.Mode)
	}

	res, err := g.Execute(context.Background(), plan, frags, Options{})
	if err != nil {
		t.Fatalf("sequential mode must not fail as a whole: %v", err)
	}
	if res.Calls != 3 {
		t.Errorf("calls = %d, want 3", res.Calls)
	}
	if !reflect.DeepEqual(res.Questions[0], []string{"q0"}) {
		t.Errorf("fragment 0: %v", res.Questions[0])
	}
	if len(res.Questions[1]) != 0 {
		t.Errorf("failed fragment should have empty list, got %v", res.Questions[1])
	}
	if !reflect.DeepEqual(res.Questions[2], []string{"q2"}) {
		t.Errorf("fragment 2: %v", res.Questions[2])
	}
}

func TestExecuteEmptyBatch(t *testing.T) {
	g := newTestGenerator(&fakeGenerator{})
	res, err := g.Execute(context.Background(), Plan{Mode: ModeSingle}, nil, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Questions) != 0 || res.Calls != 0 {
		t.Errorf("got %+v", res)
	}
}

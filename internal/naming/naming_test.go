package naming

import (
	"context"
	"errors"
	"math/rand/v2"
	"regexp"
	"testing"
)

type setChecker struct {
	taken map[string]bool
	calls int
	err   error
	all   bool
}

func (c *setChecker) NameTaken(_ context.Context, name string) (bool, error) {
	c.calls++
	if c.err != nil {
		return false, c.err
	}
	return c.all || c.taken[name], nil
}

var bareName = regexp.MustCompile(`^lncurl_[a-z]+_[a-z]+$`)
var suffixedName = regexp.MustCompile(`^lncurl_[a-z]+_[a-z]+[0-9]+$`)

func TestGenerateFirstAttemptIsBare(t *testing.T) {
	g := NewGenerator(&setChecker{}, rand.New(rand.NewPCG(1, 2)))
	name, err := g.Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bareName.MatchString(name) {
		t.Fatalf("unexpected name %q", name)
	}
}

func TestGenerateRetryAttemptAddsDigits(t *testing.T) {
	g := NewGenerator(&setChecker{}, rand.New(rand.NewPCG(3, 4)))
	for i := 0; i < 20; i++ {
		name, err := g.Generate(context.Background(), 1)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !suffixedName.MatchString(name) {
			t.Fatalf("unexpected name %q", name)
		}
	}
}

func TestGenerateSkipsTakenNames(t *testing.T) {
	seedA, seedB := uint64(7), uint64(9)
	first, err := NewGenerator(&setChecker{}, rand.New(rand.NewPCG(seedA, seedB))).Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	checker := &setChecker{taken: map[string]bool{first: true}}
	name, err := NewGenerator(checker, rand.New(rand.NewPCG(seedA, seedB))).Generate(context.Background(), 0)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if name == first {
		t.Fatalf("expected a different name than the taken %q", first)
	}
	if checker.calls != 2 {
		t.Fatalf("expected a local retry, got %d checks", checker.calls)
	}
	if !suffixedName.MatchString(name) {
		t.Fatalf("retry should add digits, got %q", name)
	}
}

func TestGenerateExhausted(t *testing.T) {
	checker := &setChecker{all: true}
	_, err := NewGenerator(checker, nil).Generate(context.Background(), 0)
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if checker.calls != maxLocalTries {
		t.Fatalf("expected %d checks, got %d", maxLocalTries, checker.calls)
	}
}

func TestGenerateCheckerError(t *testing.T) {
	boom := errors.New("db down")
	_, err := NewGenerator(&setChecker{err: boom}, nil).Generate(context.Background(), 0)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped checker error, got %v", err)
	}
}

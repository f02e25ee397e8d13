package handle

import (
	"fmt"
	"sync"
	"testing"

	"github.com/wippyai/wasmbind/errors"
)

type resource struct{ id int }

func TestNew_ZeroIsAllocationFailure(t *testing.T) {
	_, err := New[*resource]("runtime", nil, nil, nil)
	if !errors.IsKind(err, errors.KindAllocation) {
		t.Fatalf("err = %v, want allocation", err)
	}
}

func TestHandle_ReleaseExactlyOnce(t *testing.T) {
	calls := 0
	h, err := New("runtime", &resource{id: 1}, nil, func(r *resource) error {
		calls++
		return fmt.Errorf("release %d", r.id)
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = h.Release()
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("release called %d times, want 1", calls)
	}
	if err := h.Release(); err == nil || err.Error() != "release 1" {
		t.Errorf("second Release = %v, want first result", err)
	}
	if !h.Released() {
		t.Error("Released should be true")
	}
}

func TestHandle_RawAfterRelease(t *testing.T) {
	h, err := New("module", &resource{}, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := h.Raw(errors.PhaseCall); err != nil {
		t.Fatalf("Raw before release: %v", err)
	}
	_ = h.Release()
	if _, err := h.Raw(errors.PhaseCall); !errors.IsKind(err, errors.KindClosed) {
		t.Errorf("Raw after release = %v, want closed", err)
	}
}

func TestHandle_ParentChain(t *testing.T) {
	env, _ := New("environment", &resource{1}, nil, nil)
	rt, _ := New("runtime", &resource{2}, env, nil)
	fn := NewToken(rt)

	if !fn.Alive() {
		t.Fatal("token should be alive")
	}

	_ = env.Release()

	if rt.Alive() {
		t.Error("runtime should die with its environment")
	}
	if fn.Alive() {
		t.Error("token should die with its runtime")
	}
	if rt.Released() {
		t.Error("runtime was not released itself")
	}
}

func TestToken_Kill(t *testing.T) {
	parent := NewToken(nil)
	child := NewToken(parent)
	child.Kill()
	child.Kill()
	if child.Alive() {
		t.Error("killed token is alive")
	}
	if !parent.Alive() {
		t.Error("killing a child must not affect the parent")
	}

	var nilToken *Token
	if nilToken.Alive() {
		t.Error("nil token is alive")
	}
}

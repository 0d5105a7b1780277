package object

import (
	"testing"

	"github.com/wine-np/npserver/internal/status"
)

func TestNamespaceOpenIfCreatesOnce(t *testing.T) {
	ns := NewNamespace()
	calls := 0
	create := func() (any, error) {
		calls++
		return "value", nil
	}

	obj1, existed1, err := ns.OpenIf("name", create)
	if err != nil || existed1 {
		t.Fatalf("first OpenIf should create: existed=%v err=%v", existed1, err)
	}
	obj2, existed2, err := ns.OpenIf("name", create)
	if err != nil || !existed2 {
		t.Fatalf("second OpenIf should find the existing entry: existed=%v err=%v", existed2, err)
	}
	if obj1 != obj2 {
		t.Fatal("expected the same object both times")
	}
	if calls != 1 {
		t.Fatalf("expected create to run once, ran %d times", calls)
	}
}

func TestNamespaceRemove(t *testing.T) {
	ns := NewNamespace()
	ns.OpenIf("name", func() (any, error) { return "value", nil })
	ns.Remove("name")

	if _, ok := ns.Lookup("name"); ok {
		t.Fatal("expected Remove to drop the entry")
	}
}

type destroyCounter struct{ destroyed int }

func (d *destroyCounter) Destroy() { d.destroyed++ }

func TestTableCloseRunsDestroyOnLastRef(t *testing.T) {
	tbl := NewTable()
	obj := &destroyCounter{}
	handle := tbl.Alloc(obj)
	tbl.AddRef(handle)

	if st := tbl.Close(handle); st != status.Success {
		t.Fatalf("expected Success, got %v", st)
	}
	if obj.destroyed != 0 {
		t.Fatal("Destroy should not run while a reference remains")
	}

	if st := tbl.Close(handle); st != status.Success {
		t.Fatalf("expected Success, got %v", st)
	}
	if obj.destroyed != 1 {
		t.Fatalf("expected Destroy to run exactly once, ran %d times", obj.destroyed)
	}

	if st := tbl.Close(handle); st != status.InvalidHandle {
		t.Fatalf("expected InvalidHandle after the handle is gone, got %v", st)
	}
}

func TestTableGetUnknownHandle(t *testing.T) {
	tbl := NewTable()
	if _, st := tbl.Get(12345); st != status.InvalidHandle {
		t.Fatalf("expected InvalidHandle, got %v", st)
	}
}

package status

import "testing"

func TestOk(t *testing.T) {
	if !Success.Ok() {
		t.Fatal("Success should be Ok")
	}
	if Pending.Ok() {
		t.Fatal("Pending should not be Ok")
	}
	if PipeBroken.Ok() {
		t.Fatal("PipeBroken should not be Ok")
	}
}

func TestErrorText(t *testing.T) {
	if AccessDenied.Error() == "" {
		t.Fatal("expected a non-empty message for AccessDenied")
	}
	var unknown Status = 9999
	if unknown.Error() == "" {
		t.Fatal("expected a fallback message for an unrecognized status")
	}
}

func TestImplementsError(t *testing.T) {
	var err error = InvalidParameter
	if err.Error() == "" {
		t.Fatal("Status should satisfy the error interface with a usable message")
	}
}

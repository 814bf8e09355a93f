package result

import (
	"errors"
	"testing"
)

func TestResult(t *testing.T) {
	if r := OK(); !r.Success || r.Error() != nil {
		t.Errorf("OK() = %+v", r)
	}

	r := Fail("no snapshot")
	if r.Success || r.Message != "no snapshot" || r.Error() == nil {
		t.Errorf("Fail() = %+v", r)
	}

	cause := errors.New("timeout")
	r = FromError("upload", cause)
	if r.Success || r.Message != "upload: timeout" {
		t.Errorf("FromError() = %+v", r)
	}
	if !errors.Is(r.Error(), cause) {
		t.Errorf("expected cause to be kept, got %v", r.Error())
	}

	if r := FromError("upload", nil); !r.Success {
		t.Errorf("FromError with nil error must succeed, got %+v", r)
	}
	if r := (Result{Message: "bare"}); r.Error() == nil || r.Error().Error() != "bare" {
		t.Errorf("zero-err failure must report its message, got %v", r.Error())
	}
}

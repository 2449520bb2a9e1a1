package config

import (
	"reflect"
	"testing"
)

func TestExpandStrictSubstitutesAndUnescapes(t *testing.T) {
	t.Setenv("FLINT_TEST_TOKEN", "secret-value")

	got, err := ExpandStrict("bearer ${FLINT_TEST_TOKEN}, literal $${FLINT_TEST_TOKEN}")
	if err != nil {
		t.Fatalf("ExpandStrict: %v", err)
	}
	want := "bearer secret-value, literal ${FLINT_TEST_TOKEN}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExpandStrictErrorsOnMissingVar(t *testing.T) {
	_, err := ExpandStrict("${FLINT_TEST_DOES_NOT_EXIST}")
	if err == nil {
		t.Fatalf("expected an error for an unset environment variable")
	}
}

func TestExpandLenientLeavesMissingRefsAndReportsThem(t *testing.T) {
	t.Setenv("FLINT_TEST_PRESENT", "value")

	got, missing := ExpandLenient("${FLINT_TEST_PRESENT} ${FLINT_TEST_ABSENT}")
	if got != "value ${FLINT_TEST_ABSENT}" {
		t.Fatalf("got %q", got)
	}
	if !reflect.DeepEqual(missing, []string{"FLINT_TEST_ABSENT"}) {
		t.Fatalf("expected missing to report the absent var, got %v", missing)
	}
}

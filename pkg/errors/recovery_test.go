package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRecover_WithPanic(t *testing.T) {
	evaluate := func() (err error) {
		defer Recover(&err, "tune.evaluate")
		panic("index out of range in engine")
	}

	err := evaluate()
	if err == nil {
		t.Fatal("Expected error from recovered panic, got nil")
	}

	var panicErr *PanicError
	if !errors.As(err, &panicErr) {
		t.Fatalf("Expected PanicError, got %T", err)
	}
	if panicErr.Operation != "tune.evaluate" {
		t.Errorf("Operation = %q, want tune.evaluate", panicErr.Operation)
	}
	if panicErr.StackTrace == "" {
		t.Error("Expected non-empty stack trace")
	}
	if want := "panic in tune.evaluate: index out of range in engine"; panicErr.Error() != want {
		t.Errorf("Error() = %q, want %q", panicErr.Error(), want)
	}
	if !strings.Contains(panicErr.String(), "Stack trace:") {
		t.Error("String() should include the stack trace")
	}
}

func TestRecover_WithoutPanic(t *testing.T) {
	evaluate := func() (err error) {
		defer Recover(&err, "tune.evaluate")
		return nil
	}

	if err := evaluate(); err != nil {
		t.Fatalf("Expected no error when no panic occurs, got: %v", err)
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	originalErr := fmt.Errorf("prep failed")

	evaluate := func() (err error) {
		defer Recover(&err, "tune.evaluate")
		err = originalErr
		panic("bake on nil recipe")
	}

	err := evaluate()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "panic in tune.evaluate") {
		t.Errorf("Error message should contain panic info: %s", err.Error())
	}
	if !errors.Is(err, originalErr) {
		t.Error("original error should stay reachable")
	}
}

func TestSafeExecute(t *testing.T) {
	tests := []struct {
		name       string
		fn         func() error
		wantErr    bool
		wantPanic  bool
		wantSubstr string
	}{
		{
			name:    "success",
			fn:      func() error { return nil },
			wantErr: false,
		},
		{
			name:       "regular error",
			fn:         func() error { return NewFitError("Fit", "knn", ErrEmptyData) },
			wantErr:    true,
			wantSubstr: "fitting knn failed",
		},
		{
			name:       "string panic",
			fn:         func() error { panic("matrix is nil") },
			wantErr:    true,
			wantPanic:  true,
			wantSubstr: "panic in recipe.prep: matrix is nil",
		},
		{
			name:       "error panic",
			fn:         func() error { panic(ErrSingularMatrix) },
			wantErr:    true,
			wantPanic:  true,
			wantSubstr: "singular matrix",
		},
		{
			name:       "integer panic",
			fn:         func() error { panic(42) },
			wantErr:    true,
			wantPanic:  true,
			wantSubstr: "panic in recipe.prep: 42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeExecute("recipe.prep", tt.fn)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SafeExecute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			if !strings.Contains(err.Error(), tt.wantSubstr) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantSubstr)
			}
			var panicErr *PanicError
			if got := errors.As(err, &panicErr); got != tt.wantPanic {
				t.Errorf("As(*PanicError) = %v, want %v", got, tt.wantPanic)
			}
		})
	}
}

func TestPanicError_UnwrapsErrorValue(t *testing.T) {
	err := SafeExecute("engine.fit", func() error { panic(ErrSingularMatrix) })
	if !errors.Is(err, ErrSingularMatrix) {
		t.Error("a panic with an error value should unwrap to that error")
	}
}

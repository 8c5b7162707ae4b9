package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesGRPCCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.DeadlineExceeded, unavailable: true},
	}

	for _, tc := range cases {
		// DeadlineExceeded on its own context is passed through, so wrap a
		// gRPC status error instead of a raw context error.
		wrapped := WrapError("orders.get", status.Error(tc.code, "backend says no"))
		if tc.code == codes.DeadlineExceeded {
			if !errors.Is(wrapped, context.DeadlineExceeded) {
				t.Fatalf("%v: expected context deadline passthrough, got %v", tc.code, wrapped)
			}
			continue
		}

		var repoErr *Error
		if !errors.As(wrapped, &repoErr) {
			t.Fatalf("%v: expected *Error, got %T", tc.code, wrapped)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%v: unexpected classification %v/%v/%v", tc.code, repoErr.IsNotFound(), repoErr.IsConflict(), repoErr.IsUnavailable())
		}
	}
}

func TestWrapErrorPassesContextCancellation(t *testing.T) {
	if err := WrapError("orders.get", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled passthrough, got %v", err)
	}
	if err := WrapError("orders.get", nil); err != nil {
		t.Fatalf("expected nil for nil error, got %v", err)
	}
}

func TestWrapErrorKeepsFirstOperation(t *testing.T) {
	inner := WrapError("products.get", status.Error(codes.NotFound, "missing"))
	outer := WrapError("orders.insert", inner)

	var repoErr *Error
	if !errors.As(outer, &repoErr) {
		t.Fatalf("expected *Error, got %T", outer)
	}
	if got := repoErr.Error(); got != "products.get: rpc error: code = NotFound desc = missing" {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestRunTransactionGuards(t *testing.T) {
	if err := RunTransaction(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

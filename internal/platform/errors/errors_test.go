package errors

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestErrorIsMatchesByCode(t *testing.T) {
	err := New(CodeReleaseIDTaken, "duplicate id")
	wrapped := fmt.Errorf("anchor release: %w", err)

	if !errors.Is(wrapped, New(CodeReleaseIDTaken, "other message")) {
		t.Fatal("expected code-based match")
	}
	if errors.Is(wrapped, New(CodeReleaseRevoked, "duplicate id")) {
		t.Fatal("expected mismatch for different code")
	}
}

func TestGetCode(t *testing.T) {
	err := Wrap(CodeNotFound, "release missing", errors.New("sql: no rows"))
	if got := GetCode(fmt.Errorf("get: %w", err)); got != CodeNotFound {
		t.Fatalf("code = %q, want %q", got, CodeNotFound)
	}
	if got := GetCode(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("code = %q, want %q", got, CodeUnknown)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeDelegationInvalidIdentity, codes.InvalidArgument},
		{CodeDelegationBadExpiry, codes.InvalidArgument},
		{CodeDelegationSignatureInvalid, codes.Unauthenticated},
		{CodeDelegationSignatureExpired, codes.DeadlineExceeded},
		{CodeDelegationUnauthorized, codes.PermissionDenied},
		{CodeReleaseStatusFinal, codes.FailedPrecondition},
		{CodeReleaseRevoked, codes.FailedPrecondition},
		{CodeSnapshotMissing, codes.FailedPrecondition},
		{CodeNotFound, codes.NotFound},
		{Code("SOMETHING_ELSE"), codes.Internal},
	}
	for _, tc := range tests {
		if got := tc.code.GRPCCode(); got != tc.want {
			t.Fatalf("%s maps to %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestHandleErrorBuildsStatusWithDetails(t *testing.T) {
	err := WithMetadata(CodeReleaseIDTaken, "duplicate id", map[string]string{"ReleaseID": "rel-1"})

	st, ok := status.FromError(HandleError(err, ""))
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.FailedPrecondition {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.FailedPrecondition)
	}
	if st.Message() != "duplicate id" {
		t.Fatalf("status message = %q, want internal message", st.Message())
	}
	if len(st.Details()) != 2 {
		t.Fatalf("details = %d, want 2", len(st.Details()))
	}
}

func TestHandleErrorUnknown(t *testing.T) {
	st, ok := status.FromError(HandleError(errors.New("boom"), "en-US"))
	if !ok {
		t.Fatal("expected grpc status")
	}
	if st.Code() != codes.Internal {
		t.Fatalf("status code = %v, want %v", st.Code(), codes.Internal)
	}
}

func TestHandleErrorNil(t *testing.T) {
	if HandleError(nil, "en-US") != nil {
		t.Fatal("expected nil for nil error")
	}
}

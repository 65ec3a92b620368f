package dune

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestRemoteRequestErrorMessage(t *testing.T) {
	err := newStatusError(OperationExecute, 401, []byte(" {\"error\":\"invalid API Key\"}\n"))
	want := `execute request failed status=401 body={"error":"invalid API Key"}`
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestRemoteRequestErrorMatchesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("check execution status: %w", newStatusError(OperationStatus, 503, nil))
	if !errors.Is(wrapped, ErrServer) {
		t.Fatal("expected wrapped error to match ErrServer")
	}
	if errors.Is(wrapped, ErrAuthentication) {
		t.Fatal("server error should not match ErrAuthentication")
	}
	if KindOf(wrapped) != KindServer {
		t.Fatalf("KindOf() = %q", KindOf(wrapped))
	}
	if !IsRetryable(wrapped) {
		t.Fatal("server errors should be retryable")
	}
}

func TestTransportErrorUnwrapsCause(t *testing.T) {
	err := &RemoteRequestError{Operation: OperationResults, Kind: KindTransport, Err: context.DeadlineExceeded}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected cause to be reachable")
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatal("expected ErrTransport match")
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := map[int]ErrorKind{
		401: KindAuthentication,
		403: KindAuthentication,
		404: KindNotFound,
		409: KindClient,
		429: KindRateLimited,
		500: KindServer,
		502: KindServer,
	}
	for code, want := range cases {
		if got := classifyStatus(code); got != want {
			t.Fatalf("classifyStatus(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestKindOfNonRemoteError(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Fatal("expected empty kind for plain errors")
	}
	if IsRetryable(nil) {
		t.Fatal("nil error should not be retryable")
	}
}

func TestStateClassification(t *testing.T) {
	if !StateCompleted.Completed() || StateCompleted.Failed() {
		t.Fatal("completed state misclassified")
	}
	for _, state := range []State{StateFailed, StateCancelled, StateExpired, StateCompletedPartial} {
		if !state.Failed() || !state.Terminal() {
			t.Fatalf("%s should be a failed terminal state", state)
		}
	}
	for _, state := range []State{StatePending, StateExecuting, State("QUERY_STATE_SOMETHING_NEW")} {
		if state.Terminal() {
			t.Fatalf("%s should not be terminal", state)
		}
	}
}

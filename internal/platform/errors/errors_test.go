package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsMatchesByCode(t *testing.T) {
	sentinel := New(CodeAuthRequestNotPending, "auth request is not pending")
	specific := Errorf(CodeAuthRequestNotPending, "auth request %q is not pending", "req-1").With("RequestID", "req-1")

	if !errors.Is(specific, sentinel) {
		t.Fatal("expected code match")
	}
	if errors.Is(specific, New(CodeAuthRequestRejected, "")) {
		t.Fatal("different codes must not match")
	}
	wrapped := fmt.Errorf("trigger: %w", specific)
	if !errors.Is(wrapped, sentinel) || GetCode(wrapped) != CodeAuthRequestNotPending {
		t.Fatal("expected match through fmt wrapping")
	}
}

func TestWithCopiesMetadata(t *testing.T) {
	base := WithMetadata(CodePopupClosed, "popup closed", map[string]string{"Name": "a"})
	derived := base.With("Name", "b").With("Reason", "timeout")

	if base.Metadata["Name"] != "a" || len(base.Metadata) != 1 {
		t.Fatalf("base metadata changed: %v", base.Metadata)
	}
	if derived.Metadata["Name"] != "b" || derived.Metadata["Reason"] != "timeout" {
		t.Fatalf("derived metadata = %v", derived.Metadata)
	}
	if New(CodeUnknown, "x").With("k", "v").Metadata["k"] != "v" {
		t.Fatal("With on nil metadata")
	}
}

func TestWrapUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(CodeAuthFlowFailed, "exchange code", cause)
	if err.Error() != "exchange code: connection refused" {
		t.Fatalf("error = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
}

func TestGetters(t *testing.T) {
	plain := errors.New("plain")
	if GetCode(plain) != CodeUnknown || GetMetadata(plain) != nil {
		t.Fatal("plain errors have no code or metadata")
	}
	err := WithMetadata(CodeProviderUnknown, "unknown provider", map[string]string{"Provider": "x"})
	if !IsCode(err, CodeProviderUnknown) || GetMetadata(err)["Provider"] != "x" {
		t.Fatalf("getters on %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		grpc codes.Code
		http int
	}{
		{CodeAuthRequestRejected, codes.Aborted, http.StatusForbidden},
		{CodeAuthRequestNotPending, codes.NotFound, http.StatusNotFound},
		{CodeScopeMalformed, codes.InvalidArgument, http.StatusBadRequest},
		{CodeOrderByInvalid, codes.InvalidArgument, http.StatusBadRequest},
		{CodeAuthFlowFailed, codes.Unavailable, http.StatusBadGateway},
		{CodeUnknown, codes.Internal, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(string(tc.code), func(t *testing.T) {
			if got := tc.code.GRPCCode(); got != tc.grpc {
				t.Fatalf("grpc = %v, want %v", got, tc.grpc)
			}
			if got := tc.code.HTTPStatus(); got != tc.http {
				t.Fatalf("http = %d, want %d", got, tc.http)
			}
		})
	}
}

func TestHandleErrorAddsDetails(t *testing.T) {
	err := Errorf(CodeAuthRequestNotPending, "auth request %q is not pending", "req-7").With("RequestID", "req-7")
	st, ok := status.FromError(HandleError(err, "pt-BR"))
	if !ok || st.Code() != codes.NotFound {
		t.Fatalf("status = %v", st)
	}
	var info *errdetails.ErrorInfo
	var localized *errdetails.LocalizedMessage
	for _, detail := range st.Details() {
		switch d := detail.(type) {
		case *errdetails.ErrorInfo:
			info = d
		case *errdetails.LocalizedMessage:
			localized = d
		}
	}
	if info == nil || info.GetReason() != string(CodeAuthRequestNotPending) || info.GetDomain() != Domain || info.GetMetadata()["RequestID"] != "req-7" {
		t.Fatalf("error info = %v", info)
	}
	if localized == nil || localized.GetLocale() != "pt-BR" || localized.GetMessage() != "A solicitação de login req-7 não está mais pendente" {
		t.Fatalf("localized = %v", localized)
	}
}

func TestHandleErrorPassthrough(t *testing.T) {
	if HandleError(nil, "") != nil {
		t.Fatal("nil stays nil")
	}
	existing := status.Error(codes.PermissionDenied, "nope")
	if got := HandleError(existing, ""); status.Code(got) != codes.PermissionDenied {
		t.Fatalf("status passthrough = %v", got)
	}
	if got := HandleError(errors.New("boom"), ""); status.Code(got) != codes.Internal {
		t.Fatalf("unknown = %v", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := New(CodeAuthRequestRejected, "auth request rejected")
	en := UserMessage(err, "")
	pt := UserMessage(err, "pt-BR,pt;q=0.9")
	if en == "" || pt == "" || en == pt {
		t.Fatalf("messages en=%q pt=%q", en, pt)
	}
	if got := UserMessage(errors.New("internal detail"), "en-US"); got == "internal detail" {
		t.Fatal("unknown errors must not leak their message")
	}
}

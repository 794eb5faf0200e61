package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapKeepsCodeThroughChain(t *testing.T) {
	t.Parallel()

	cause := stdErrors.New("dial tcp: connection refused")
	err := fmt.Errorf("cycle: %w", Wrap(CodeChainRead, cause, "读取轮次失败"))

	if got := CodeOf(err); got != CodeChainRead {
		t.Fatalf("expected %s, got %s", CodeChainRead, got)
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if !stdErrors.Is(err, New(CodeChainRead, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
	if !RetryableError(err) {
		t.Fatal("chain read errors must be retryable")
	}
	if IsFatal(err) {
		t.Fatal("chain read errors must not be fatal")
	}
}

func TestStartupCodesAreFatal(t *testing.T) {
	t.Parallel()

	for _, code := range []Code{CodeInvalidConfig, CodeKeyMaterial} {
		err := New(code, "")
		if !IsFatal(err) {
			t.Fatalf("%s should be fatal", code)
		}
		if RetryableError(err) {
			t.Fatalf("%s should not be retryable", code)
		}
		if err.Message() == "" {
			t.Fatalf("%s should fall back to the registered message", code)
		}
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	t.Parallel()

	err := New(CodeReverted, "reward reverted",
		WithRetryable(false),
		WithSeverity(SeverityInfo),
		WithMetadata("tx_hash", "0xabc"),
	)
	if err.Retryable() {
		t.Fatal("expected retryable override")
	}
	if err.Severity() != SeverityInfo {
		t.Fatalf("unexpected severity %s", err.Severity())
	}
	md := err.Metadata()
	md["tx_hash"] = "mutated"
	if err.Metadata()["tx_hash"] != "0xabc" {
		t.Fatal("metadata must be copied")
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	t.Parallel()

	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatal("plain errors map to UNKNOWN")
	}
	if AttributesOf("NOT_REGISTERED").Message != "unknown error" {
		t.Fatal("unregistered codes fall back to UNKNOWN attributes")
	}
	if ShouldAlert(nil) {
		t.Fatal("nil error never alerts")
	}
}

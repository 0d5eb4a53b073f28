package errors

import "testing"

func TestErrorString(t *testing.T) {
	e := NewHTTP(ErrorTypeServerError, "bad gateway", 502)
	want := "server_error error (code 502): bad gateway"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}

	e = New(ErrorTypeChecksum, "sha256 mismatch")
	want = "checksum error: sha256 mismatch"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestIsRetryable(t *testing.T) {
	retryable := []ErrorType{ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeServerError}
	for _, et := range retryable {
		if !IsRetryable(et) {
			t.Errorf("expected %s to be retryable", et)
		}
	}

	permanent := []ErrorType{
		ErrorTypeAuth, ErrorTypeNotFound, ErrorTypeChecksum,
		ErrorTypeAccelerator, ErrorTypePython, ErrorTypeUnknown,
	}
	for _, et := range permanent {
		if IsRetryable(et) {
			t.Errorf("expected %s to not be retryable", et)
		}
	}
}

func TestIsRetryableStatusCode(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{521, true},
		{401, false},
		{403, false},
		{404, false},
		{200, false},
		{400, false},
	}
	for _, c := range cases {
		if got := IsRetryableStatusCode(c.code); got != c.want {
			t.Errorf("IsRetryableStatusCode(%d) = %v, want %v", c.code, got, c.want)
		}
	}
}

func TestFromStatusCode(t *testing.T) {
	cases := []struct {
		code int
		want ErrorType
	}{
		{429, ErrorTypeRateLimit},
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{404, ErrorTypeNotFound},
		{500, ErrorTypeServerError},
		{503, ErrorTypeServerError},
		{418, ErrorTypeUnknown},
	}
	for _, c := range cases {
		if got := FromStatusCode(c.code, "x"); got.Type != c.want {
			t.Errorf("FromStatusCode(%d).Type = %s, want %s", c.code, got.Type, c.want)
		}
	}
}

package domain

import "testing"

func TestParseName(t *testing.T) {
	ok := []string{"CIRCLE_MIDDLE", " CROSS ", "rank-1.v2", "a"}
	for _, s := range ok {
		if _, good := ParseName(s); !good {
			t.Fatalf("期望 %q 合法", s)
		}
	}

	bad := []string{"", "   ", "../x", "a/b", `a\b`, ".hidden", "with space"}
	for _, s := range bad {
		if _, good := ParseName(s); good {
			t.Fatalf("期望 %q 非法", s)
		}
	}
}

func TestErrorCode(t *testing.T) {
	err := FetchError("get", "https://cdn.test/a.svg", errString("boom"))
	if ErrorCode(err) != ErrCodeFetchFailed {
		t.Fatalf("期望 %q，实际 %q", ErrCodeFetchFailed, ErrorCode(err))
	}
	if ErrorCode(errString("plain")) != "" {
		t.Fatalf("非 *Error 应返回空串")
	}
}

type errString string

func (e errString) Error() string { return string(e) }

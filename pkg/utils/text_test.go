package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
	if got := Truncate("你好世界", 2); got != "你好..." {
		t.Errorf("multibyte: got %s", got)
	}
	if got := Truncate("你好", 2); got != "你好" {
		t.Errorf("exact length: got %s", got)
	}
}

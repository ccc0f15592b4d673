package web

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
)

func call(t *testing.T, args string) (bool, string) {
	t.Helper()
	tool := New()
	res, err := tool.Execute(context.Background(), json.RawMessage(args))
	if err != nil {
		t.Fatalf("execute error: %v", err)
	}
	return res.Success, res.Error
}

func TestWebRequiresURL(t *testing.T) {
	ok, errMsg := call(t, `{}`)
	if ok || errMsg == "" {
		t.Error("missing url should fail")
	}
}

func TestWebRejectsBadScheme(t *testing.T) {
	ok, errMsg := call(t, `{"url":"ftp://example.com/file"}`)
	if ok {
		t.Errorf("ftp should be rejected: %s", errMsg)
	}
}

func TestWebRejectsPrivateHosts(t *testing.T) {
	for _, url := range []string{
		"http://127.0.0.1/admin",
		"http://192.168.1.1/",
		"http://localhost:8080/",
		"http://169.254.169.254/latest/meta-data",
	} {
		ok, _ := call(t, fmt.Sprintf(`{"url":"%s"}`, url))
		if ok {
			t.Errorf("%s should be rejected", url)
		}
	}
}

func TestWebRejectsBlockedPorts(t *testing.T) {
	ok, errMsg := call(t, `{"url":"http://93.184.216.34:3306/"}`)
	if ok {
		t.Errorf("mysql port should be rejected: %s", errMsg)
	}
}

func TestWebRejectsUnknownMethod(t *testing.T) {
	ok, errMsg := call(t, `{"url":"http://93.184.216.34/","method":"TRACE"}`)
	if ok {
		t.Errorf("TRACE should be rejected: %s", errMsg)
	}
}

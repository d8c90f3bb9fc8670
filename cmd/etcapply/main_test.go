package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"etcapply/internal/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestGen(t *testing.T) {
	out, err := execute(t, "gen", "-n", "3", "--seed", "42")
	if err != nil {
		t.Fatalf("gen: %v", err)
	}
	for _, col := range []string{"PLATE", "ID_CODE", "BANK_NO", "SNOWFLAKE"} {
		if !strings.Contains(out, col) {
			t.Fatalf("header %s missing:\n%s", col, out)
		}
	}

	if _, err := execute(t, "gen", "-n", "0"); err == nil {
		t.Fatalf("zero count should fail")
	}
	genFlags.count = 5
}

func TestParse(t *testing.T) {
	path := writeTemp(t, "four.txt", "姓名: 张三\n身份证: 11010119900307123X\n手机: 13812345678")
	out, err := execute(t, "parse", path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.Contains(out, "11010119900307123X") || !strings.Contains(out, "cardHolder") {
		t.Fatalf("unexpected output:\n%s", out)
	}
	if !strings.Contains(out, "incomplete") {
		t.Fatalf("missing bank card should be reported:\n%s", out)
	}

	if _, err := execute(t, "parse", writeTemp(t, "four.pdf", "%PDF")); err == nil {
		t.Fatalf("pdf should be rejected")
	}
}

func TestEndpoints_MasksPasswords(t *testing.T) {
	path := writeTemp(t, "connections.json", `{
		"backoffice": {"base_url": "http://127.0.0.1:9000", "cookies": [{"name": "Admin-Token", "value": "x"}]},
		"endpoints": [{"name": "db", "type": "mysql", "address": "db:3306", "username": "u", "password": "secret", "database": "etc"}]
	}`)
	out, err := execute(t, "endpoints", "--config", path)
	if err != nil {
		t.Fatalf("endpoints: %v", err)
	}
	if strings.Contains(out, "secret") || !strings.Contains(out, "******") || !strings.Contains(out, "db:3306") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestCallbacks_RedisRequiresChannel(t *testing.T) {
	t.Cleanup(func() { callbacksFlags.redis = false })
	path := writeTemp(t, "connections.json", `{
		"backoffice": {"base_url": "http://127.0.0.1:9000", "cookies": [{"name": "Admin-Token", "value": "x"}]},
		"endpoints": [{"type": "mysql", "address": "db:3306", "database": "etc"}]
	}`)
	_, err := execute(t, "callbacks", "--redis", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "notify.redis_channel") {
		t.Fatalf("want redis channel error got=%v", err)
	}
}

func TestPrintNotification(t *testing.T) {
	var out bytes.Buffer
	printNotification(&out, &model.ApplyNotification{
		ApplyID: "a-1", CarNum: "苏A12345", OrderID: "ORD-1", Status: model.NotifyStatusFailed,
		FailedStep: 5, Percent: 30, Message: "5. submit_car_num failed", Timestamp: 0,
	})
	got := out.String()
	for _, part := range []string{"apply=a-1", "car=苏A12345", "status=FAILED", "step=5", "30%"} {
		if !strings.Contains(got, part) {
			t.Fatalf("%q missing in %q", part, got)
		}
	}
}

package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/lsm/relay/internal/source"
)

type fakePublisher struct {
	topic    string
	payloads []string
	failAt   int
	closed   bool
}

func (f *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	if f.failAt > 0 && len(f.payloads)+1 == f.failAt {
		return errors.New("broker down")
	}
	f.topic = topic
	f.payloads = append(f.payloads, string(payload))
	return nil
}

func (f *fakePublisher) Close() error {
	f.closed = true
	return nil
}

func stubPublisher(t *testing.T) (*fakePublisher, *target) {
	t.Helper()
	fp := &fakePublisher{}
	var got target
	orig := newPublisherFunc
	newPublisherFunc = func(tg target) (source.Publisher, error) {
		got = tg
		return fp, nil
	}
	t.Cleanup(func() { newPublisherFunc = orig })
	return fp, &got
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseStringFlag(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"separate", []string{"--topic", "asay"}, "asay", false},
		{"equals", []string{"--topic=asay"}, "asay", false},
		{"absent", []string{"--json", "{}"}, "", false},
		{"missing value", []string{"--topic"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStringFlag(tt.args, "--topic")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIntFlag(t *testing.T) {
	if v, err := parseIntFlag(nil, "--count", 3); err != nil || v != 3 {
		t.Errorf("default: got %d, %v", v, err)
	}
	if v, err := parseIntFlag([]string{"--count", "5"}, "--count", 1); err != nil || v != 5 {
		t.Errorf("got %d, %v", v, err)
	}
	for _, bad := range []string{"abc", "0", "-2"} {
		if _, err := parseIntFlag([]string{"--count", bad}, "--count", 1); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestPositional(t *testing.T) {
	if got := positional([]string{"--x", "1", "file.yaml"}); got != "file.yaml" {
		t.Errorf("got %q", got)
	}
	if got := positional([]string{"--x=1"}); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestRunPublish_Validation(t *testing.T) {
	stubPublisher(t)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing topic", nil, "--topic"},
		{"missing data", []string{"--topic", "t"}, "--json or --file"},
		{"both", []string{"--topic", "t", "--json", "{}", "--file", "x"}, "both"},
		{"bad count", []string{"--topic", "t", "--json", "{}", "--count", "0"}, "--count"},
		{"bad rate", []string{"--topic", "t", "--json", "{}", "--rate", "soon"}, "--rate"},
		{"bad broker", []string{"--topic", "t", "--json", "{}", "--broker", "nats"}, "--broker"},
		{"invalid json", []string{"--topic", "t", "--json", "{nope"}, "not valid JSON"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RunPublish(tt.args, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRunPublish_Inline(t *testing.T) {
	t.Setenv("RELAY_BROKER", "")
	fp, tg := stubPublisher(t)
	var out bytes.Buffer

	err := RunPublish([]string{"--topic", "asay", "--json", `{"a":1}`, "--count", "3", "--url", "redis://example:6379"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.payloads) != 3 || fp.topic != "asay" {
		t.Errorf("published %v to %q", fp.payloads, fp.topic)
	}
	if tg.broker != "redis" || tg.url != "redis://example:6379" {
		t.Errorf("unexpected target %+v", *tg)
	}
	if !fp.closed {
		t.Error("expected publisher to be closed")
	}
	if !strings.Contains(out.String(), "Published 3 payload(s)") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunPublish_KafkaTarget(t *testing.T) {
	_, tg := stubPublisher(t)
	err := RunPublish([]string{"--topic", "asay", "--json", "{}", "--broker", "kafka", "--brokers", "k1:9092,k2:9092"}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tg.broker != "kafka" || len(tg.brokers) != 2 {
		t.Errorf("unexpected target %+v", *tg)
	}
}

func TestRunPublish_File(t *testing.T) {
	fp, _ := stubPublisher(t)
	path := writeTemp(t, "asay.jsonl", "{\"n\":1}\n\n{\"n\":2}\n{\"n\":3}\n")

	if err := RunPublish([]string{"--topic", "asay", "--file", path, "--count", "2"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.payloads) != 2 || fp.payloads[1] != `{"n":2}` {
		t.Errorf("published %v", fp.payloads)
	}
}

func TestRunPublish_FileErrors(t *testing.T) {
	stubPublisher(t)
	bad := writeTemp(t, "bad.jsonl", "{\"n\":1}\nnot json\n")
	if err := RunPublish([]string{"--topic", "t", "--file", bad}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Errorf("expected line 2 error, got %v", err)
	}
	empty := writeTemp(t, "empty.jsonl", "\n\n")
	if err := RunPublish([]string{"--topic", "t", "--file", empty}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for empty file")
	}
	if err := RunPublish([]string{"--topic", "t", "--file", "/no/such/file"}, &bytes.Buffer{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestRunPublish_PublishError(t *testing.T) {
	fp, _ := stubPublisher(t)
	fp.failAt = 2
	err := RunPublish([]string{"--topic", "t", "--json", "{}", "--count", "3"}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "payload 2") {
		t.Fatalf("expected failure on payload 2, got %v", err)
	}
}

func TestRunPublish_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	var out bytes.Buffer
	err := RunPublish([]string{"--topic", "asay", "--json", `{"a":1}`, "--broker", "redis", "--url", "redis://" + mr.Addr()}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunValidate(t *testing.T) {
	path := writeTemp(t, "channels.yaml", `
channels:
  - name: asay
    topicEnv: REDIS_ASAY_SUBSCRIPTION
    destination: "123"
    transform: {kind: asay, envelope: cloudevents}
`)
	var out bytes.Buffer
	if err := RunValidate([]string{path}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"asay", "$REDIS_ASAY_SUBSCRIPTION", "asay+cloudevents", "1 channel(s) valid."} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunValidate_Invalid(t *testing.T) {
	path := writeTemp(t, "channels.yaml", `
channels:
  - name: x
    topic: a
    destination: nope
    transform: {kind: asay}
`)
	if err := RunValidate([]string{path}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestRunValidate_BuiltIn(t *testing.T) {
	t.Setenv("RELAY_CHANNELS_FILE", "")
	t.Chdir(t.TempDir())

	var out bytes.Buffer
	if err := RunValidate(nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "4 channel(s) valid.") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunRender(t *testing.T) {
	var out bytes.Buffer
	err := RunRender([]string{"--kind", "asay", "--input", `{"source":"game","author":"Alice","message":"hi","rank":"Admin"}`}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{`"title": "Alice"`, `"description": "hi"`, `"Admin@game"`} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %s:\n%s", want, out.String())
		}
	}
}

func TestRunRender_Skipped(t *testing.T) {
	path := writeTemp(t, "discord.json", "{\n  \"source\": \"discord\",\n  \"author\": \"Bob\",\n  \"message\": \"yo\",\n  \"rank\": \"Mod\"\n}\n")
	var out bytes.Buffer
	if err := RunRender([]string{"--kind", "asay", "--input", path}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out.String(), "No message") {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRunRender_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing kind", []string{"--input", "{}"}},
		{"missing input", []string{"--kind", "asay"}},
		{"unknown kind", []string{"--kind", "ahelp", "--input", "{}"}},
		{"transform failure", []string{"--kind", "asay", "--input", `{"source":"game"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := RunRender(tt.args, &bytes.Buffer{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestHelp(t *testing.T) {
	for name, run := range map[string]func([]string, *bytes.Buffer) error{
		"publish":  func(a []string, b *bytes.Buffer) error { return RunPublish(a, b) },
		"validate": func(a []string, b *bytes.Buffer) error { return RunValidate(a, b) },
		"render":   func(a []string, b *bytes.Buffer) error { return RunRender(a, b) },
	} {
		var out bytes.Buffer
		if err := run([]string{"--help"}, &out); err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
		if !strings.HasPrefix(out.String(), "Usage: relayctl "+name) {
			t.Errorf("%s: unexpected help %q", name, out.String())
		}
	}
}

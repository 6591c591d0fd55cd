package transform

import (
	"errors"
	"testing"

	"github.com/lsm/relay/internal/chat"
)

func TestFunc(t *testing.T) {
	var got []byte
	f := Func(func(p []byte) (*chat.Message, error) {
		got = p
		return &chat.Message{Title: "t"}, nil
	})

	msg, err := f.Transform([]byte("payload"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg == nil || msg.Title != "t" {
		t.Errorf("unexpected message %+v", msg)
	}
	if string(got) != "payload" {
		t.Errorf("expected payload to be passed through, got %q", got)
	}
}

func TestFunc_Error(t *testing.T) {
	want := errors.New("bad")
	_, err := Func(func([]byte) (*chat.Message, error) { return nil, want }).Transform(nil)
	if !errors.Is(err, want) {
		t.Errorf("expected %v, got %v", want, err)
	}
}

func TestNoop(t *testing.T) {
	for _, payload := range [][]byte{nil, []byte(""), []byte("not-json"), []byte(`{"source":"game","author":"a","message":"m","rank":"r"}`)} {
		msg, err := Noop.Transform(payload)
		if err != nil {
			t.Errorf("unexpected error for %q: %v", payload, err)
		}
		if msg != nil {
			t.Errorf("expected no message for %q, got %+v", payload, msg)
		}
	}
}

package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/lsm/relay/internal/observability"
	"github.com/lsm/relay/internal/transform"
)

func TestSupervisor_SkipsUnrunnableDefinitions(t *testing.T) {
	broker := newFakeBroker()
	broker.stream("ok").end()

	m := observability.NewMetrics(prometheus.NewRegistry())
	sup := NewSupervisor(broker, newFakeSink(), WithMetrics(m))

	reports := sup.Run(context.Background(), []ChannelDefinition{
		{Name: "no-topic", Destination: "42", Transform: echo},
		{Name: "no-dest", Topic: "x", Transform: echo},
		{Name: "no-transform", Topic: "x", Destination: "42"},
		{Name: "ok", Topic: "ok", Destination: "42", Transform: transform.Noop},
	})

	if len(reports) != 1 || reports[0].Channel != "ok" {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if v := testutil.ToFloat64(m.ChannelsSkipped); v != 3 {
		t.Errorf("skipped = %v, want 3", v)
	}
	if broker.connects != 1 {
		t.Errorf("connects = %d, want 1", broker.connects)
	}
}

func TestSupervisor_NothingToRun(t *testing.T) {
	sup := NewSupervisor(newFakeBroker(), newFakeSink())
	if reports := sup.Run(context.Background(), nil); reports != nil {
		t.Errorf("expected no reports, got %+v", reports)
	}
}

func TestSupervisor_WorkersProgressIndependently(t *testing.T) {
	broker := newFakeBroker()
	broker.subscribeErr["broken"] = errors.New("no such channel")
	broker.stream("broken")
	broker.stream("blocked")
	live := broker.stream("live")

	sk := newFakeSink()
	sup := NewSupervisor(broker, sk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan []Report, 1)
	go func() {
		done <- sup.Run(ctx, []ChannelDefinition{
			{Name: "broken", Topic: "broken", Destination: "1", Transform: echo},
			{Name: "blocked", Topic: "blocked", Destination: "2", Transform: echo},
			{Name: "live", Topic: "live", Destination: "3", Transform: echo},
		})
	}()

	// "blocked" never receives anything and "broken" has already failed,
	// yet "live" keeps delivering.
	for _, p := range []string{"a", "b"} {
		live.push("live", p)
		select {
		case d := <-sk.notify:
			if d.dest != 3 || d.msg.Body != p {
				t.Fatalf("unexpected delivery %+v", d)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("payload %q was not delivered", p)
		}
	}

	waitFor(t, func() bool { return sup.Listening() == 2 })

	cancel()
	var reports []Report
	select {
	case reports = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not return after cancel")
	}

	reasons := make(map[string]Reason)
	for _, r := range reports {
		reasons[r.Channel] = r.Termination.Reason
	}
	want := map[string]Reason{
		"broken":  ReasonSubscribeFailed,
		"blocked": ReasonCancelled,
		"live":    ReasonCancelled,
	}
	for ch, reason := range want {
		if reasons[ch] != reason {
			t.Errorf("%s: reason = %s, want %s", ch, reasons[ch], reason)
		}
	}
}

func TestSupervisor_StatesSnapshot(t *testing.T) {
	broker := newFakeBroker()
	broker.stream("b").end()
	broker.stream("a").end()

	var forwarded atomic.Int32
	sup := NewSupervisor(broker, newFakeSink(), WithStateObserver(func(Status) { forwarded.Add(1) }))
	sup.Run(context.Background(), []ChannelDefinition{
		{Name: "b", Topic: "b", Destination: "1", Transform: echo},
		{Name: "a", Topic: "a", Destination: "2", Transform: echo},
	})

	states := sup.States()
	if len(states) != 2 || states[0].Channel != "a" || states[1].Channel != "b" {
		t.Fatalf("unexpected states %+v", states)
	}
	for _, st := range states {
		if st.State != StateTerminated || st.Termination == nil || st.Termination.Reason != ReasonStreamClosed {
			t.Errorf("unexpected status %+v", st)
		}
	}
	if forwarded.Load() == 0 {
		t.Error("expected the caller's observer to be forwarded updates")
	}
	if sup.Listening() != 0 {
		t.Errorf("listening = %d, want 0", sup.Listening())
	}

	raw, err := json.Marshal(states[0])
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, want := range []string{`"channel":"a"`, `"state":"terminated"`, `"reason":"stream_closed"`} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("status JSON %s missing %s", raw, want)
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

package relay

import (
	"context"
	"sort"
	"sync"

	"github.com/lsm/relay/internal/sink"
	"github.com/lsm/relay/internal/source"
)

// Report records how one worker ended.
type Report struct {
	Channel     string
	Termination Termination
}

// Supervisor starts a worker per channel and waits for all of them. It never
// restarts a worker.
type Supervisor struct {
	broker source.Broker
	sink   sink.Sink
	opts   options
	extra  []Option

	mu     sync.Mutex
	states map[string]Status
}

// NewSupervisor returns a supervisor that hands broker, sk and opts to every
// worker it starts.
func NewSupervisor(broker source.Broker, sk sink.Sink, opts ...Option) *Supervisor {
	return &Supervisor{
		broker: broker,
		sink:   sk,
		opts:   newOptions(opts),
		extra:  opts,
		states: make(map[string]Status),
	}
}

// Run starts one worker for each runnable definition and blocks until every
// worker has terminated. Definitions that cannot run are skipped with a
// warning. Reports are returned in completion order.
func (s *Supervisor) Run(ctx context.Context, defs []ChannelDefinition) []Report {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		reports []Report
	)

	started := 0
	for _, def := range defs {
		if err := def.runnable(); err != nil {
			s.opts.logger.Warn("skipping channel", "channel", def.label(), "error", err)
			s.opts.metrics.ObserveSkipped()
			continue
		}

		w := NewWorker(def, s.broker, s.sink, s.workerOptions()...)
		started++
		wg.Add(1)
		go func() {
			defer wg.Done()
			term := w.Run(ctx)
			mu.Lock()
			reports = append(reports, Report{Channel: def.label(), Termination: term})
			mu.Unlock()
		}()
	}

	if started == 0 {
		s.opts.logger.Warn("no channels to relay")
		return nil
	}
	s.opts.logger.Info("channel workers started", "count", started)

	wg.Wait()
	s.opts.logger.Info("all channel workers terminated", "count", started)
	return reports
}

func (s *Supervisor) workerOptions() []Option {
	forward := s.opts.observer
	opts := append([]Option{}, s.extra...)
	return append(opts, WithStateObserver(func(st Status) {
		s.mu.Lock()
		s.states[st.Channel] = st
		s.mu.Unlock()
		if forward != nil {
			forward(st)
		}
	}))
}

// States returns the last known status of every started worker, ordered by
// channel name.
func (s *Supervisor) States() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Status, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}

// Listening reports how many workers are currently listening.
func (s *Supervisor) Listening() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, st := range s.states {
		if st.State == StateListening {
			n++
		}
	}
	return n
}

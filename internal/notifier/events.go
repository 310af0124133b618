package notifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"envpool/internal/eventbus"
	"envpool/internal/pool"
	"envpool/pkg/logx"
)

// WatchOptions picks which bus events become notifications.
type WatchOptions struct {
	Runs      bool
	Abandoned bool
}

// Watch turns pool events into notifications until ctx is done.
func (s *Service) Watch(ctx context.Context, bus eventbus.Bus, opt WatchOptions) {
	var prefixes []string
	if opt.Runs {
		prefixes = append(prefixes, eventbus.RunFinished)
	}
	if opt.Abandoned {
		prefixes = append(prefixes, eventbus.JobAbandoned)
	}
	if len(prefixes) == 0 {
		return
	}
	events, unsubscribe := bus.Subscribe(64, prefixes...)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n, ok := fromEvent(ev)
			if !ok {
				continue
			}
			if err := s.Notify(ctx, n); err != nil && ctx.Err() == nil {
				s.log.Debug("notify skipped", logx.String("event", ev.Type), logx.Err(err))
			}
		}
	}
}

func fromEvent(ev eventbus.Event) (Notification, bool) {
	switch data := ev.Data.(type) {
	case pool.Report:
		if ev.Type != eventbus.RunFinished {
			return Notification{}, false
		}
		p := PriorityInfo
		if len(data.Abandoned) > 0 || data.Canceled {
			p = PriorityWarn
		}
		return Notification{Priority: p, Text: FormatReport(data)}, true
	case pool.JobEvent:
		if ev.Type != eventbus.JobAbandoned {
			return Notification{}, false
		}
		return Notification{
			Priority: PriorityAlert,
			Text: fmt.Sprintf("Job abandoned\n- key: %s\n- row: %d\n- attempts: %d\n- error: %s",
				data.Key, data.Row, data.Attempt, truncate(data.Error, 300)),
		}, true
	}
	return Notification{}, false
}

// FormatReport renders a run summary for a chat message.
func FormatReport(r pool.Report) string {
	var b strings.Builder
	title := "Run finished"
	if r.Canceled {
		title = "Run canceled"
	}
	fmt.Fprintf(&b, "%s (%s)\n", title, r.RunID)
	fmt.Fprintf(&b, "- loaded: %d\n", r.Loaded)
	fmt.Fprintf(&b, "- succeeded: %d\n", r.Succeeded)
	fmt.Fprintf(&b, "- failures: %d (retries %d)\n", r.Failures, r.Retries)
	if r.LeaseErrors > 0 {
		fmt.Fprintf(&b, "- lease errors: %d\n", r.LeaseErrors)
	}
	if r.Remaining > 0 {
		fmt.Fprintf(&b, "- remaining: %d\n", r.Remaining)
	}
	if n := len(r.Abandoned); n > 0 {
		shown := r.Abandoned
		if n > 10 {
			shown = shown[:10]
		}
		fmt.Fprintf(&b, "- abandoned: %d (%s", n, strings.Join(shown, ", "))
		if n > 10 {
			b.WriteString(", ...")
		}
		b.WriteString(")\n")
	}
	fmt.Fprintf(&b, "- took: %s", r.Duration.Round(time.Second))
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

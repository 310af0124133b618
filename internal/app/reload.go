package app

import (
	"context"
	"strings"

	"envpool/internal/config"
	"envpool/internal/eventbus"
	"envpool/pkg/logx"
)

// reloadLoop applies hot-reloadable sections (logging, observability) and
// warns about the rest.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(4)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(ctx, last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(next))
	a.obs.Reconfigure(ctx, mapObservabilityConfig(next))

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart {
		a.log.Warn("some changed sections take effect after restart", logx.String("changed", strings.Join(sections, ",")))
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigApplied, Data: sections})
}

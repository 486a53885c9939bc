package logging

import (
	"context"
	"log/slog"
	"strings"
)

// DropMessages wraps h so that records whose message contains any of the
// given substrings are discarded. Wrap only the handler of the component
// that emits the noise; the process-wide logger stays untouched.
func DropMessages(h slog.Handler, substrings ...string) slog.Handler {
	return &dropHandler{next: h, drop: substrings}
}

type dropHandler struct {
	next slog.Handler
	drop []string
}

func (d *dropHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return d.next.Enabled(ctx, level)
}

func (d *dropHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, s := range d.drop {
		if strings.Contains(r.Message, s) {
			return nil
		}
	}
	return d.next.Handle(ctx, r)
}

func (d *dropHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &dropHandler{next: d.next.WithAttrs(attrs), drop: d.drop}
}

func (d *dropHandler) WithGroup(name string) slog.Handler {
	return &dropHandler{next: d.next.WithGroup(name), drop: d.drop}
}

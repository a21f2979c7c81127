package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/midimsg"
)

// readEvents returns the events of an event file, or else the raw
// messages given as arguments on port.
func readEvents(file string, raw []string, port int) ([]ir.Event, error) {
	if file != "" {
		return midimsg.LoadEvents(file)
	}
	events := make([]ir.Event, 0, len(raw))
	for _, msg := range raw {
		ev, err := decodeHex(msg, port)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeHex(msg string, port int) (ir.Event, error) {
	b, err := midimsg.ParseHex(msg)
	if err != nil {
		return ir.Event{}, err
	}
	ev, err := midimsg.Decode(port, b)
	if err != nil {
		return ir.Event{}, fmt.Errorf("decode %q: %w", msg, err)
	}
	slog.Debug("decoded message", "port", port, "midi", midimsg.Describe(b))
	return ev, nil
}

// scanEvents reads one hex message per line from r and passes each to
// emit. Blank lines and lines starting with # are skipped.
func scanEvents(r io.Reader, port int, emit func(ir.Event) bool) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		ev, err := decodeHex(text, port)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		if !emit(ev) {
			return nil
		}
	}
	return sc.Err()
}

// formatTraceEvent renders one traced event as a timeline line.
func formatTraceEvent(ev ir.TraceEvent) string {
	raw := ""
	if b, err := midimsg.Encode(ev.Event); err == nil {
		raw = "  [" + midimsg.FormatHex(b) + "]"
	}
	if ev.Direction == ir.DirectionIn {
		return fmt.Sprintf("[%d] in  p%d %s%s", ev.Seq, ev.Patch, ev.Event, raw)
	}
	return fmt.Sprintf("[%d] out p%d <-%d %s%s", ev.Seq, ev.Patch, ev.CauseSeq, ev.Event, raw)
}

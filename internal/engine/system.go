package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/roach88/patchwire/internal/ir"
	"github.com/roach88/patchwire/internal/midimsg"
)

// runSystem runs command with sh -c. The event is exported to the command
// through PATCHWIRE_* environment variables.
func runSystem(ctx context.Context, command string, ev ir.Event) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Env = append(os.Environ(), eventEnv(ev)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if msg := bytes.TrimSpace(out); len(msg) > 0 {
			return fmt.Errorf("%w: %s", err, msg)
		}
		return err
	}
	return nil
}

func eventEnv(ev ir.Event) []string {
	env := []string{
		"PATCHWIRE_TYPE=" + string(ev.Type),
		"PATCHWIRE_PORT=" + strconv.Itoa(ev.Port),
		"PATCHWIRE_CHANNEL=" + strconv.Itoa(ev.Channel),
		"PATCHWIRE_DATA1=" + strconv.Itoa(ev.Data1),
		"PATCHWIRE_DATA2=" + strconv.Itoa(ev.Data2),
	}
	if ev.SysEx != nil {
		env = append(env, "PATCHWIRE_SYSEX="+midimsg.FormatHex(ev.SysEx))
	}
	return env
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/patchwire/internal/ir"
)

// WriteRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING so a resumed run keeps its first record.
func (s *Store) WriteRun(ctx context.Context, run ir.Run) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs
		(id, setup_hash, backend, client_name, engine_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.SetupHash,
		run.Backend,
		run.ClientName,
		run.EngineVersion,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteEvent inserts one traced event.
// Duplicate (run_id, seq) pairs are silently ignored. The run must exist.
func (s *Store) WriteEvent(ctx context.Context, ev ir.TraceEvent) error {
	if err := insertEvent(ctx, s.db, ev); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	return nil
}

// WritePatchSwitch records a change of the active patch.
func (s *Store) WritePatchSwitch(ctx context.Context, sw ir.PatchSwitch) error {
	if err := insertSwitch(ctx, s.db, sw); err != nil {
		return fmt.Errorf("write patch switch: %w", err)
	}
	return nil
}

// Step is one unit of engine work: an input event or an external patch
// switch, with the outputs it produced.
type Step struct {
	Input   *ir.TraceEvent
	Outputs []ir.TraceEvent
	Switch  *ir.PatchSwitch
}

// WriteStep writes an input, its outputs and an optional patch switch in a
// single transaction, so a crash never leaves an input without its outputs.
func (s *Store) WriteStep(ctx context.Context, step Step) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write step: begin tx: %w", err)
	}
	defer tx.Rollback()

	if step.Input != nil {
		if err := insertEvent(ctx, tx, *step.Input); err != nil {
			return fmt.Errorf("write step: input %d: %w", step.Input.Seq, err)
		}
	}
	for _, out := range step.Outputs {
		if err := insertEvent(ctx, tx, out); err != nil {
			return fmt.Errorf("write step: output %d: %w", out.Seq, err)
		}
	}
	if step.Switch != nil {
		if err := insertSwitch(ctx, tx, *step.Switch); err != nil {
			return fmt.Errorf("write step: switch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write step: commit: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEvent(ctx context.Context, db execer, ev ir.TraceEvent) error {
	var sysex any
	if ev.Event.SysEx != nil {
		sysex = ev.Event.SysEx
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO events
		(run_id, seq, cause_seq, direction, patch, port, channel, type, data1, data2, sysex)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		ev.RunID,
		ev.Seq,
		ev.CauseSeq,
		string(ev.Direction),
		ev.Patch,
		ev.Event.Port,
		ev.Event.Channel,
		string(ev.Event.Type),
		ev.Event.Data1,
		ev.Event.Data2,
		sysex,
	)
	return err
}

func insertSwitch(ctx context.Context, db execer, sw ir.PatchSwitch) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO patch_switches
		(run_id, seq, from_patch, to_patch)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		sw.RunID,
		sw.Seq,
		sw.From,
		sw.To,
	)
	return err
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/patchwire/internal/ir"
)

const eventSelectColumns = "run_id, seq, cause_seq, direction, patch, port, channel, type, data1, data2, sysex"

// ReadRun retrieves a run by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (ir.Run, error) {
	var run ir.Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, setup_hash, backend, client_name, engine_version
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.SetupHash, &run.Backend, &run.ClientName, &run.EngineVersion)
	if err != nil {
		return ir.Run{}, err
	}
	return run, nil
}

// ListRuns returns every run. UUIDv7 IDs sort by creation time.
//
// Returns an empty slice (not nil) if there are no runs.
func (s *Store) ListRuns(ctx context.Context) ([]ir.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, setup_hash, backend, client_name, engine_version
		FROM runs
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []ir.Run{}
	for rows.Next() {
		var run ir.Run
		if err := rows.Scan(&run.ID, &run.SetupHash, &run.Backend, &run.ClientName, &run.EngineVersion); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadTrace returns every event of a run in seq order.
func (s *Store) ReadTrace(ctx context.Context, runID string) ([]ir.TraceEvent, error) {
	return s.QueryEvents(ctx, EventQuery{RunID: runID})
}

// QueryEvents returns the events matching q in seq order.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) QueryEvents(ctx context.Context, q EventQuery) ([]ir.TraceEvent, error) {
	query, params, err := compileEventQuery(q)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.TraceEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// ReadPatchSwitches returns the patch changes of a run in seq order.
func (s *Store) ReadPatchSwitches(ctx context.Context, runID string) ([]ir.PatchSwitch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, from_patch, to_patch
		FROM patch_switches
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query patch switches: %w", err)
	}
	defer rows.Close()

	switches := []ir.PatchSwitch{}
	for rows.Next() {
		var sw ir.PatchSwitch
		if err := rows.Scan(&sw.RunID, &sw.Seq, &sw.From, &sw.To); err != nil {
			return nil, fmt.Errorf("scan patch switch: %w", err)
		}
		switches = append(switches, sw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patch switches: %w", err)
	}
	return switches, nil
}

// LastSeq returns the highest seq recorded for a run, or 0.
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(seq) FROM (
			SELECT seq FROM events WHERE run_id = ?
			UNION ALL
			SELECT seq FROM patch_switches WHERE run_id = ?
		)
	`, runID, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq.Int64, nil
}

func scanEvent(rows *sql.Rows) (ir.TraceEvent, error) {
	var (
		ev        ir.TraceEvent
		direction string
		typ       string
	)
	if err := rows.Scan(
		&ev.RunID, &ev.Seq, &ev.CauseSeq, &direction, &ev.Patch,
		&ev.Event.Port, &ev.Event.Channel, &typ, &ev.Event.Data1, &ev.Event.Data2,
		&ev.Event.SysEx,
	); err != nil {
		return ir.TraceEvent{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Direction = ir.Direction(direction)
	ev.Event.Type = ir.EventType(typ)
	return ev, nil
}

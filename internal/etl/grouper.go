package etl

import "github.com/audit-trail/backend/internal/models"

// Grouper coalesces an ordered stream of delta rows into per-event groups.
// Rows must arrive ordered by event id with equal ids contiguous; a group is
// known to be complete only when the first row of the next event shows up,
// so the last group is never emitted by Push. Callers must drain it with
// Flush after the stream ends.
type Grouper struct {
	current int64
	open    bool
	buf     []models.DeltaRow
}

// Push feeds one row into the grouper. When the row starts a new event it
// returns the previous event's rows and true; otherwise it returns nil, false.
func (g *Grouper) Push(row models.DeltaRow) ([]models.DeltaRow, bool) {
	var done []models.DeltaRow
	if g.open && row.Event.ID != g.current {
		done = g.buf
		g.buf = nil
	}
	g.current = row.Event.ID
	g.open = true
	g.buf = append(g.buf, row)
	return done, done != nil
}

// Flush returns the buffered tail group, if any, and resets the grouper.
func (g *Grouper) Flush() []models.DeltaRow {
	tail := g.buf
	g.buf = nil
	g.open = false
	return tail
}

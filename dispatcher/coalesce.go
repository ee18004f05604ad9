package dispatcher

import "github.com/GriffinCanCode/retrigger/event"

// coalesce reduces a single drained batch per §4.4's three rules, applied
// independently per path and preserving the relative order of distinct
// paths (the order each path was first seen in the batch):
//
//   - Created + Deleted for the same path cancels both: a file that
//     briefly existed within one batch is never reported.
//   - Modified + Modified collapses to one Modified carrying the later
//     timestamp.
//   - Created + Modified collapses to a single Created.
//   - Moved is never coalesced away; every Moved in the batch survives.
func (d *Dispatcher) coalesce(batch []event.RawEvent) []event.RawEvent {
	order := make([]string, 0, len(batch))
	buckets := make(map[string][]event.RawEvent, len(batch))
	for _, re := range batch {
		if _, seen := buckets[re.Path]; !seen {
			order = append(order, re.Path)
		}
		buckets[re.Path] = append(buckets[re.Path], re)
	}

	out := make([]event.RawEvent, 0, len(batch))
	for _, path := range order {
		out = append(out, reducePath(buckets[path])...)
	}
	return out
}

// reducePath applies the coalescing rules to every RawEvent observed for
// one path within a batch.
func reducePath(events []event.RawEvent) []event.RawEvent {
	var moves []event.RawEvent
	var created, deleted bool
	// lastTerminal tracks whichever of {Modified, MetadataChanged, Deleted}
	// occurred last in the batch, by occurrence order rather than a fixed
	// kind priority: a Modified followed by a Deleted must surface the
	// Deleted (the file's real terminal state), not the stale Modified.
	var lastTerminal *event.RawEvent

	for i := range events {
		e := events[i]
		switch e.Kind {
		case event.Moved:
			moves = append(moves, e)
		case event.Created:
			created = true
		case event.Deleted:
			deleted = true
			lastTerminal = &events[i]
		case event.Modified, event.MetadataChanged:
			lastTerminal = &events[i]
		}
	}

	if created && deleted {
		// A file that appeared and disappeared within one batch is never
		// reported; a Moved for the same path still survives, since it
		// refers to a different path pair entirely.
		return moves
	}

	out := make([]event.RawEvent, 0, len(moves)+1)
	out = append(out, moves...)

	switch {
	case created:
		out = append(out, firstOfKind(events, event.Created))
	case lastTerminal != nil:
		out = append(out, *lastTerminal)
	}
	return out
}

func firstOfKind(events []event.RawEvent, kind event.Kind) event.RawEvent {
	for _, e := range events {
		if e.Kind == kind {
			return e
		}
	}
	return event.RawEvent{}
}

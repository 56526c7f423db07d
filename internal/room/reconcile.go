package room

import "log"

// The member table accumulates arrivals, renames and departures between
// reconciliation passes; the flush methods below replay them into the
// UI sink in that strict order. Arrivals must be flushed first: a rename
// or departure refers to the name the sink was previously told
// (Member.LastAnnounced), which is only defined once the arrival has
// been processed.

// flushArrivals pops the new-member list, records each member's
// announced name and registers the whole batch with one sink call.
func (s *Session) flushArrivals(announce bool) int {
	arrivals := s.members.NewMembers()

	names := make([]string, 0, len(arrivals))
	for _, m := range arrivals {
		if m.LastAnnounced != "" {
			log.Printf("room: %s: member %s arrived but is already announced as %q",
				s.roomID, m.UserID, m.LastAnnounced)
			continue
		}
		m.LastAnnounced = m.DisplayName
		names = append(names, m.DisplayName)
	}

	if len(names) > 0 {
		s.deps.Sink.AddMembers(s.roomID, names, announce)
	}
	return len(names)
}

// flushRenames pops the renamed-member list and tells the sink about
// each name change, keyed by the previously announced name.
func (s *Session) flushRenames() int {
	renamed := s.members.RenamedMembers()

	n := 0
	for _, m := range renamed {
		if m.LastAnnounced == "" {
			log.Printf("room: %s: member %s renamed but was never announced",
				s.roomID, m.UserID)
			continue
		}
		if m.DisplayName == m.LastAnnounced {
			// Renamed back before the flush; nothing to tell the sink.
			continue
		}
		s.deps.Sink.RenameMember(s.roomID, m.LastAnnounced, m.DisplayName)
		m.LastAnnounced = m.DisplayName
		n++
	}
	return n
}

// flushDepartures pops the left-member list, removes each member from
// the sink under their announced name and clears it.
func (s *Session) flushDepartures() int {
	left := s.members.LeftMembers()

	n := 0
	for _, m := range left {
		if m.LastAnnounced == "" {
			log.Printf("room: %s: member %s left but was never announced",
				s.roomID, m.UserID)
			continue
		}
		s.deps.Sink.RemoveMember(s.roomID, m.LastAnnounced)
		m.LastAnnounced = ""
		n++
	}
	return n
}

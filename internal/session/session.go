package session

import "time"

// Session is the in-memory state of one item's refinement conversation.
type Session struct {
	ItemID string
	// ResumeHandle is empty until the first backend call responds.
	ResumeHandle  string
	TurnCount     int
	TotalCost     float64
	TotalDuration time.Duration
}

// Snapshot is the persisted form of a Session.
type Snapshot struct {
	ResumeHandle *string `json:"resumeHandle"`
	ItemID       string  `json:"itemId"`
	TurnCount    int     `json:"turnCount"`
	TotalCost    float64 `json:"totalCost"`
	// TotalDuration is in milliseconds.
	TotalDuration int64 `json:"totalDuration"`
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ItemID:        s.ItemID,
		TurnCount:     s.TurnCount,
		TotalCost:     s.TotalCost,
		TotalDuration: s.TotalDuration.Milliseconds(),
	}
	if s.ResumeHandle != "" {
		handle := s.ResumeHandle
		snap.ResumeHandle = &handle
	}
	return snap
}

func fromSnapshot(snap Snapshot) *Session {
	s := &Session{
		ItemID:        snap.ItemID,
		TurnCount:     snap.TurnCount,
		TotalCost:     snap.TotalCost,
		TotalDuration: time.Duration(snap.TotalDuration) * time.Millisecond,
	}
	if snap.ResumeHandle != nil {
		s.ResumeHandle = *snap.ResumeHandle
	}
	return s
}

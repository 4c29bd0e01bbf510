package domain

import "time"

// PresenceEntry is keyed by (BoardId, Email). Role is durable, Online is ephemeral.
type PresenceEntry struct {
	BoardId  BoardId
	Email    Email
	Role     Role
	Online   bool
	LastSeen time.Time
	// Instance is the server process that last brought the entry online.
	Instance string
}

func (p PresenceEntry) Member() Member {
	return Member{Email: p.Email, Role: p.Role, Online: p.Online}
}

// Member is the wire shape of a presence entry.
type Member struct {
	Email  Email `json:"email"`
	Role   Role  `json:"role"`
	Online bool  `json:"online"`
}

func CountOnline(members []Member) (online, offline int) {
	for _, m := range members {
		if m.Online {
			online++
		} else {
			offline++
		}
	}
	return online, offline
}

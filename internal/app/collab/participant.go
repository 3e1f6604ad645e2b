package collab

import "time"

// Identity is the authenticated identity attached to a session at connect time.
type Identity struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Participant is the room-scoped record of one user's presence and activity.
// It is distinct from the transient Session: a disconnect only flips Online to
// false so attribution and history survive transient drops; the record is removed
// only when the user explicitly leaves or switches rooms.
type Participant struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Online   bool      `json:"online"`
	Section  string    `json:"section"`
	LastSeen time.Time `json:"lastSeen"`
}

// newParticipant creates an online Participant from a session identity.
func newParticipant(identity Identity) *Participant {
	return &Participant{
		UserID:   identity.ID,
		Name:     identity.Name,
		Email:    identity.Email,
		Online:   true,
		LastSeen: time.Now(),
	}
}

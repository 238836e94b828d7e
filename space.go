package anchorhold

import "time"

// Space is a named container holding one opaque spatial payload
// and the anchors that belong to it.
// The payload is never interpreted here;
// Compressed records whether it went through the compress codec
// on its way into storage,
// and travels with the record across the remote boundary.
type Space struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Payload    []byte    `json:"payload"`
	Compressed bool      `json:"compressed,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Clone returns a copy of s whose payload shares no memory with s.
func (s Space) Clone() Space {
	out := s
	if s.Payload != nil {
		out.Payload = make([]byte, len(s.Payload))
		copy(out.Payload, s.Payload)
	}
	return out
}

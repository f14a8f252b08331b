package pack

import "github.com/dekarrin/rezi"

// MarshalBinary round-trips Tables through REZI's binary codec instead of
// hand-rolled byte munging, matching the teacher's session-state encoding in
// server/dao/sqlite.
func (t *Tables) MarshalBinary() ([]byte, error) {
	return rezi.EncBinary(*t), nil
}

// UnmarshalBinary decodes a Tables previously produced by MarshalBinary.
func (t *Tables) UnmarshalBinary(data []byte) error {
	_, err := rezi.DecBinary(data, t)
	return err
}

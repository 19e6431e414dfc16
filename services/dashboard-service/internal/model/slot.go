package model

import (
	"bytes"
	"encoding/json"
	"errors"
)

// SlotDescriptor is one entry of a practitioner's slot grid. On the wire it
// is either a bare time string (nominal) or an object carrying the patient
// who holds it (booked).
type SlotDescriptor struct {
	Time        string `json:"time"`
	PatientName string `json:"patientName,omitempty"`
}

func (s SlotDescriptor) Booked() bool { return s.PatientName != "" }

var errBadSlot = errors.New("slot must be a time string or an object with a time field")

func (s *SlotDescriptor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var t string
		if err := json.Unmarshal(data, &t); err != nil {
			return err
		}
		*s = SlotDescriptor{Time: t}
		return nil
	}
	type plain SlotDescriptor
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Time == "" {
		return errBadSlot
	}
	*s = SlotDescriptor(p)
	return nil
}

func (s SlotDescriptor) MarshalJSON() ([]byte, error) {
	if !s.Booked() {
		return json.Marshal(s.Time)
	}
	type plain SlotDescriptor
	return json.Marshal(plain(s))
}

// BookedSlot is a slot resolved against an appointment.
type BookedSlot struct {
	Time          string `json:"time"`
	PatientName   string `json:"patientName"`
	AppointmentID string `json:"appointmentId,omitempty"`
	Status        string `json:"status"`
}

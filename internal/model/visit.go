package model

// VisitStatus is the stage of a patient's visit.
type VisitStatus string

const (
	VisitPending    VisitStatus = "pending"
	VisitInProgress VisitStatus = "in_progress"
	VisitCompleted  VisitStatus = "completed"
)

// Visit is one patient's registration-through-completion record for a day.
// AppointmentNumber is assigned by the server and never changed locally.
type Visit struct {
	ID                string      `json:"id"`
	PatientName       string      `json:"patientName"`
	Age               int         `json:"age"`
	Phone             string      `json:"phone"`
	AppointmentNumber int         `json:"appointmentNumber"`
	Status            VisitStatus `json:"status"`
	Diagnosis         string      `json:"diagnosis,omitempty"`
	Prescription      string      `json:"prescription,omitempty"`
	Date              string      `json:"date,omitempty"`
}

// NewVisit is the counter registration payload.
type NewVisit struct {
	PatientName string `json:"patientName"`
	Age         int    `json:"age"`
	Phone       string `json:"phone"`
}

// QueueSnapshot is the clinic's live queue at a point in time. It is replaced
// wholesale on every successful poll.
type QueueSnapshot struct {
	CurrentPatient *Visit  `json:"currentPatient"`
	CompletedList  []Visit `json:"completedList"`
	TotalToday     int     `json:"totalToday"`
}

// Accounted is the number of visits the snapshot itself shows. TotalToday is
// trusted verbatim and may exceed it.
func (q QueueSnapshot) Accounted() int {
	n := len(q.CompletedList)
	if q.CurrentPatient != nil {
		n++
	}
	return n
}

package settlement

import "time"

// SessionOutcome is the per-session result of one pass.
type SessionOutcome struct {
	SessionID   string `json:"sessionId"`
	Title       string `json:"title"`
	Proceed     bool   `json:"proceed"`
	Enrolled    int    `json:"enrolled"`
	MinStudents int    `json:"minStudents"`

	EmailsConfirmed int `json:"emailsConfirmed"`
	EmailsCancelled int `json:"emailsCancelled"`
	EmailsFailed    int `json:"emailsFailed"`
	EmailsSkipped   int `json:"emailsSkipped"`

	PaymentsCaptured int `json:"paymentsCaptured"`
	PaymentsCanceled int `json:"paymentsCanceled"`
	PaymentsFailed   int `json:"paymentsFailed"`
	PaymentsSkipped  int `json:"paymentsSkipped"`
}

// Report aggregates one settlement pass.
type Report struct {
	RunID      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	SessionsProcessed int `json:"sessionsProcessed"`
	EmailsConfirmed   int `json:"emailsConfirmed"`
	EmailsCancelled   int `json:"emailsCancelled"`
	EmailsFailed      int `json:"emailsFailed"`
	PaymentsCaptured  int `json:"paymentsCaptured"`
	PaymentsCanceled  int `json:"paymentsCanceled"`
	PaymentsFailed    int `json:"paymentsFailed"`

	PerSession []SessionOutcome `json:"perSession"`
	Error      string           `json:"error,omitempty"`
}

func summarize(runID string, started, finished time.Time, outcomes []SessionOutcome) Report {
	r := Report{
		RunID:             runID,
		StartedAt:         started,
		FinishedAt:        finished,
		SessionsProcessed: len(outcomes),
		PerSession:        outcomes,
	}
	if r.PerSession == nil {
		r.PerSession = []SessionOutcome{}
	}
	for _, o := range outcomes {
		r.EmailsConfirmed += o.EmailsConfirmed
		r.EmailsCancelled += o.EmailsCancelled
		r.EmailsFailed += o.EmailsFailed
		r.PaymentsCaptured += o.PaymentsCaptured
		r.PaymentsCanceled += o.PaymentsCanceled
		r.PaymentsFailed += o.PaymentsFailed
	}
	return r
}

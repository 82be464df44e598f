package report

import (
	"time"

	"eye-report/api/internal/apperr"
	"eye-report/api/internal/modality"
)

type State string

const (
	StateIdle          State = "idle"
	StateImageProvided State = "image_provided"
	StateAcknowledged  State = "acknowledged"
	StateDispatched    State = "dispatched"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
)

// GatePolicy holds the dispatch preconditions beyond "an image is present".
type GatePolicy struct {
	RequireAcknowledgment bool
}

var DefaultPolicy = GatePolicy{RequireAcknowledgment: true}

const (
	msgNeedImage   = "Please upload or capture an image first."
	msgNeedAck     = "Please acknowledge the AI medical disclaimer to proceed."
	msgBusy        = "A report is already being generated. Please wait."
	msgAlreadyDone = "This image has already been reported. Send a new image to start again."
)

// Session is one operator's working state. It is not safe for concurrent use;
// callers serialise access per chat or per request. Report is never encoded,
// and the image is dropped once a report exists.
type Session struct {
	State        State             `json:"state"`
	Modality     modality.Modality `json:"modality"`
	Style        modality.Style    `json:"style"`
	Source       modality.Source   `json:"source"`
	Image        []byte            `json:"image,omitempty"`
	MIME         string            `json:"mime,omitempty"`
	Acknowledged bool              `json:"acknowledged"`
	Report       string            `json:"-"`
	Error        string            `json:"error,omitempty"`
	ErrorKind    apperr.Kind       `json:"error_kind,omitempty"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func NewSession() *Session {
	return &Session{
		State:     StateIdle,
		Modality:  modality.DefaultModality,
		Style:     modality.DefaultStyle,
		Source:    modality.SourceUpload,
		UpdatedAt: time.Now(),
	}
}

func (s *Session) touch() { s.UpdatedAt = time.Now() }

func (s *Session) HasImage() bool { return len(s.Image) > 0 }

func (s *Session) SelectModality(m modality.Modality) error {
	if s.State == StateDispatched {
		return apperr.Gate(msgBusy)
	}
	if !m.Valid() {
		return apperr.Validation("unknown modality "+string(m), nil)
	}
	s.Modality = m
	s.touch()
	return nil
}

func (s *Session) SelectStyle(st modality.Style) error {
	if s.State == StateDispatched {
		return apperr.Gate(msgBusy)
	}
	if !st.Valid() {
		return apperr.Validation("unknown report style "+string(st), nil)
	}
	s.Style = st
	s.touch()
	return nil
}

// ProvideImage replaces the image and drops the previous report, error and acknowledgment.
func (s *Session) ProvideImage(img []byte, mime string, src modality.Source) error {
	if s.State == StateDispatched {
		return apperr.Gate(msgBusy)
	}
	if len(img) == 0 {
		return apperr.Validation("image payload is empty", nil)
	}
	if src == "" {
		src = modality.SourceUpload
	}
	s.Image = img
	s.MIME = mime
	s.Source = src
	s.Acknowledged = false
	s.Report = ""
	s.Error = ""
	s.ErrorKind = ""
	s.State = StateImageProvided
	s.touch()
	return nil
}

// SetAcknowledged toggles between ImageProvided and Acknowledged. In terminal
// states only the flag changes, so a failed run can be re-triggered.
func (s *Session) SetAcknowledged(ack bool) error {
	switch s.State {
	case StateDispatched:
		return apperr.Gate(msgBusy)
	case StateIdle:
		return apperr.Gate(msgNeedImage)
	case StateImageProvided, StateAcknowledged:
		if ack {
			s.State = StateAcknowledged
		} else {
			s.State = StateImageProvided
		}
	}
	s.Acknowledged = ack
	s.touch()
	return nil
}

// CanBegin reports whether Begin would succeed, without changing anything.
func (s *Session) CanBegin(p GatePolicy) error {
	switch s.State {
	case StateDispatched:
		return apperr.Gate(msgBusy)
	case StateIdle:
		return apperr.Gate(msgNeedImage)
	case StateSucceeded:
		return apperr.Gate(msgAlreadyDone)
	}
	if !s.HasImage() {
		return apperr.Gate(msgNeedImage)
	}
	if p.RequireAcknowledgment && !s.Acknowledged {
		return apperr.Gate(msgNeedAck)
	}
	return nil
}

// Begin moves the session to Dispatched. It is the only way there.
func (s *Session) Begin(p GatePolicy) error {
	if err := s.CanBegin(p); err != nil {
		return err
	}
	s.Report = ""
	s.Error = ""
	s.ErrorKind = ""
	s.State = StateDispatched
	s.touch()
	return nil
}

func (s *Session) Succeed(text string) error {
	if s.State != StateDispatched {
		return apperr.Gate("no dispatch in progress")
	}
	s.Report = text
	s.Image = nil
	s.State = StateSucceeded
	s.touch()
	return nil
}

func (s *Session) Fail(err error) error {
	if s.State != StateDispatched {
		return apperr.Gate("no dispatch in progress")
	}
	s.Report = ""
	s.Error = apperr.Message(err)
	s.ErrorKind = apperr.KindOf(err)
	s.State = StateFailed
	s.touch()
	return nil
}

// Reset clears the image and result but keeps the selectors.
func (s *Session) Reset() {
	m, st := s.Modality, s.Style
	*s = *NewSession()
	s.Modality, s.Style = m, st
}

package report

import (
	"context"
	"time"

	"eye-report/api/internal/prompt"
	"eye-report/api/internal/reference"
	"eye-report/api/internal/util"
	"eye-report/api/internal/vision"
)

// Outcome describes one finished dispatch. It never carries the image or the report.
type Outcome struct {
	Channel     string
	Session     *Session
	Provider    string
	Model       string
	ImageSHA256 string
	ImageBytes  int
	Err         error
	StartedAt   time.Time
	Duration    time.Duration
}

// Observer is told about every dispatch that reached the engine stage.
type Observer interface {
	Observe(ctx context.Context, o Outcome)
}

type Service struct {
	Channel string

	corpus     *reference.Corpus
	assembler  *prompt.Assembler
	dispatcher *vision.Dispatcher
	policy     GatePolicy
	observer   Observer
}

func NewService(corpus *reference.Corpus, a *prompt.Assembler, d *vision.Dispatcher, policy GatePolicy) *Service {
	if a == nil {
		a = prompt.NewAssembler(0)
	}
	return &Service{corpus: corpus, assembler: a, dispatcher: d, policy: policy}
}

func (s *Service) WithObserver(o Observer) *Service {
	s.observer = o
	return s
}

func (s *Service) Policy() GatePolicy { return s.policy }

func (s *Service) Corpus() *reference.Corpus { return s.corpus }

// Model is the "provider/model" label of the configured engine.
func (s *Service) Model() string {
	if s.dispatcher == nil || s.dispatcher.Engine() == nil {
		return ""
	}
	e := s.dispatcher.Engine()
	return e.Name() + "/" + e.GetModel()
}

// Run dispatches the session's image once. A gate error leaves the session as
// it was; any later failure moves it to Failed with the error detail.
func (s *Service) Run(ctx context.Context, sess *Session) (string, error) {
	if err := sess.Begin(s.policy); err != nil {
		return "", err
	}
	start := time.Now()

	var ref string
	if s.corpus != nil {
		ref = s.corpus.Text(ctx)
	}
	text, err := s.assembler.Assemble(sess.Modality, sess.Style, ref)
	if err == nil {
		text, err = s.dispatcher.Dispatch(ctx, vision.Request{
			Prompt: text,
			Image:  sess.Image,
			MIME:   sess.MIME,
		})
	}
	s.observe(ctx, sess, start, err)

	if err != nil {
		_ = sess.Fail(err)
		return "", err
	}
	_ = sess.Succeed(text)
	return text, nil
}

func (s *Service) observe(ctx context.Context, sess *Session, start time.Time, err error) {
	if s.observer == nil {
		return
	}
	o := Outcome{
		Channel:     s.Channel,
		Session:     sess,
		ImageSHA256: util.SHA256Hex(sess.Image),
		ImageBytes:  len(sess.Image),
		Err:         err,
		StartedAt:   start,
		Duration:    time.Since(start),
	}
	if s.dispatcher != nil && s.dispatcher.Engine() != nil {
		o.Provider = s.dispatcher.Engine().Name()
		o.Model = s.dispatcher.Engine().GetModel()
	}
	s.observer.Observe(ctx, o)
}

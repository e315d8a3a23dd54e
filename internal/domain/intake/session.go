package intake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/intake/internal/domain/patient"
	"github.com/ehr/intake/internal/platform/blobstore"
	"github.com/ehr/intake/internal/platform/notification"
)

// DefaultRedirectDelay keeps the success notification visible before the
// client is sent to the search view.
const DefaultRedirectDelay = time.Second

var (
	ErrSubmitInProgress = errors.New("submission already in progress")
	ErrSessionClosed    = errors.New("intake session is closed")
)

// Status is the submission state of a session.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
)

// Result classifies a finished submission.
type Result string

const (
	ResultInvalid   Result = "invalid"
	ResultSucceeded Result = "succeeded"
	ResultFailed    Result = "failed"
)

// FailureMessage is the generic text shown for any failed insert.
const FailureMessage = "Failed to register patient. Please try again."

// Outcome describes how a Submit call ended.
type Outcome struct {
	Result     Result          `json:"result"`
	Reason     string          `json:"reason,omitempty"`
	Record     *patient.Record `json:"record,omitempty"`
	RedirectTo string          `json:"redirect_to,omitempty"`
}

// PatientStore persists new patient records.
type PatientStore interface {
	InsertPatient(ctx context.Context, req patient.InsertRequest) (*patient.Record, error)
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Deps are the collaborators a Session works with.
type Deps struct {
	Store         PatientStore
	Notifier      notification.Notifier
	Navigator     Navigator
	Blobs         blobstore.BlobStore
	Templates     *notification.TemplateEngine
	Scheduler     Scheduler
	Now           func() time.Time
	RedirectDelay time.Duration
	Logger        zerolog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notification.NotifierFunc(func(notification.Notification) {})
	}
	if d.Navigator == nil {
		d.Navigator = NavigatorFunc(func(string) {})
	}
	if d.Blobs == nil {
		d.Blobs = blobstore.NewInMemoryBlobStore()
	}
	if d.Templates == nil {
		d.Templates = notification.NewTemplateEngine()
	}
	if d.Scheduler == nil {
		d.Scheduler = clockScheduler{}
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.RedirectDelay <= 0 {
		d.RedirectDelay = DefaultRedirectDelay
	}
	return d
}

// Session is one instance of the intake form: its field values, staged
// attachments and submission state.
type Session struct {
	id   uuid.UUID
	deps Deps

	mu        sync.Mutex
	form      FormState
	files     []UploadedFile
	status    Status
	closed    bool
	pending   Timer
	createdAt time.Time
	updatedAt time.Time
}

// NewSession returns an empty, idle session.
func NewSession(id uuid.UUID, deps Deps) *Session {
	deps = deps.withDefaults()
	now := deps.Now().UTC()
	return &Session{
		id:        id,
		deps:      deps,
		status:    StatusIdle,
		createdAt: now,
		updatedAt: now,
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

// View is a point-in-time copy of a session's state.
type View struct {
	ID              uuid.UUID      `json:"id"`
	Status          Status         `json:"status"`
	Form            FormState      `json:"form"`
	Files           []UploadedFile `json:"files"`
	RedirectPending bool           `json:"redirect_pending"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (s *Session) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	files := make([]UploadedFile, len(s.files))
	copy(files, s.files)
	return View{
		ID:              s.id,
		Status:          s.status,
		Form:            s.form,
		Files:           files,
		RedirectPending: s.pending != nil,
		CreatedAt:       s.createdAt,
		UpdatedAt:       s.updatedAt,
	}
}

// Busy reports whether a submission is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusSubmitting
}

// LastActive is the time of the last state change.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

func (s *Session) touch() {
	s.updatedAt = s.deps.Now().UTC()
}

// SetField replaces one field value; all other fields keep theirs.
func (s *Session) SetField(name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	next, err := s.form.WithField(name, value)
	if err != nil {
		return err
	}
	s.form = next
	s.touch()
	return nil
}

// AddFiles stages the acceptable candidates and appends them to the file
// list in input order. When any candidate is rejected a single warning
// notification is emitted; the accepted ones are still added.
func (s *Session) AddFiles(ctx context.Context, selected []FileCandidate, createdBy string) ([]UploadedFile, int, error) {
	if s.isClosed() {
		return nil, 0, ErrSessionClosed
	}

	candidates, rejected := IngestFiles(selected)
	staged := make([]UploadedFile, 0, len(candidates))
	for _, c := range candidates {
		meta, err := s.deps.Blobs.Upload(ctx, blobstore.BlobMetadata{
			SessionID:   s.id.String(),
			FileName:    c.Name,
			ContentType: c.ContentType,
			CreatedBy:   createdBy,
		}, c.Content)
		if errors.Is(err, blobstore.ErrFileTooLarge) || errors.Is(err, blobstore.ErrInvalidContentType) || errors.Is(err, blobstore.ErrMissingFileName) {
			rejected++
			continue
		}
		if err != nil {
			s.deleteBlobs(context.WithoutCancel(ctx), staged)
			return nil, 0, fmt.Errorf("stage %q: %w", c.Name, err)
		}
		staged = append(staged, UploadedFile{
			Name:        c.Name,
			Size:        meta.Size,
			ContentType: meta.ContentType,
			BlobID:      meta.ID,
		})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.deleteBlobs(context.WithoutCancel(ctx), staged)
		return nil, 0, ErrSessionClosed
	}
	s.files = append(s.files, staged...)
	s.touch()
	s.mu.Unlock()

	if rejected > 0 {
		s.notify(notification.TemplateFilesRejected, nil)
	}
	return staged, rejected, nil
}

// RemoveFile drops the attachment at index and deletes its staged blob.
func (s *Session) RemoveFile(ctx context.Context, index int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	files, removed, err := RemoveFile(s.files, index)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.files = files
	s.touch()
	s.mu.Unlock()

	s.deleteBlobs(ctx, []UploadedFile{removed})
	return nil
}

// File returns the attachment at index.
func (s *Session) File(index int) (UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.files) {
		return UploadedFile{}, fmt.Errorf("%w: %d (have %d)", ErrFileIndexOutOfRange, index, len(s.files))
	}
	return s.files[index], nil
}

// Submit validates the form and, when valid, inserts one patient record.
// A second call while one is in flight returns ErrSubmitInProgress and does
// nothing. Validation and store failures are reported through the Outcome
// and the notifier, not as errors; the session is idle again on return.
func (s *Session) Submit(ctx context.Context) (*Outcome, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if s.status == StatusSubmitting {
		s.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	form := s.form
	if res := Validate(form); !res.Valid {
		s.mu.Unlock()
		s.notifyValidation(res.Err)
		return &Outcome{Result: ResultInvalid, Reason: res.Err.Error()}, nil
	}
	s.status = StatusSubmitting
	req := BuildInsertRequest(form, s.deps.Now())
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.status = StatusIdle
		s.touch()
		s.mu.Unlock()
	}()

	rec, err := s.insert(ctx, req)
	if err != nil {
		s.deps.Logger.Error().Err(err).Str("session_id", s.id.String()).Msg("patient insert failed")
		s.notify(notification.TemplateRegistrationFailed, nil)
		return &Outcome{Result: ResultFailed, Reason: FailureMessage}, nil
	}

	s.deps.Logger.Info().
		Str("session_id", s.id.String()).
		Str("patient_id", rec.PatientID).
		Msg("patient registered")

	name := rec.FullName
	if name == "" {
		name = req.FullName
	}
	s.notify(notification.TemplatePatientRegistered, map[string]string{
		"patient_name": name,
		"patient_id":   rec.PatientID,
	})
	s.reset(ctx)
	target := SearchPathFor(rec.PatientID)
	s.scheduleRedirect(target)

	return &Outcome{Result: ResultSucceeded, Record: rec, RedirectTo: target}, nil
}

// insert calls the store, turning a nil record or a panic into an error so
// every failure takes the same branch.
func (s *Session) insert(ctx context.Context, req patient.InsertRequest) (rec *patient.Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec, err = nil, fmt.Errorf("patient store panic: %v", r)
		}
	}()
	rec, err = s.deps.Store.InsertPatient(ctx, req)
	if err == nil && rec == nil {
		err = errors.New("patient store returned no record")
	}
	return rec, err
}

func (s *Session) reset(ctx context.Context) {
	s.mu.Lock()
	files := s.files
	s.form = FormState{}
	s.files = nil
	s.mu.Unlock()

	s.deleteBlobs(context.WithoutCancel(ctx), files)
}

func (s *Session) scheduleRedirect(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.pending != nil {
		s.pending.Stop()
	}
	var t Timer
	t = s.deps.Scheduler.AfterFunc(s.deps.RedirectDelay, func() {
		s.mu.Lock()
		if s.closed || s.pending != t {
			s.mu.Unlock()
			return
		}
		s.pending = nil
		s.mu.Unlock()
		s.navigate(path)
	})
	s.pending = t
}

// Cancel abandons the form and sends the client to the search view.
func (s *Session) Cancel() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.stopPending()
	s.touch()
	s.mu.Unlock()

	s.navigate(SearchPath)
	return nil
}

// Close cancels any pending redirect and deletes staged attachments. It is
// safe to call more than once.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.stopPending()
	files := s.files
	s.files = nil
	s.mu.Unlock()

	s.deleteBlobs(ctx, files)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// stopPending must be called with s.mu held.
func (s *Session) stopPending() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

func (s *Session) deleteBlobs(ctx context.Context, files []UploadedFile) {
	if len(files) == 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, f := range files {
		blobID := f.BlobID
		g.Go(func() error {
			if err := s.deps.Blobs.Delete(gctx, blobID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
				return fmt.Errorf("delete blob %s: %w", blobID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.deps.Logger.Warn().Err(err).Str("session_id", s.id.String()).Msg("staged attachment cleanup failed")
	}
}

func (s *Session) notifyValidation(err error) {
	switch {
	case errors.Is(err, ErrInvalidAge):
		s.notify(notification.TemplateInvalidAge, nil)
	default:
		s.notify(notification.TemplateMissingRequiredField, nil)
	}
}

// notify renders a template and delivers it. A failing notifier never
// affects the workflow.
func (s *Session) notify(templateID string, data map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error().Interface("panic", r).Str("session_id", s.id.String()).Msg("notifier panicked")
		}
	}()
	n, err := s.deps.Templates.Render(templateID, data)
	if err != nil {
		s.deps.Logger.Error().Err(err).Msg("render notification")
		return
	}
	s.deps.Notifier.Notify(n)
}

func (s *Session) navigate(path string) {
	defer func() {
		if r := recover(); r != nil {
			s.deps.Logger.Error().Interface("panic", r).Str("session_id", s.id.String()).Msg("navigator panicked")
		}
	}()
	s.deps.Navigator.Navigate(path)
}

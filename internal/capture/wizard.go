package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/franckalain/livestockweight/internal/breeds"
	"github.com/franckalain/livestockweight/internal/logger"
	"github.com/franckalain/livestockweight/internal/metrics"
	"github.com/franckalain/livestockweight/internal/models"
	"github.com/franckalain/livestockweight/internal/transport"
)

var (
	// ErrBusy is returned synchronously while an estimate or save is in flight
	ErrBusy = errors.New("a request is already in progress")
	// ErrInvalidStep is returned for an operation the current step does not allow
	ErrInvalidStep = errors.New("operation not allowed in the current step")
	// ErrClosed is returned once the wizard has been closed
	ErrClosed = errors.New("wizard closed")
	// ErrStale is returned when the wizard was reset while a request was in flight
	ErrStale = errors.New("wizard changed while the request was in flight")
)

// Estimator produces a weight estimate for a capture
type Estimator interface {
	Estimate(ctx context.Context, req models.EstimateRequest) (*models.Observation, error)
}

// Store persists observations and owns cache invalidation
type Store interface {
	Create(ctx context.Context, obs models.Observation) (*models.Observation, error)
	Invalidate(subjectID string)
}

// Wizard drives one capture session: breed -> subject and image -> estimate -> save.
// All methods are safe for concurrent use; at most one estimate is in flight.
type Wizard struct {
	mu    sync.Mutex
	state models.WizardState
	image *Image
	gps   *models.GPS

	// generation changes whenever the capture is replaced or cleared; late
	// results from an older generation are ignored
	generation uint64
	closed     bool

	estimator Estimator
	store     Store
	onChange  func(models.WizardState)
	log       *logger.Logger
}

// New creates a wizard in its initial state. onChange, if set, receives a
// snapshot after every asynchronous state change (preview ready, estimate done).
func New(estimator Estimator, store Store, log *logger.Logger, onChange func(models.WizardState)) *Wizard {
	if log == nil {
		log = logger.Nop()
	}
	return &Wizard{
		state:     initialState(),
		estimator: estimator,
		store:     store,
		onChange:  onChange,
		log:       log.With("component", "capture_wizard"),
	}
}

func initialState() models.WizardState {
	return models.WizardState{Step: models.StepBreed}
}

// Snapshot returns a copy of the current state
func (w *Wizard) Snapshot() models.WizardState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshotLocked()
}

func (w *Wizard) snapshotLocked() models.WizardState {
	s := w.state
	if s.Image != nil {
		info := *s.Image
		s.Image = &info
	}
	if s.Result != nil {
		result := *s.Result
		s.Result = &result
	}
	return s
}

// SelectBreed chooses the breed and moves to subject and capture
func (w *Wizard) SelectBreed(breedID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.state.Step != models.StepBreed {
		return ErrInvalidStep
	}
	b, ok := breeds.Lookup(breedID)
	if !ok {
		return w.failLocked(&ValidationError{Message: "Please select a breed from the list."})
	}

	w.state.SelectedBreed = b.ID
	w.state.SubjectID = ""
	w.state.Result = nil
	w.state.Error = ""
	w.state.Step = models.StepSubjectAndCapture
	return nil
}

// SelectSubject sets (or with "" clears) the measured animal
func (w *Wizard) SelectSubject(subjectID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.state.Step != models.StepSubjectAndCapture {
		return ErrInvalidStep
	}
	w.state.SubjectID = subjectID
	return nil
}

// SetImage validates and accepts a capture. An invalid image leaves the
// previous one in place. The preview is rendered in the background. The
// capture cannot change while an estimate or save is in flight.
func (w *Wizard) SetImage(img Image) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.state.Loading || w.state.Saving {
		return ErrBusy
	}
	contentType, err := validateImage(img)
	if err != nil {
		return w.failLocked(err)
	}

	img.ContentType = contentType
	w.image = &img
	w.gps = extractGPS(img.Data)
	w.generation++
	w.state.Image = &models.ImageInfo{Name: img.Name, ContentType: contentType, Size: len(img.Data)}
	w.state.ImagePreview = ""
	w.state.Result = nil
	w.state.Error = ""

	go w.renderPreview(w.generation, img.Data)
	return nil
}

func (w *Wizard) renderPreview(generation uint64, data []byte) {
	preview, err := GeneratePreview(data)
	if err != nil {
		w.log.Warn("preview generation failed", "error", err)
		return
	}

	w.mu.Lock()
	if w.closed || generation != w.generation {
		w.mu.Unlock()
		return
	}
	w.state.ImagePreview = preview
	snapshot := w.snapshotLocked()
	w.mu.Unlock()

	w.notify(snapshot)
}

// Estimate requests a weight estimate for the current capture. A call made
// while another estimate is in flight returns ErrBusy without a request.
func (w *Wizard) Estimate(ctx context.Context) (*models.Observation, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if w.state.Loading || w.state.Saving {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	if w.image == nil || w.state.SelectedBreed == "" {
		err := w.failLocked(&ValidationError{Message: "Select a breed and capture an image before estimating."})
		w.mu.Unlock()
		return nil, err
	}

	req := models.EstimateRequest{
		Image:       w.image.Data,
		ImageName:   w.image.Name,
		ContentType: w.image.ContentType,
		Breed:       w.state.SelectedBreed,
		SubjectID:   w.state.SubjectID,
		GPS:         w.gps,
	}
	generation := w.generation
	w.state.Loading = true
	w.state.Error = ""
	w.state.Result = nil
	w.mu.Unlock()

	result, err := w.estimator.Estimate(ctx, req)

	w.mu.Lock()
	if w.closed || generation != w.generation {
		w.mu.Unlock()
		return nil, ErrStale
	}
	w.state.Loading = false
	if err != nil {
		class := transport.Classify(err)
		metrics.EstimateOutcomes.WithLabelValues(string(class)).Inc()
		w.log.Warn("estimate failed", "class", class, "error", err)
		w.state.Error = MessageFor(class)
		snapshot := w.snapshotLocked()
		w.mu.Unlock()
		w.notify(snapshot)
		return nil, fmt.Errorf("estimate failed: %w", err)
	}

	if result.SubjectID == "" {
		result.SubjectID = req.SubjectID
	}
	if result.Breed == "" {
		result.Breed = req.Breed
	}
	if result.GPS == nil {
		result.GPS = req.GPS
	}
	metrics.EstimateOutcomes.WithLabelValues("ok").Inc()
	w.state.Result = result
	snapshot := w.snapshotLocked()
	w.mu.Unlock()

	w.notify(snapshot)
	out := *result
	return &out, nil
}

// Save persists the current estimate and returns the saved observation as
// the navigation target. An estimate the backend already persisted is not
// written again. Either way the subject's cached history is invalidated and
// the wizard returns to its initial state.
func (w *Wizard) Save(ctx context.Context) (*models.Observation, error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil, ErrClosed
	}
	if w.state.Loading || w.state.Saving {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	if w.state.Result == nil {
		err := w.failLocked(&ValidationError{Message: "Estimate the weight before saving."})
		w.mu.Unlock()
		return nil, err
	}

	pending := *w.state.Result
	if pending.SubjectID == "" {
		pending.SubjectID = w.state.SubjectID
	}
	generation := w.generation
	w.state.Saving = true
	w.state.Error = ""
	w.mu.Unlock()

	saved, err := w.persist(ctx, pending)

	w.mu.Lock()
	if w.closed || generation != w.generation {
		w.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return saved, nil
	}
	w.state.Saving = false
	if err != nil {
		w.state.Error = MessageFor(transport.Classify(err))
		snapshot := w.snapshotLocked()
		w.mu.Unlock()
		w.notify(snapshot)
		return nil, err
	}

	w.resetLocked()
	snapshot := w.snapshotLocked()
	w.mu.Unlock()

	w.notify(snapshot)
	return saved, nil
}

func (w *Wizard) persist(ctx context.Context, pending models.Observation) (*models.Observation, error) {
	if pending.Persisted() {
		w.store.Invalidate(pending.SubjectID)
		metrics.SavedObservations.WithLabelValues("already_persisted").Inc()
		return &pending, nil
	}

	saved, err := w.store.Create(ctx, pending)
	if err != nil {
		w.log.Warn("save failed", "subject_id", pending.SubjectID, "error", err)
		return nil, fmt.Errorf("save failed: %w", err)
	}
	w.store.Invalidate(pending.SubjectID)
	metrics.SavedObservations.WithLabelValues("created").Inc()
	return saved, nil
}

// Reset returns the wizard to its initial empty state
func (w *Wizard) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
}

// GoBack leaves subject and capture for the breed step, dropping the
// subject, image and result. It is a hard clear, not a history pop.
func (w *Wizard) GoBack() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if w.state.Step != models.StepSubjectAndCapture {
		return ErrInvalidStep
	}
	w.resetLocked()
	return nil
}

// Close detaches the wizard; results that arrive afterwards are discarded
func (w *Wizard) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	w.generation++
}

func (w *Wizard) resetLocked() {
	w.state = initialState()
	w.image = nil
	w.gps = nil
	w.generation++
}

func (w *Wizard) failLocked(err error) error {
	var ve *ValidationError
	if errors.As(err, &ve) {
		w.state.Error = ve.Message
	}
	return err
}

func (w *Wizard) notify(s models.WizardState) {
	if w.onChange != nil {
		w.onChange(s)
	}
}

// MessageFor returns the user-facing message for a transport failure class
func MessageFor(class transport.Class) string {
	switch class {
	case transport.ClassBadRequest:
		return "The request was rejected. Check the breed and image and try again."
	case transport.ClassUnprocessable:
		return "No animal could be detected in the image. Try a clear side-on photo."
	case transport.ClassServer:
		return "The estimation service ran into a problem. Please try again shortly."
	default:
		return "Could not reach the server. Check your connection and try again."
	}
}

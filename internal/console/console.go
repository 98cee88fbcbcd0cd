// Package console is the admin console engine: it routes the selected content
// kind to its collection, keeps the live list for that collection and drives
// the add/edit form, image attachment, moderation and confirmed deletes.
// Front ends (the terminal console in cmd/console) render View and forward
// user actions.
package console

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/internal/content/repository"
	"github.com/higai/site-admin/internal/content/service"
	"github.com/higai/site-admin/internal/media"
	"github.com/higai/site-admin/pkg/logger"
)

var (
	ErrNoForm         = errors.New("no form is open")
	ErrFormOpen       = errors.New("a form is already open")
	ErrUploadInFlight = errors.New("image upload in progress")
	ErrSubmitting     = errors.New("save in progress")
	ErrNoSelection    = errors.New("no content kind selected")
	ErrUnknownField   = errors.New("field not in form")
	ErrNotInList      = errors.New("document not in the current list")
)

// Confirmer asks the operator to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// ImageEncoder converts a local file for inline storage. *media.Encoder
// implements it.
type ImageEncoder interface {
	Check(size int64) error
	MaxBytes() int64
	EncodeFile(ctx context.Context, path string) (media.Result, error)
}

// Notifier receives user-facing alerts (write failures, rejected uploads).
type Notifier interface {
	Alert(msg string)
}

type NotifyFunc func(msg string)

func (f NotifyFunc) Alert(msg string) { f(msg) }

// DeletePrompt is shown before every delete.
const DeletePrompt = "Are you sure you want to delete this item?"

type Mode int

const (
	ModeAdd Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "add"
}

// FormView is the visible state of the upsert form.
type FormView struct {
	Mode       Mode
	TargetID   string
	Fields     map[string]any
	Uploading  bool
	Submitting bool
	Err        error
}

// CanSubmit reports whether Save is enabled.
func (f FormView) CanSubmit() bool { return !f.Uploading && !f.Submitting }

// View is a copy of the console state for rendering.
type View struct {
	Selected  bool
	Kind      content.Kind
	Route     content.Route
	Documents []content.Document
	// Loading is true until the first snapshot of the selected collection.
	Loading bool
	// FeedErr is the failure indication of the live list.
	FeedErr error
	Form    *FormView
}

type form struct {
	mode       Mode
	target     string
	original   map[string]any
	fields     map[string]any
	uploads    int
	submitting bool
	err        error
}

// Console holds no durable state; the list is rebuilt from the live feed on
// every Select.
type Console struct {
	svc      service.Service
	enc      ImageEncoder
	confirm  Confirmer
	notify   Notifier
	onChange func(View)
	selectMu sync.Mutex
	mu       sync.Mutex
	gen      uint64
	selected bool
	kind     content.Kind
	docs     []content.Document
	loading  bool
	feedErr  error
	form     *form
	cancel   context.CancelFunc
	pumpDone chan struct{}
	closed   bool
}

type Option func(*Console)

func WithConfirmer(c Confirmer) Option { return func(s *Console) { s.confirm = c } }

func WithNotifier(n Notifier) Option { return func(s *Console) { s.notify = n } }

// WithOnChange registers a render callback. It runs on the goroutine that
// changed the state, without locks held.
func WithOnChange(fn func(View)) Option { return func(s *Console) { s.onChange = fn } }

func New(svc service.Service, enc ImageEncoder, opts ...Option) *Console {
	c := &Console{svc: svc, enc: enc}
	for _, o := range opts {
		o(c)
	}
	if c.enc == nil {
		c.enc = media.NewEncoder()
	}
	if c.confirm == nil {
		// nothing to ask: never delete
		c.confirm = ConfirmFunc(func(string) bool { return false })
	}
	if c.notify == nil {
		c.notify = NotifyFunc(func(msg string) { logger.Warnf("console: %s", msg) })
	}
	return c
}

// Select switches the console to kind. The previous feed is cancelled and
// fully stopped before the new one is opened, and the list is emptied, so no
// document of the previous collection is shown afterwards.
func (c *Console) Select(kind content.Kind) {
	c.selectMu.Lock()
	defer c.selectMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.stopLocked()
	done := c.pumpDone
	c.gen++
	gen := c.gen
	c.selected = true
	c.kind = kind
	c.docs = nil
	c.loading = true
	c.feedErr = nil
	c.form = nil
	c.mu.Unlock()

	if done != nil {
		<-done
	}

	ctx, cancel := context.WithCancel(context.Background())
	feed := c.svc.Watch(ctx, kind)
	pumpDone := make(chan struct{})

	c.mu.Lock()
	c.cancel = cancel
	c.pumpDone = pumpDone
	c.mu.Unlock()

	logger.Debugf("console: selected %s (%s)", kind, kind.Collection())
	go c.pump(gen, feed, pumpDone)
	c.changed()
}

func (c *Console) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Console) pump(gen uint64, feed <-chan repository.Snapshot, done chan struct{}) {
	defer close(done)
	for snap := range feed {
		c.mu.Lock()
		if c.gen != gen {
			c.mu.Unlock()
			continue
		}
		c.loading = false
		if snap.Err != nil {
			c.feedErr = snap.Err
		} else {
			c.docs = snap.Documents
			c.feedErr = nil
		}
		c.mu.Unlock()
		c.changed()
	}
}

// Close stops the live feed and waits for it to finish.
func (c *Console) Close() {
	c.selectMu.Lock()
	defer c.selectMu.Unlock()
	c.mu.Lock()
	c.closed = true
	c.stopLocked()
	done := c.pumpDone
	c.pumpDone = nil
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Console) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Console) viewLocked() View {
	v := View{
		Selected: c.selected,
		Kind:     c.kind,
		Loading:  c.loading,
		FeedErr:  c.feedErr,
	}
	if !c.selected {
		return v
	}
	v.Route = c.kind.Route()
	v.Documents = append([]content.Document(nil), c.docs...)
	if f := c.form; f != nil {
		v.Form = &FormView{
			Mode:       f.mode,
			TargetID:   f.target,
			Fields:     content.CloneFields(f.fields),
			Uploading:  f.uploads > 0,
			Submitting: f.submitting,
			Err:        f.err,
		}
	}
	return v
}

func (c *Console) changed() {
	if c.onChange == nil {
		return
	}
	c.onChange(c.View())
}

// OpenAdd opens an empty form for the selected kind. Testimonials start as
// pending.
func (c *Console) OpenAdd() error {
	c.mu.Lock()
	if err := c.canOpenLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	fields := map[string]any{}
	if c.kind.Moderated() {
		fields[content.FieldStatus] = content.StatusPending
	}
	c.form = &form{mode: ModeAdd, fields: fields, original: map[string]any{}}
	c.mu.Unlock()
	c.changed()
	return nil
}

// OpenEdit opens the form seeded with a copy of the listed document's fields.
func (c *Console) OpenEdit(id string) error {
	c.mu.Lock()
	if err := c.canOpenLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	d, ok := c.findLocked(id)
	if !ok {
		c.mu.Unlock()
		return ErrNotInList
	}
	c.form = &form{
		mode:     ModeEdit,
		target:   d.ID,
		fields:   content.CloneFields(d.Fields),
		original: content.CloneFields(d.Fields),
	}
	c.mu.Unlock()
	c.changed()
	return nil
}

func (c *Console) canOpenLocked() error {
	if !c.selected {
		return ErrNoSelection
	}
	if c.form != nil {
		return ErrFormOpen
	}
	return nil
}

func (c *Console) findLocked(id string) (content.Document, bool) {
	for _, d := range c.docs {
		if d.ID == id {
			return d, true
		}
	}
	return content.Document{}, false
}

// Cancel closes the form without writing. A pending image conversion is
// discarded when it completes.
func (c *Console) Cancel() error {
	c.mu.Lock()
	if c.form == nil {
		c.mu.Unlock()
		return ErrNoForm
	}
	if c.form.submitting {
		c.mu.Unlock()
		return ErrSubmitting
	}
	c.form = nil
	c.mu.Unlock()
	c.changed()
	return nil
}

// Set changes one form field. Only fields of the kind's schema can be set.
func (c *Console) Set(name string, value any) error {
	c.mu.Lock()
	f := c.form
	if f == nil {
		c.mu.Unlock()
		return ErrNoForm
	}
	if _, ok := c.kind.Field(name); !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	if f.submitting {
		c.mu.Unlock()
		return ErrSubmitting
	}
	f.fields[name] = value
	c.mu.Unlock()
	c.changed()
	return nil
}

// Submit saves the form: Add creates a document with every form value, Edit
// writes only the fields that differ from the document as it was opened.
// On success the form closes; on failure it stays open with the error.
func (c *Console) Submit(ctx context.Context) error {
	c.mu.Lock()
	f := c.form
	switch {
	case f == nil:
		c.mu.Unlock()
		return ErrNoForm
	case f.uploads > 0:
		c.mu.Unlock()
		return ErrUploadInFlight
	case f.submitting:
		c.mu.Unlock()
		return ErrSubmitting
	}
	f.submitting = true
	f.err = nil
	kind := c.kind
	mode, target := f.mode, f.target
	payload := content.CloneFields(f.fields)
	if mode == ModeEdit {
		payload = changedFields(f.original, f.fields)
	}
	c.mu.Unlock()
	c.changed()

	var err error
	switch {
	case mode == ModeAdd:
		_, err = c.svc.Create(ctx, kind, payload)
	case len(payload) > 0:
		err = c.svc.Update(ctx, kind, target, payload)
	}

	c.mu.Lock()
	if c.form == f {
		f.submitting = false
		if err != nil {
			f.err = err
		} else {
			c.form = nil
		}
	}
	c.mu.Unlock()
	if err != nil {
		logger.Errorf("console: save %s failed: %v", kind, err)
		c.notify.Alert("Save failed: " + err.Error())
	}
	c.changed()
	return err
}

func changedFields(before, after map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range after {
		old, ok := before[k]
		if !ok || !reflect.DeepEqual(old, v) {
			out[k] = v
		}
	}
	return out
}

// Toggle flips a listed testimonial between pending and approved. It does not
// interact with an open form.
func (c *Console) Toggle(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	if !c.selected {
		c.mu.Unlock()
		return "", ErrNoSelection
	}
	kind := c.kind
	c.mu.Unlock()
	if !kind.Moderated() {
		return "", service.ErrNotModerated
	}
	next, err := c.svc.ToggleStatus(ctx, kind, id)
	if err != nil {
		logger.Errorf("console: toggle %s/%s failed: %v", kind, id, err)
		c.notify.Alert("Status update failed: " + err.Error())
		return "", err
	}
	return next, nil
}

// Delete asks for confirmation and then deletes the document from the
// selected collection. It reports whether a delete was issued.
func (c *Console) Delete(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	if !c.selected {
		c.mu.Unlock()
		return false, ErrNoSelection
	}
	kind := c.kind
	c.mu.Unlock()

	if !c.confirm.Confirm(DeletePrompt) {
		return false, nil
	}
	if err := c.svc.Delete(ctx, kind, id); err != nil {
		logger.Errorf("console: delete %s/%s failed: %v", kind, id, err)
		return true, err
	}
	return true, nil
}

// Summary renders the list columns of a document: its title and the first
// non-empty detail field, "N/A" when none is set.
func Summary(kind content.Kind, d content.Document) (title, detail string) {
	r := kind.Route()
	title = d.String(r.TitleField)
	if title == "" {
		title = "(untitled)"
	}
	for _, name := range r.DetailFields {
		if s := d.String(name); s != "" {
			return title, s
		}
	}
	return title, "N/A"
}

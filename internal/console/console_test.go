package console

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higai/site-admin/internal/content"
	"github.com/higai/site-admin/internal/content/repository"
	"github.com/higai/site-admin/internal/content/service"
	"github.com/higai/site-admin/internal/media"
)

type alerts struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alerts) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *alerts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.msgs)
}

func newConsole(t *testing.T, store repository.Store, opts ...Option) *Console {
	t.Helper()
	c := New(service.New(store), media.NewEncoder(), opts...)
	t.Cleanup(c.Close)
	return c
}

// waitList blocks until the rendered list satisfies ok.
func waitList(t *testing.T, c *Console, ok func(View) bool) View {
	t.Helper()
	var v View
	require.Eventually(t, func() bool {
		v = c.View()
		return !v.Loading && ok(v)
	}, 2*time.Second, 5*time.Millisecond)
	return v
}

func listLen(n int) func(View) bool {
	return func(v View) bool { return len(v.Documents) == n }
}

func TestBlogScenario(t *testing.T) {
	ctx := context.Background()
	c := newConsole(t, repository.NewMemoryRepo())
	c.Select(content.Blogs)
	waitList(t, c, listLen(0))

	require.NoError(t, c.OpenAdd())
	post := map[string]any{
		"title":       "Launch",
		"description": "We shipped",
		"category":    "Company News",
		"imageUrl":    "https://x/y.png",
		"author":      "A",
	}
	for k, v := range post {
		require.NoError(t, c.Set(k, v))
	}
	require.NoError(t, c.Submit(ctx))
	require.Nil(t, c.View().Form, "form closes after a successful save")

	v := waitList(t, c, listLen(1))
	doc := v.Documents[0]
	assert.Equal(t, post, doc.Fields)
	assert.False(t, doc.SubmittedAt.IsZero())

	require.NoError(t, c.OpenEdit(doc.ID))
	require.NoError(t, c.Set("category", "Industry Insights"))
	require.NoError(t, c.Submit(ctx))

	v = waitList(t, c, func(v View) bool {
		return len(v.Documents) == 1 && v.Documents[0].String("category") == "Industry Insights"
	})
	after := v.Documents[0]
	want := content.CloneFields(post)
	want["category"] = "Industry Insights"
	assert.Equal(t, want, after.Fields)
	assert.True(t, doc.SubmittedAt.Equal(after.SubmittedAt))
}

// recordingStore counts writes and remembers update payloads.
type recordingStore struct {
	repository.Store
	mu      sync.Mutex
	updates []map[string]any
	deletes int
	failOn  string
}

func (r *recordingStore) Update(ctx context.Context, coll, id string, fields map[string]any) error {
	r.mu.Lock()
	r.updates = append(r.updates, content.CloneFields(fields))
	fail := r.failOn == "update"
	r.mu.Unlock()
	if fail {
		return errors.New("permission denied")
	}
	return r.Store.Update(ctx, coll, id, fields)
}

func (r *recordingStore) Create(ctx context.Context, coll string, fields map[string]any) (content.Document, error) {
	r.mu.Lock()
	fail := r.failOn == "create"
	r.mu.Unlock()
	if fail {
		return content.Document{}, errors.New("permission denied")
	}
	return r.Store.Create(ctx, coll, fields)
}

func (r *recordingStore) Delete(ctx context.Context, coll, id string) error {
	r.mu.Lock()
	r.deletes++
	fail := r.failOn == "delete"
	r.mu.Unlock()
	if fail {
		return errors.New("permission denied")
	}
	return r.Store.Delete(ctx, coll, id)
}

func TestEditSendsOnlyChangedFields(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryRepo()
	rec := &recordingStore{Store: mem}
	d, err := mem.Create(ctx, content.CollectionServices, map[string]any{"title": "SEO", "description": "d"})
	require.NoError(t, err)

	c := newConsole(t, rec)
	c.Select(content.Services)
	waitList(t, c, listLen(1))

	require.NoError(t, c.OpenEdit(d.ID))
	require.Equal(t, ModeEdit, c.View().Form.Mode)
	require.NoError(t, c.Set("title", "Search"))
	require.NoError(t, c.Set("description", "d"))
	require.NoError(t, c.Submit(ctx))

	require.Len(t, rec.updates, 1)
	assert.Equal(t, map[string]any{"title": "Search"}, rec.updates[0])
}

func TestSubmitFailureKeepsForm(t *testing.T) {
	ctx := context.Background()
	rec := &recordingStore{Store: repository.NewMemoryRepo(), failOn: "create"}
	a := &alerts{}
	c := newConsole(t, rec, WithNotifier(a))
	c.Select(content.Contact)
	waitList(t, c, listLen(0))

	require.NoError(t, c.OpenAdd())
	require.NoError(t, c.Set("companyName", "Acme"))
	require.Error(t, c.Submit(ctx))

	f := c.View().Form
	require.NotNil(t, f)
	assert.Error(t, f.Err)
	assert.Equal(t, "Acme", f.Fields["companyName"])
	assert.True(t, f.CanSubmit())
	assert.Equal(t, 1, a.count())

	rec.mu.Lock()
	rec.failOn = ""
	rec.mu.Unlock()
	require.NoError(t, c.Submit(ctx))
	require.Nil(t, c.View().Form)
}

func TestAddTestimonialDefaultsPending(t *testing.T) {
	ctx := context.Background()
	c := newConsole(t, repository.NewMemoryRepo())
	c.Select(content.Testimonials)
	waitList(t, c, listLen(0))

	require.NoError(t, c.OpenAdd())
	require.Equal(t, content.StatusPending, c.View().Form.Fields["status"])
	require.NoError(t, c.Set("name", "Kim"))
	require.NoError(t, c.Submit(ctx))
	v := waitList(t, c, listLen(1))
	require.Equal(t, content.StatusPending, v.Documents[0].Status())
}

func TestSetRejectsFieldsOutsideSchema(t *testing.T) {
	c := newConsole(t, repository.NewMemoryRepo())
	require.ErrorIs(t, c.OpenAdd(), ErrNoSelection)
	c.Select(content.Careers)
	require.ErrorIs(t, c.Set("name", "x"), ErrNoForm)
	require.NoError(t, c.OpenAdd())
	require.ErrorIs(t, c.OpenAdd(), ErrFormOpen)
	require.ErrorIs(t, c.Set("title", "x"), ErrUnknownField)
	require.NoError(t, c.Cancel())
	require.ErrorIs(t, c.Cancel(), ErrNoForm)
}

func TestToggleTwiceRestoresStatus(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryRepo()
	d, err := mem.Create(ctx, content.CollectionTestimonials, map[string]any{"name": "Kim", "status": "pending"})
	require.NoError(t, err)

	c := newConsole(t, mem)
	c.Select(content.Testimonials)
	waitList(t, c, listLen(1))

	next, err := c.Toggle(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, content.StatusApproved, next)
	waitList(t, c, func(v View) bool { return v.Documents[0].Status() == content.StatusApproved })

	next, err = c.Toggle(ctx, d.ID)
	require.NoError(t, err)
	require.Equal(t, content.StatusPending, next)
	waitList(t, c, func(v View) bool { return v.Documents[0].Status() == content.StatusPending })

	c.Select(content.Blogs)
	_, err = c.Toggle(ctx, d.ID)
	require.ErrorIs(t, err, service.ErrNotModerated)
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryRepo()
	rec := &recordingStore{Store: mem}
	d, err := mem.Create(ctx, content.CollectionWorks, map[string]any{"title": "Retail"})
	require.NoError(t, err)

	answer := false
	var prompts []string
	c := newConsole(t, rec, WithConfirmer(ConfirmFunc(func(p string) bool {
		prompts = append(prompts, p)
		return answer
	})))
	c.Select(content.Works)
	waitList(t, c, listLen(1))

	issued, err := c.Delete(ctx, d.ID)
	require.NoError(t, err)
	require.False(t, issued)
	require.Zero(t, rec.deletes)
	require.Equal(t, []string{DeletePrompt}, prompts)
	require.Len(t, c.View().Documents, 1)

	answer = true
	issued, err = c.Delete(ctx, d.ID)
	require.NoError(t, err)
	require.True(t, issued)
	waitList(t, c, listLen(0))
}

func TestDeleteFailureLeavesDocument(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryRepo()
	d, err := mem.Create(ctx, content.CollectionWorks, map[string]any{"title": "Retail"})
	require.NoError(t, err)
	rec := &recordingStore{Store: mem, failOn: "delete"}

	c := newConsole(t, rec, WithConfirmer(ConfirmFunc(func(string) bool { return true })))
	c.Select(content.Works)
	waitList(t, c, listLen(1))

	issued, err := c.Delete(ctx, d.ID)
	require.True(t, issued)
	require.Error(t, err)
	require.Len(t, c.View().Documents, 1)
}

func TestSwitchNeverShowsPreviousCollection(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryRepo()
	for i := 0; i < 3; i++ {
		_, err := mem.Create(ctx, content.CollectionBlogs, map[string]any{"title": "post"})
		require.NoError(t, err)
	}
	_, err := mem.Create(ctx, content.CollectionCareers, map[string]any{"name": "Sam"})
	require.NoError(t, err)

	c := newConsole(t, mem)
	c.Select(content.Blogs)
	waitList(t, c, listLen(3))

	// keep writing to blogs while switching so stale snapshots are in flight
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_, _ = mem.Create(ctx, content.CollectionBlogs, map[string]any{"title": "more"})
		}
	}()
	c.Select(content.Careers)
	for i := 0; i < 20; i++ {
		for _, d := range c.View().Documents {
			require.Empty(t, d.String("title"), "blog document leaked into careers view")
		}
		time.Sleep(time.Millisecond)
	}
	close(stop)
	wg.Wait()

	v := waitList(t, c, listLen(1))
	require.Equal(t, "Sam", v.Documents[0].String("name"))
	require.Equal(t, content.Careers, v.Kind)
}

type brokenFeed struct{ repository.Store }

func (brokenFeed) Subscribe(_ context.Context, coll string) <-chan repository.Snapshot {
	ch := make(chan repository.Snapshot, 1)
	ch <- repository.Snapshot{Collection: coll, Err: errors.New("permission denied")}
	close(ch)
	return ch
}

func TestFeedFailureIsShown(t *testing.T) {
	c := newConsole(t, brokenFeed{repository.NewMemoryRepo()})
	c.Select(content.Blogs)
	require.Eventually(t, func() bool { return c.View().FeedErr != nil }, 2*time.Second, 5*time.Millisecond)
	require.False(t, c.View().Loading)
}

// gatedEncoder blocks EncodeFile until release is closed.
type gatedEncoder struct {
	*media.Encoder
	release chan struct{}
	fail    bool
}

func (g *gatedEncoder) EncodeFile(ctx context.Context, path string) (media.Result, error) {
	<-g.release
	if g.fail {
		return media.Result{}, errors.New("corrupt file")
	}
	return g.Encoder.EncodeFile(ctx, path)
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestSubmitDisabledWhileUploading(t *testing.T) {
	ctx := context.Background()
	enc := &gatedEncoder{Encoder: media.NewEncoder(), release: make(chan struct{})}
	c := New(service.NewMemoryService(), enc)
	t.Cleanup(c.Close)
	c.Select(content.Blogs)
	waitList(t, c, listLen(0))
	require.NoError(t, c.OpenAdd())

	done, err := c.AttachImage(ctx, "imageUrl", writeFile(t, "a.png", []byte("\x89PNG\r\n\x1a\nrest")))
	require.NoError(t, err)
	require.True(t, c.View().Form.Uploading)
	require.False(t, c.View().Form.CanSubmit())
	require.ErrorIs(t, c.Submit(ctx), ErrUploadInFlight)

	close(enc.release)
	require.NoError(t, <-done)
	f := c.View().Form
	require.False(t, f.Uploading)
	require.True(t, strings.HasPrefix(f.Fields["imageUrl"].(string), "data:image/png;base64,"))
	require.NoError(t, c.Submit(ctx))
}

func TestOversizedImageRejectedImmediately(t *testing.T) {
	a := &alerts{}
	c := New(service.NewMemoryService(), media.NewEncoder(media.WithMaxBytes(8)), WithNotifier(a))
	t.Cleanup(c.Close)
	c.Select(content.Works)
	waitList(t, c, listLen(0))
	require.NoError(t, c.OpenAdd())
	require.NoError(t, c.Set("imageUrl", "https://x/old.png"))

	_, err := c.AttachImage(context.Background(), "imageUrl", writeFile(t, "big.png", make([]byte, 9)))
	require.ErrorIs(t, err, media.ErrTooLarge)
	f := c.View().Form
	assert.Equal(t, "https://x/old.png", f.Fields["imageUrl"])
	assert.False(t, f.Uploading)
	assert.Equal(t, 1, a.count())
}

func TestConversionFailureKeepsValue(t *testing.T) {
	a := &alerts{}
	enc := &gatedEncoder{Encoder: media.NewEncoder(), release: make(chan struct{}), fail: true}
	c := New(service.NewMemoryService(), enc, WithNotifier(a))
	t.Cleanup(c.Close)
	c.Select(content.Blogs)
	waitList(t, c, listLen(0))
	require.NoError(t, c.OpenAdd())
	require.NoError(t, c.Set("imageUrl", "https://x/old.png"))

	done, err := c.AttachImage(context.Background(), "imageUrl", writeFile(t, "a.png", []byte("png")))
	require.NoError(t, err)
	close(enc.release)
	require.Error(t, <-done)
	f := c.View().Form
	assert.Equal(t, "https://x/old.png", f.Fields["imageUrl"])
	assert.True(t, f.CanSubmit())
	assert.Equal(t, 1, a.count())
}

func TestAttachImageOnlyForImageFields(t *testing.T) {
	c := newConsole(t, repository.NewMemoryRepo())
	c.Select(content.Careers)
	require.NoError(t, c.OpenAdd())
	_, err := c.AttachImage(context.Background(), "name", "/dev/null")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestSummary(t *testing.T) {
	d := content.Document{Fields: map[string]any{"name": "Kim", "status": "approved", "rating": 5, "companyName": "Acme"}}
	title, detail := Summary(content.Testimonials, d)
	assert.Equal(t, "Kim", title)
	assert.Equal(t, "Acme", detail)

	post := content.Document{Fields: map[string]any{"title": "Launch", "author": "A"}}
	_, detail = Summary(content.Blogs, post)
	assert.Equal(t, "A", detail, "author is used when category is empty")
	post.Fields["category"] = "Company News"
	_, detail = Summary(content.Blogs, post)
	assert.Equal(t, "Company News", detail)

	title, detail = Summary(content.Blogs, content.Document{})
	assert.Equal(t, "(untitled)", title)
	assert.Equal(t, "N/A", detail)
}

func TestCloseStopsFeed(t *testing.T) {
	mem := repository.NewMemoryRepo()
	c := New(service.New(mem), nil)
	c.Select(content.Blogs)
	waitList(t, c, listLen(0))
	c.Close()
	c.Select(content.Services)
	require.Equal(t, content.Blogs, c.View().Kind)
}

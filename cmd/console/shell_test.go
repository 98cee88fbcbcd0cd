package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/higai/site-admin/internal/console"
	"github.com/higai/site-admin/internal/content/service"
	"github.com/higai/site-admin/internal/media"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestShell(t *testing.T, input string) (*shell, *syncBuffer) {
	t.Helper()
	color.NoColor = true
	out := &syncBuffer{}
	sh := newShell(context.Background(), service.NewMemoryService(), media.NewEncoder(), strings.NewReader(input), out)
	t.Cleanup(sh.close)
	return sh, out
}

func waitDocs(t *testing.T, sh *shell, n int) console.View {
	t.Helper()
	var v console.View
	require.Eventually(t, func() bool {
		v = sh.con.View()
		return !v.Loading && len(v.Documents) == n
	}, 2*time.Second, 5*time.Millisecond)
	return v
}

func TestShell_AddListDelete(t *testing.T) {
	sh, out := newTestShell(t, "y\n")

	require.NoError(t, sh.exec("use blogs"))
	waitDocs(t, sh, 0)
	require.NoError(t, sh.exec("add"))
	require.NoError(t, sh.exec("set title Launch Day"))
	require.NoError(t, sh.exec("set category Company News"))
	require.NoError(t, sh.exec("save"))

	v := waitDocs(t, sh, 1)
	require.Equal(t, "Launch Day", v.Documents[0].String("title"))
	require.NoError(t, sh.exec("list"))
	require.Contains(t, out.String(), "Launch Day")
	require.Contains(t, out.String(), "Company News")

	id := v.Documents[0].ID
	require.NoError(t, sh.exec("delete "+id))
	waitDocs(t, sh, 0)
	require.Contains(t, out.String(), "deleted "+id)
}

func TestShell_DeclinedDeleteKeepsDocument(t *testing.T) {
	sh, out := newTestShell(t, "n\n")
	require.NoError(t, sh.exec("use ourwork"))
	require.NoError(t, sh.exec("add"))
	require.NoError(t, sh.exec("set title Retail"))
	require.NoError(t, sh.exec("save"))
	v := waitDocs(t, sh, 1)

	require.NoError(t, sh.exec("delete "+v.Documents[0].ID))
	require.Contains(t, out.String(), "kept")
	require.Len(t, sh.con.View().Documents, 1)
}

func TestShell_ToggleTestimonial(t *testing.T) {
	sh, out := newTestShell(t, "")
	require.NoError(t, sh.exec("use testimonials"))
	require.NoError(t, sh.exec("add"))
	require.NoError(t, sh.exec("set name Kim"))
	require.Error(t, sh.exec("set rating five"))
	require.NoError(t, sh.exec("set rating 5"))
	require.NoError(t, sh.exec("save"))
	v := waitDocs(t, sh, 1)
	require.Equal(t, "pending", v.Documents[0].Status())

	require.NoError(t, sh.exec("toggle "+v.Documents[0].ID))
	require.Contains(t, out.String(), "is now approved")
	require.Eventually(t, func() bool {
		docs := sh.con.View().Documents
		return len(docs) == 1 && docs[0].Status() == "approved"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestShell_Errors(t *testing.T) {
	sh, out := newTestShell(t, "")
	require.Error(t, sh.exec("list"))
	require.Error(t, sh.exec("use feedback"))
	require.Error(t, sh.exec("frobnicate"))
	require.Error(t, sh.exec("save"))
	require.Contains(t, out.String(), "Error:")
}

func TestShell_LoopQuits(t *testing.T) {
	sh, out := newTestShell(t, "kinds\nquit\nkinds\n")
	require.NoError(t, sh.loop())
	require.Equal(t, 1, strings.Count(out.String(), "careerApplications"))
}

func TestClipKeepsRunesWhole(t *testing.T) {
	require.Equal(t, "short", clip("short"))

	long := strings.Repeat("é", 100)
	got := clip(long)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, 60, utf8.RuneCountInString(got))
	require.True(t, strings.HasSuffix(got, "..."))
}

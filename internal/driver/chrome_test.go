package driver

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsercron/internal/core"
)

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, 1920, opts.WindowWidth)
	assert.Equal(t, 1080, opts.WindowHeight)
	assert.Equal(t, 60*time.Second, opts.NavTimeout)
	assert.Equal(t, 10*time.Second, opts.ActionTimeout)

	custom := Options{WindowWidth: 800, WindowHeight: 600, NavTimeout: time.Second, ActionTimeout: 2 * time.Second}.withDefaults()
	assert.Equal(t, 800, custom.WindowWidth)
	assert.Equal(t, time.Second, custom.NavTimeout)
}

func TestAllocatorOptions(t *testing.T) {
	base := len(Options{Headless: true}.withDefaults().allocatorOptions())
	withPath := len(Options{Headless: true, ExecPath: "/usr/bin/chromium"}.withDefaults().allocatorOptions())
	headful := len(Options{}.withDefaults().allocatorOptions())

	assert.Equal(t, base+1, withPath)
	assert.Equal(t, base+1, headful)
}

func TestScripts(t *testing.T) {
	assert.Equal(t, "window.scrollTo(0, 480)", scrollScript(480))
	assert.Contains(t, selectScript(`select[name="lang"]`, `it's "go"`), `("select[name=\"lang\"]", "it's \"go\"")`)
	assert.Contains(t, clearScript("#q"), `("#q")`)
}

func TestCombineContext(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	defer cancelParent()
	secondary, cancelSecondary := context.WithCancel(context.Background())

	ctx, cancel := combineContext(parent, secondary)
	defer cancel()
	assert.NoError(t, ctx.Err())

	cancelSecondary()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("combined context not cancelled by secondary")
	}
	assert.NoError(t, parent.Err())
}

func TestTypingTimeout(t *testing.T) {
	assert.Equal(t, 10*time.Second+250*time.Millisecond, typingTimeout(10*time.Second, "hello"))
	assert.Equal(t, 3*time.Minute, typingTimeout(10*time.Second, string(make([]byte, 10000))))
}

func TestAsElementRejectsForeignElements(t *testing.T) {
	_, err := asElement(nil)
	assert.Error(t, err)
}

const testPage = `<!doctype html>
<html><body style="height:3000px">
<input id="q" value="prefilled">
<select id="lang"><option value="go">Go</option><option value="rust">Rust</option></select>
<button id="btn" onclick="document.body.dataset.clicked='yes'">Go</button>
</body></html>`

// Runs against a real Chrome only when BROWSERCRON_CHROME_TESTS=1.
func TestChromeSession(t *testing.T) {
	if os.Getenv("BROWSERCRON_CHROME_TESTS") != "1" {
		t.Skip("set BROWSERCRON_CHROME_TESTS=1 to run browser tests")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, testPage)
	}))
	defer srv.Close()

	d := New(Options{Headless: true, ActionTimeout: 2 * time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx := context.Background()
	h, err := d.Open(ctx)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.Navigate(ctx, srv.URL))

	input, err := h.Find(ctx, "#q")
	require.NoError(t, err)
	require.NoError(t, h.Type(ctx, input, "browsercron"))
	var value string
	require.NoError(t, h.ExecuteScript(ctx, `document.querySelector('#q').value`, &value))
	assert.Equal(t, "browsercron", value)

	btn, err := h.Find(ctx, "#btn")
	require.NoError(t, err)
	require.NoError(t, h.Click(ctx, btn))
	var clicked string
	require.NoError(t, h.ExecuteScript(ctx, `document.body.dataset.clicked || ''`, &clicked))
	assert.Equal(t, "yes", clicked)

	sel, err := h.Find(ctx, "#lang")
	require.NoError(t, err)
	require.NoError(t, h.SelectOption(ctx, sel, "rust"))
	assert.ErrorIs(t, h.SelectOption(ctx, sel, "cobol"), core.ErrOptionNotFound)

	require.NoError(t, h.ScrollTo(ctx, 500))

	_, err = h.Find(ctx, "#missing")
	assert.ErrorIs(t, err, core.ErrElementNotFound)

	png, err := h.CaptureImage(ctx, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, png)
	png, err = h.CaptureImage(ctx, btn)
	require.NoError(t, err)
	assert.NotEmpty(t, png)

	assert.NoError(t, h.Close())
	assert.NoError(t, h.Close())
}

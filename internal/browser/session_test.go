package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/widgetcheck/internal/common"
)

const fixturePage = `<!doctype html>
<html>
<head><title>Settings - Fixture</title></head>
<body>
	<h1>Fixture</h1>
	<div id="group">
		<span>Mode</span>
		<button id="draft" onclick="document.getElementById('status').textContent = 'Draft picked'">Draft</button>
		<button id="off" onclick="document.getElementById('status').textContent = 'Off picked'">Off</button>
	</div>
	<p id="status"></p>
	<label class="switch"><input type="checkbox" id="toggle"> Toggle me</label>
	<input id="host" type="text" value="https://old.example.com">
	<p id="echo"></p>
	<p id="late" style="display:none">Saved</p>
	<script>
		document.getElementById("host").addEventListener("input", (e) => {
			document.getElementById("echo").textContent = "echo:" + e.target.value;
		});
		setTimeout(() => { document.getElementById("late").style.display = "block"; }, 300);
	</script>
</body>
</html>`

// newFixtureSession serves html and opens a browser on it, skipping when no Chrome is installed
func newFixtureSession(t *testing.T, html string) *Session {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in short mode")
	}
	chrome := FindChrome("")
	if chrome == "" {
		t.Skip("no Chrome or Chromium binary found")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html)
	}))
	t.Cleanup(srv.Close)

	config := common.NewDefaultConfig()
	config.Target.BaseURL = srv.URL
	config.Browser.ExecPath = chrome
	config.Browser.TestTimeout = "60s"
	config.Waits.ElementTimeout = "3s"

	s, err := NewSession(context.Background(), config, t.TempDir(), common.GetLogger())
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Navigate(srv.URL))
	return s
}

func TestSessionLocators(t *testing.T) {
	s := newFixtureSession(t, fixturePage)

	require.NoError(t, s.ExpectTitle(regexp.MustCompile(`Settings`), 2*time.Second))

	t.Run("click scoped exact text", func(t *testing.T) {
		group := s.Text("Mode").AncestorWithText("Off")
		require.NoError(t, group.ExactText("Draft").Click())
		text, err := s.ID("status").InnerText()
		require.NoError(t, err)
		assert.Equal(t, "Draft picked", text)

		require.NoError(t, group.ExactText("Off").Click())
		text, err = s.ID("status").InnerText()
		require.NoError(t, err)
		assert.Equal(t, "Off picked", text)
	})

	t.Run("checked state flips on click", func(t *testing.T) {
		wrapper := s.CSS("label.switch")
		before, err := wrapper.CSS(`input[type='checkbox']`).IsChecked()
		require.NoError(t, err)
		require.NoError(t, wrapper.Click())
		after, err := wrapper.IsChecked()
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})

	t.Run("fill fires input events", func(t *testing.T) {
		host := s.ID("host")
		require.NoError(t, host.Clear())
		require.NoError(t, host.Fill("https://example.com"))
		text, err := s.ID("echo").InnerText()
		require.NoError(t, err)
		assert.Equal(t, "echo:https://example.com", text)
	})

	t.Run("wait for delayed text", func(t *testing.T) {
		require.NoError(t, s.WaitForText("Saved", 3*time.Second))
		visible, err := s.Text("Saved").IsVisible()
		require.NoError(t, err)
		assert.True(t, visible)
	})

	t.Run("missing element times out", func(t *testing.T) {
		err := s.Text("No such copy anywhere").WaitVisibleWithin(300 * time.Millisecond)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `text="No such copy anywhere" not visible`)
	})

	require.NoError(t, s.Screenshot("fixture done"))
	assert.Empty(t, s.ConsoleErrors())
}

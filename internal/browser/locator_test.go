package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLocatorChainDoesNotShareSteps(t *testing.T) {
	s := &Session{}
	base := s.CSS(`[data-testid='switch-section-wrapper']`)
	input := base.CSS(`input[type='checkbox']`)
	label := base.Text("Chat Icon Visibility")

	assert.Len(t, base.steps, 1)
	assert.Len(t, input.steps, 2)
	assert.Len(t, label.steps, 2)
	assert.Equal(t, `css=[data-testid='switch-section-wrapper'] >> css=input[type='checkbox']`, input.String())
	assert.Equal(t, `css=[data-testid='switch-section-wrapper'] >> text="Chat Icon Visibility"`, label.String())
}

func TestLocatorDescriptions(t *testing.T) {
	s := &Session{}

	tests := []struct {
		name string
		loc  *Locator
		want string
	}{
		{"exact", s.ExactText("Off"), `text="Off" exact`},
		{"id", s.ID("widgetHost"), `#widgetHost`},
		{
			"scoped",
			s.Text("Respond to email inquiries with chat").AncestorWithText("Off").ExactText("Draft"),
			`text="Respond to email inquiries with chat" >> ancestor has text="Off" >> text="Draft" exact`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.loc.String())
		})
	}
}

func TestExpressionEncodesArguments(t *testing.T) {
	s := &Session{}
	expr := s.Text(`Say "hi"   </script>`).Expression()

	// Whitespace is normalized, quotes and angle brackets are JSON escaped
	assert.Contains(t, expr, `"Say \"hi\" \u003c/script\u003e".toLowerCase()`)
	assert.True(t, strings.HasPrefix(expr, "(() => {"))
	assert.True(t, strings.HasSuffix(expr, "})()"))
	assert.Contains(t, expr, "const __steps = [")
}

func TestResolveExpressionStampsRef(t *testing.T) {
	s := &Session{}
	loc := s.ID("widgetHost")

	attached := loc.resolveExpression("ref_1", false)
	assert.Contains(t, attached, `__el.setAttribute("data-e2e-ref", "ref_1")`)
	assert.Contains(t, attached, `if (!__el) return "";`)

	visible := loc.resolveExpression("ref_1", true)
	assert.Contains(t, visible, `if (!__el || !__visible(__el)) return "";`)

	assert.Equal(t, `[data-e2e-ref="ref_1"]`, refSelector("ref_1"))
}

func TestVisibilityCheckIsShared(t *testing.T) {
	s := &Session{}
	loc := s.Text("Saved")

	for name, expr := range map[string]string{
		"resolve":    loc.resolveExpression("ref_1", true),
		"is visible": loc.visibleExpression(),
	} {
		assert.Equal(t, 1, strings.Count(expr, "const __visible = "), name)
		assert.Contains(t, expr, "__visible(__el)", name)
		assert.True(t, strings.HasSuffix(expr, "})()"), name)
	}
	assert.Equal(t, 1, strings.Count(prelude, "getBoundingClientRect"))
}

func TestCallEncodesArguments(t *testing.T) {
	got := call(`(a, b) => a + b`, `[data-e2e-ref="x"]`, "https://example.com")
	assert.Equal(t, `((a, b) => a + b)("[data-e2e-ref=\"x\"]", "https://example.com")`, got)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Chat widget host URL", normalizeText("  Chat\n\twidget   host URL "))
	assert.Equal(t, "", normalizeText(" \n "))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "toggle_visibility_failed", SanitizeName("Toggle Visibility: failed!"))
	assert.Equal(t, "testchatsettings_hosturl", SanitizeName("TestChatSettings/HostURL"))
}

package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/ternarybob/widgetcheck/internal/common"
)

// Locator is a lazily resolved element query. Each step runs inside the page
// against the element found by the previous step, starting at the document.
// Actions re-resolve on every call and auto-wait up to the element timeout.
type Locator struct {
	session *Session
	steps   []locatorStep
}

type locatorStep struct {
	desc string
	fn   string
}

// Text finds the deepest element whose normalized text contains text (case-insensitive)
func (s *Session) Text(text string) *Locator {
	return (&Locator{session: s}).Text(text)
}

// ExactText finds the deepest element whose normalized text equals text
func (s *Session) ExactText(text string) *Locator {
	return (&Locator{session: s}).ExactText(text)
}

// CSS finds the first element matching selector
func (s *Session) CSS(selector string) *Locator {
	return (&Locator{session: s}).CSS(selector)
}

// ID finds the element with the given id attribute
func (s *Session) ID(id string) *Locator {
	return (&Locator{session: s}).ID(id)
}

func (l *Locator) with(desc, fn string) *Locator {
	steps := make([]locatorStep, len(l.steps), len(l.steps)+1)
	copy(steps, l.steps)
	return &Locator{
		session: l.session,
		steps:   append(steps, locatorStep{desc: desc, fn: fn}),
	}
}

func (l *Locator) Text(text string) *Locator {
	return l.with(fmt.Sprintf("text=%q", text), textStep(text))
}

func (l *Locator) ExactText(text string) *Locator {
	return l.with(fmt.Sprintf("text=%q exact", text), exactTextStep(text))
}

func (l *Locator) CSS(selector string) *Locator {
	return l.with(fmt.Sprintf("css=%s", selector), cssStep(selector))
}

func (l *Locator) ID(id string) *Locator {
	return l.with(fmt.Sprintf("#%s", id), idStep(id))
}

// AncestorWithText moves to the nearest ancestor that contains an element
// whose text is exactly text. Used to scope into a control group from its label.
func (l *Locator) AncestorWithText(text string) *Locator {
	return l.with(fmt.Sprintf("ancestor has text=%q", text), ancestorWithTextStep(text))
}

// String describes the locator chain for error messages
func (l *Locator) String() string {
	parts := make([]string, len(l.steps))
	for i, st := range l.steps {
		parts[i] = st.desc
	}
	return strings.Join(parts, " >> ")
}

// Expression renders a JavaScript expression that evaluates to the element or null
func (l *Locator) Expression() string {
	return l.script("return __find();")
}

// script renders an IIFE with the prelude helpers and __find, which walks the
// chain, in scope of body
func (l *Locator) script(body string) string {
	var b strings.Builder
	b.WriteString("(() => {")
	b.WriteString(prelude)
	b.WriteString("const __steps = [")
	for i, st := range l.steps {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(st.fn)
	}
	b.WriteString("];\n")
	b.WriteString("const __find = () => {\n")
	b.WriteString("let __node = document;\n")
	b.WriteString("for (const __step of __steps) { __node = __step(__node); if (!__node) return null; }\n")
	b.WriteString("return __node;\n")
	b.WriteString("};\n")
	b.WriteString(body)
	b.WriteString("\n})()")
	return b.String()
}

// resolveExpression stamps ref on the element and returns it, or "" while not
// found (or not visible when visible is set) so a poll keeps waiting.
func (l *Locator) resolveExpression(ref string, visible bool) string {
	check := "!__el"
	if visible {
		check = "!__el || !__visible(__el)"
	}
	return l.script(fmt.Sprintf(`const __el = __find();
if (%s) return "";
__el.setAttribute(%s, %s);
return %s;`, check, jsString(RefAttribute), jsString(ref), jsString(ref)))
}

func (l *Locator) visibleExpression() string {
	return l.script("const __el = __find();\nreturn !!__el && __visible(__el);")
}

func refSelector(ref string) string {
	return fmt.Sprintf(`[%s=%q]`, RefAttribute, ref)
}

func (l *Locator) resolve(timeout time.Duration, visible bool) (string, error) {
	ref := common.NewRefID()
	ctx, cancel := context.WithTimeout(l.session.Ctx, timeout+time.Second)
	defer cancel()

	var got string
	err := chromedp.Run(ctx, chromedp.Poll(l.resolveExpression(ref, visible), &got,
		chromedp.WithPollingInterval(l.session.config.PollInterval()),
		chromedp.WithPollingTimeout(timeout),
	))
	if err != nil {
		state := "attached"
		if visible {
			state = "visible"
		}
		return "", fmt.Errorf("%s not %s within %v: %w", l, state, timeout, err)
	}
	return refSelector(got), nil
}

func (l *Locator) timeout() time.Duration {
	return l.session.config.ElementTimeout()
}

// WaitVisible waits up to the element timeout for a visible match
func (l *Locator) WaitVisible() error {
	return l.WaitVisibleWithin(l.timeout())
}

// WaitVisibleWithin waits up to timeout for a visible match
func (l *Locator) WaitVisibleWithin(timeout time.Duration) error {
	_, err := l.resolve(timeout, true)
	return err
}

// IsVisible reports whether a visible match exists right now
func (l *Locator) IsVisible() (bool, error) {
	var visible bool
	expr := l.visibleExpression()
	if err := chromedp.Run(l.session.Ctx, chromedp.Evaluate(expr, &visible)); err != nil {
		return false, fmt.Errorf("failed to evaluate %s: %w", l, err)
	}
	return visible, nil
}

// Click waits for a visible match and clicks its center with a real mouse event
func (l *Locator) Click() error {
	sel, err := l.resolve(l.timeout(), true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(l.session.Ctx, l.timeout())
	defer cancel()
	if err := chromedp.Run(ctx,
		chromedp.ScrollIntoView(sel, chromedp.ByQuery),
		chromedp.Click(sel, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to click %s: %w", l, err)
	}
	l.session.logger.Debug().Str("locator", l.String()).Msg("Clicked")
	return nil
}

// Fill replaces the value of an input or textarea
func (l *Locator) Fill(value string) error {
	sel, err := l.resolve(l.timeout(), true)
	if err != nil {
		return err
	}
	var result string
	if err := chromedp.Run(l.session.Ctx, chromedp.Evaluate(call(fillFunction, sel, value), &result)); err != nil {
		return fmt.Errorf("failed to fill %s: %w", l, err)
	}
	if result != value {
		return fmt.Errorf("fill %s: value is %q after setting %q", l, result, value)
	}
	l.session.logger.Debug().Str("locator", l.String()).Str("value", value).Msg("Filled")
	return nil
}

// Clear empties an input or textarea
func (l *Locator) Clear() error {
	return l.Fill("")
}

// IsChecked reports the checked state of a checkbox, radio, an element
// wrapping one, or an ARIA switch
func (l *Locator) IsChecked() (bool, error) {
	sel, err := l.resolve(l.timeout(), false)
	if err != nil {
		return false, err
	}
	var checked bool
	if err := chromedp.Run(l.session.Ctx, chromedp.Evaluate(call(checkedFunction, sel), &checked)); err != nil {
		return false, fmt.Errorf("failed to read checked state of %s: %w", l, err)
	}
	return checked, nil
}

// InnerText returns the normalized text content of the match
func (l *Locator) InnerText() (string, error) {
	sel, err := l.resolve(l.timeout(), false)
	if err != nil {
		return "", err
	}
	var text string
	if err := chromedp.Run(l.session.Ctx, chromedp.Evaluate(call(textFunction, sel), &text)); err != nil {
		return "", fmt.Errorf("failed to read text of %s: %w", l, err)
	}
	return text, nil
}

// WaitForText waits for any visible element containing text, like a
// Playwright text= selector
func (s *Session) WaitForText(text string, timeout time.Duration) error {
	return s.Text(text).WaitVisibleWithin(timeout)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

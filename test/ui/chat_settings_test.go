package ui

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ternarybob/widgetcheck/internal/pages"
)

func TestChatSettingsDisplaysAllSections(t *testing.T) {
	utc := NewUITestContext(t)
	defer utc.Cleanup()

	title := regexp.MustCompile(utc.Config.Target.TitlePattern)
	require.NoError(t, utc.Session.ExpectTitle(title, utc.Config.ElementTimeout()))

	require.Empty(t, utc.Page.MissingCopy(), "expected copy missing from the page")
	utc.Screenshot("all sections")

	sections, err := utc.Page.Sections()
	require.NoError(t, err)
	for _, s := range sections {
		utc.Log("Section: %s | %s", s.Heading, s.Description)
	}
}

func TestChatSettingsToggleVisibility(t *testing.T) {
	utc := NewUITestContext(t)
	defer utc.Cleanup()

	before, after, err := utc.Page.ToggleVisibility()
	require.NoError(t, err)
	utc.Log("Chat visibility switched from %v to %v", before, after)
	require.NotEqual(t, before, after, "visibility switch state did not change")

	require.NoError(t, utc.Page.WaitSaved())

	call, err := utc.Verifier.VerifyMailboxUpdateCall(utc.Session.Ctx, utc.Config.SavedTimeout())
	require.NoError(t, err)
	utc.Log("Settings persisted by %s", call)
	utc.Screenshot("visibility toggled")
}

func TestChatSettingsVisibilityMode(t *testing.T) {
	utc := NewUITestContext(t)
	defer utc.Cleanup()
	p := utc.Page

	require.NoError(t, utc.Step("enable visibility", p.EnsureVisibilityEnabled))

	require.NoError(t, utc.Step("mode all customers", func() error {
		if err := p.SelectVisibilityMode(pages.ModePlaceholder, pages.ModeAllCustomers); err != nil {
			return err
		}
		return p.WaitSaved()
	}))

	require.NoError(t, utc.Step("mode customers with value", func() error {
		return p.SelectVisibilityMode(pages.ModeAllCustomers, pages.ModeCustomersWithValue)
	}))

	require.NoError(t, utc.Step("minimum value", func() error {
		if err := p.SetMinimumValue("100"); err != nil {
			return err
		}
		return p.WaitSaved()
	}))
}

func TestChatSettingsHostURL(t *testing.T) {
	utc := NewUITestContext(t)
	defer utc.Cleanup()

	require.NoError(t, utc.Page.SetHostURL("https://example.com"))
	require.NoError(t, utc.Page.WaitSaved())
	utc.Screenshot("host url saved")
}

func TestChatSettingsEmailResponse(t *testing.T) {
	utc := NewUITestContext(t)
	defer utc.Cleanup()

	for _, option := range []string{pages.EmailResponseDraft, pages.EmailResponseReply, pages.EmailResponseOff} {
		require.NoError(t, utc.Step("email response "+option, func() error {
			if err := utc.Page.SelectEmailResponse(option); err != nil {
				return err
			}
			return utc.Page.WaitSaved()
		}), option)
	}
}

func TestChatSettingsInstallationSnippets(t *testing.T) {
	utc := NewUITestContext(t)
	defer utc.Cleanup()

	require.NoError(t, utc.Step("html tab", func() error { return utc.Page.SelectInstallTab(pages.InstallTabHTML) }))
	require.NoError(t, utc.Step("react tab", func() error { return utc.Page.SelectInstallTab(pages.InstallTabReact) }))

	for _, item := range pages.AccordionItems {
		require.NoError(t, utc.Step(item.Title, func() error { return utc.Page.ExpandAccordion(item) }), item.Title)
	}
}

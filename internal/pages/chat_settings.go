// Package pages holds page objects for the application under test. A page
// object owns the selectors and copy of one screen so tests read as steps.
package pages

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/widgetcheck/internal/apiverifier"
	"github.com/ternarybob/widgetcheck/internal/browser"
	"github.com/ternarybob/widgetcheck/internal/common"
)

// Section headings and their descriptions as rendered on /settings/chat
const (
	WidgetInstallationHeading = "Widget Installation"
	DocumentationLink         = "Documentation"

	VisibilityHeading     = "Chat Icon Visibility"
	VisibilityDescription = "Choose when your customers can see the chat widget"

	HostURLHeading     = "Chat widget host URL"
	HostURLDescription = "The URL where your chat widget is installed"

	EmailResponseHeading     = "Respond to email inquiries with chat"
	EmailResponseDescription = "Automatically respond to emails as if the customer was using the chat widget"
)

// Visibility mode controls
const (
	ShowChatIconLabel      = "Show chat icon for"
	ModePlaceholder        = "Select when to show chat icon"
	ModeAllCustomers       = "All customers"
	ModeCustomersWithValue = "Customers with value greater than"
)

// Email response options
const (
	EmailResponseDraft = "Draft"
	EmailResponseReply = "Reply"
	EmailResponseOff   = "Off"
)

// Widget installation tabs
const (
	InstallTabHTML  = "HTML/JavaScript"
	InstallTabReact = "React/Next.js"
)

// SavedIndicator appears after the app persists a setting
const SavedIndicator = "Saved"

// Selectors
const (
	SwitchWrapperSelector = "[data-testid='switch-section-wrapper']"
	CheckboxSelector      = "input[type='checkbox']"
	MinimumValueSelector  = "input[type='number']"
	HostURLInputID        = "widgetHost"
	CodeBlockSelector     = "code"
)

// AccordionItem is an expandable help entry in the installation section
type AccordionItem struct {
	Title    string
	Revealed string
}

// Accordion items in display order, with text only visible once expanded
var (
	AccordionCustomize = AccordionItem{Title: "Customize the widget", Revealed: "Supported options:"}
	AccordionHelpers   = AccordionItem{Title: "Add contextual help buttons", Revealed: "data-helper-prompt"}
	AccordionAuth      = AccordionItem{Title: "Authenticate your users", Revealed: "HMAC secret"}

	AccordionItems = []AccordionItem{AccordionCustomize, AccordionHelpers, AccordionAuth}
)

// ExpectedCopy is every heading and description the page must show
var ExpectedCopy = []string{
	WidgetInstallationHeading,
	DocumentationLink,
	VisibilityHeading,
	VisibilityDescription,
	HostURLHeading,
	HostURLDescription,
	EmailResponseHeading,
	EmailResponseDescription,
}

// ChatSettingsPage drives the chat widget settings screen
type ChatSettingsPage struct {
	session  *browser.Session
	config   *common.Config
	verifier *apiverifier.Verifier
	logger   arbor.ILogger
}

// NewChatSettingsPage binds the page object to a session. verifier may be nil,
// in which case Open only waits for the document.
func NewChatSettingsPage(s *browser.Session, config *common.Config, verifier *apiverifier.Verifier, logger arbor.ILogger) *ChatSettingsPage {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &ChatSettingsPage{
		session:  s,
		config:   config,
		verifier: verifier,
		logger:   logger,
	}
}

// Open navigates to the settings page and waits for the network to go idle
func (p *ChatSettingsPage) Open() error {
	url := p.config.SettingsURL()
	if err := p.session.Navigate(url); err != nil {
		return err
	}
	if p.verifier != nil {
		if err := p.verifier.WaitForNetworkIdle(p.session.Ctx, p.config.NetworkIdleQuiet(), p.config.NetworkIdleTimeout()); err != nil {
			return fmt.Errorf("chat settings at %s: %w", url, err)
		}
	}
	p.logger.Info().Str("url", url).Msg("Chat settings page loaded")
	return nil
}

// VisibilitySwitch is the first switch section wrapper, the chat visibility toggle
func (p *ChatSettingsPage) VisibilitySwitch() *browser.Locator {
	return p.session.CSS(SwitchWrapperSelector)
}

// VisibilitySwitchInput is the checkbox inside the visibility switch
func (p *ChatSettingsPage) VisibilitySwitchInput() *browser.Locator {
	return p.VisibilitySwitch().CSS(CheckboxSelector)
}

// ToggleVisibility clicks the visibility switch and returns the checked state
// before and after the click
func (p *ChatSettingsPage) ToggleVisibility() (before, after bool, err error) {
	before, err = p.VisibilitySwitchInput().IsChecked()
	if err != nil {
		return false, false, err
	}
	if err = p.VisibilitySwitch().Click(); err != nil {
		return before, before, err
	}
	after, err = p.VisibilitySwitchInput().IsChecked()
	if err != nil {
		return before, before, err
	}
	p.logger.Debug().Bool("before", before).Bool("after", after).Msg("Toggled chat visibility")
	return before, after, nil
}

// EnsureVisibilityEnabled turns the visibility switch on if it is off and waits
// for the mode controls to appear
func (p *ChatSettingsPage) EnsureVisibilityEnabled() error {
	checked, err := p.VisibilitySwitchInput().IsChecked()
	if err != nil {
		return err
	}
	if !checked {
		if err := p.VisibilitySwitch().Click(); err != nil {
			return err
		}
	}
	return p.session.WaitForText(ShowChatIconLabel, p.config.ElementTimeout())
}

// SelectVisibilityMode opens the mode select, currently showing current, and
// picks next
func (p *ChatSettingsPage) SelectVisibilityMode(current, next string) error {
	if err := p.session.Text(current).Click(); err != nil {
		return fmt.Errorf("open visibility mode select: %w", err)
	}
	if err := p.session.Text(next).Click(); err != nil {
		return fmt.Errorf("pick visibility mode %q: %w", next, err)
	}
	p.logger.Debug().Str("mode", next).Msg("Selected visibility mode")
	return nil
}

// SetMinimumValue fills the customer value threshold shown for the
// "Customers with value greater than" mode
func (p *ChatSettingsPage) SetMinimumValue(value string) error {
	input := p.session.CSS(MinimumValueSelector)
	if err := input.WaitVisible(); err != nil {
		return err
	}
	return input.Fill(value)
}

// SetHostURL replaces the widget host URL
func (p *ChatSettingsPage) SetHostURL(url string) error {
	input := p.session.ID(HostURLInputID)
	if err := input.Clear(); err != nil {
		return err
	}
	return input.Fill(url)
}

// EmailResponseTabs is the control group of the email response section
func (p *ChatSettingsPage) EmailResponseTabs() *browser.Locator {
	return p.session.Text(EmailResponseHeading).AncestorWithText(EmailResponseDraft)
}

// SelectEmailResponse clicks one of the Draft, Reply or Off tabs
func (p *ChatSettingsPage) SelectEmailResponse(option string) error {
	if err := p.EmailResponseTabs().ExactText(option).Click(); err != nil {
		return fmt.Errorf("select email response %q: %w", option, err)
	}
	return nil
}

// SelectInstallTab switches the installation snippet and waits for its code block
func (p *ChatSettingsPage) SelectInstallTab(tab string) error {
	if err := p.session.Text(tab).Click(); err != nil {
		return err
	}
	return p.session.CSS(CodeBlockSelector).WaitVisible()
}

// ExpandAccordion opens item and waits for the text it reveals
func (p *ChatSettingsPage) ExpandAccordion(item AccordionItem) error {
	if err := p.session.Text(item.Title).Click(); err != nil {
		return err
	}
	if err := p.session.Text(item.Revealed).WaitVisible(); err != nil {
		return fmt.Errorf("accordion %q: %w", item.Title, err)
	}
	return nil
}

// WaitSaved waits for the saved indicator
func (p *ChatSettingsPage) WaitSaved() error {
	return p.session.WaitForText(SavedIndicator, p.config.SavedTimeout())
}

// MissingCopy returns the entries of ExpectedCopy that are not visible
func (p *ChatSettingsPage) MissingCopy() []string {
	var missing []string
	for _, text := range ExpectedCopy {
		if err := p.session.Text(text).WaitVisible(); err != nil {
			p.logger.Warn().Str("text", text).Msg("Expected copy not visible")
			missing = append(missing, text)
		}
	}
	return missing
}

// Sections parses the rendered page into heading and description pairs
func (p *ChatSettingsPage) Sections() ([]Section, error) {
	html, err := p.session.HTML()
	if err != nil {
		return nil, err
	}
	return SectionsFromHTML(html)
}

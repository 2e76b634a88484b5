package pages

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSectionsFromHTML(t *testing.T) {
	html := `<main>
		<div><div><h3>Chat widget host URL</h3></div>
			<p>The URL where your chat widget
				is installed</p></div>
		<h2> Chat Icon Visibility </h2>
		<span>ignored</span>
		<p>Choose when your customers can see the chat widget</p>
		<p>Second paragraph</p>
		<h4>No description</h4>
		<h2>   </h2>
	</main>`

	sections, err := SectionsFromHTML(html)
	require.NoError(t, err)
	require.Len(t, sections, 3)

	assert.Equal(t, Section{Heading: HostURLHeading, Description: HostURLDescription}, sections[0])
	assert.Equal(t, Section{Heading: VisibilityHeading, Description: VisibilityDescription}, sections[1])
	assert.Equal(t, Section{Heading: "No description"}, sections[2])
}

func TestSectionsFromFixture(t *testing.T) {
	raw, err := os.ReadFile("testdata/chat_settings.html")
	require.NoError(t, err)

	sections, err := SectionsFromHTML(string(raw))
	require.NoError(t, err)

	tests := []struct {
		heading     string
		description string
	}{
		{VisibilityHeading, VisibilityDescription},
		{HostURLHeading, HostURLDescription},
		{EmailResponseHeading, EmailResponseDescription},
		{WidgetInstallationHeading, "Add the widget to your site. Documentation"},
	}
	for _, tt := range tests {
		t.Run(tt.heading, func(t *testing.T) {
			s, ok := FindSection(sections, tt.heading)
			require.True(t, ok, "section %q not found in %v", tt.heading, sections)
			assert.Equal(t, tt.description, s.Description)
		})
	}

	_, ok := FindSection(sections, "chat icon visibility")
	assert.True(t, ok, "heading lookup ignores case")
	_, ok = FindSection(sections, "Billing")
	assert.False(t, ok)
}

package pages

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Section is a settings block: its heading and the description rendered with it
type Section struct {
	Heading     string
	Description string
}

const headingSelector = "h1, h2, h3, h4"

// SectionsFromHTML extracts heading and description pairs from settings markup.
// The description is the first paragraph after the heading, looked up among
// its siblings and then among the siblings of its parent.
func SectionsFromHTML(html string) ([]Section, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse settings markup: %w", err)
	}

	var sections []Section
	doc.Find(headingSelector).Each(func(_ int, h *goquery.Selection) {
		heading := clean(h.Text())
		if heading == "" {
			return
		}
		sections = append(sections, Section{
			Heading:     heading,
			Description: describe(h),
		})
	})
	return sections, nil
}

func describe(h *goquery.Selection) string {
	if p := h.NextAllFiltered("p").First(); p.Length() > 0 {
		return clean(p.Text())
	}
	if p := h.Parent().NextAllFiltered("p").First(); p.Length() > 0 {
		return clean(p.Text())
	}
	return ""
}

// FindSection returns the section whose heading equals heading
func FindSection(sections []Section, heading string) (Section, bool) {
	for _, s := range sections {
		if strings.EqualFold(s.Heading, heading) {
			return s, true
		}
	}
	return Section{}, false
}

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

package promoter

import (
	"strings"
)

const bulletPrefix = "- "

// Description is the body of the sync pull request.
// It consists of a list of pull request URLs, newest first, followed by a
// static footer.
// Each URL is listed only once.
type Description struct {
	original string
	text     string
	urls     map[string]struct{}
}

// NewDescription creates a Description from an existing pull request body.
// Lines of the form "- <URL>" in baseline are recognized as listed URLs.
func NewDescription(baseline string) *Description {
	d := Description{
		original: baseline,
		text:     baseline,
		urls:     map[string]struct{}{},
	}

	for _, line := range strings.Split(baseline, "\n") {
		if url, ok := parseBullet(line); ok {
			d.urls[url] = struct{}{}
		}
	}

	return &d
}

func parseBullet(line string) (string, bool) {
	line = strings.TrimSpace(line)

	if !strings.HasPrefix(line, bulletPrefix) {
		return "", false
	}

	url := strings.TrimSpace(strings.TrimPrefix(line, bulletPrefix))
	if strings.ContainsAny(url, " \t") {
		return "", false
	}

	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return "", false
	}

	return url, true
}

// Prepend adds url as first entry.
// If url is already listed, the description is not changed and false is
// returned.
func (d *Description) Prepend(url string) bool {
	if d.Contains(url) {
		return false
	}

	d.urls[url] = struct{}{}
	d.text = bulletPrefix + url + "\n" + d.text

	return true
}

func (d *Description) Contains(url string) bool {
	_, exists := d.urls[url]
	return exists
}

// Changed returns true if the description differs from the baseline it was
// created from.
func (d *Description) Changed() bool {
	return d.text != d.original
}

func (d *Description) String() string {
	return d.text
}

package crawl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	rpdf "rsc.io/pdf"

	"github.com/david/funding-monitor/internal/fundingcalls"
)

const maxPDFBytes = 15 << 20

// pdfDeadlineHints mark a date in a call document as the submission deadline.
var pdfDeadlineHints = []string{
	"frist", "einreich", "bewerb", "antrag", "stichtag", "bis zum", "spätestens", "vorlage", "deadline", "closing",
}

var pdfDateRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}\.\d{1,2}\.20\d{2}\b`),
	regexp.MustCompile(`\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\.\s*(januar|jänner|februar|märz|maerz|april|mai|juni|juli|august|september|oktober|november|dezember)\s+20\d{2}`),
}

func isPDFLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".pdf")
}

// fetchPDF downloads a call document, refusing anything that is not a PDF or
// exceeds maxPDFBytes.
func fetchPDF(ctx context.Context, client *http.Client, link string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/pdf")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pdf request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pdf returned status %d", resp.StatusCode)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxPDFBytes+1))
	if err != nil {
		return nil, fmt.Errorf("pdf read failed: %w", err)
	}
	if len(content) > maxPDFBytes {
		return nil, fmt.Errorf("pdf larger than %d bytes", maxPDFBytes)
	}
	if !bytes.HasPrefix(content, []byte("%PDF-")) {
		return nil, fmt.Errorf("not a PDF document")
	}
	return content, nil
}

// extractPDFText returns the text of every page, one line per baseline.
// The parser emits one fragment per glyph and drops spaces, so word breaks
// are restored from the gap between neighbouring glyphs.
func extractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		var prev rpdf.Text
		for n, frag := range page.Content().Text {
			if n > 0 {
				switch {
				case math.Abs(frag.Y-prev.Y) > prev.FontSize/2:
					b.WriteString("\n")
				case frag.X-(prev.X+prev.W) > prev.FontSize/5:
					b.WriteString(" ")
				}
			}
			b.WriteString(frag.S)
			prev = frag
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// pdfDeadline finds the submission deadline in the text of a call document:
// first a date right after a deadline keyword, then the first date whose
// surroundings carry a deadline hint. It returns "2006-01-02" or "".
func pdfDeadline(text string) string {
	if d := findDeadline(text); d != "" {
		return d
	}

	best := -1
	var found string
	for _, re := range pdfDateRegexes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			if best >= 0 && loc[0] >= best {
				continue
			}
			start := loc[0] - 80
			if start < 0 {
				start = 0
			}
			if !containsAny(strings.ToLower(text[start:loc[0]]), pdfDeadlineHints) {
				continue
			}
			if t, ok := fundingcalls.ParseDeadline(text[loc[0]:loc[1]]); ok {
				best = loc[0]
				found = t.Format("2006-01-02")
			}
		}
	}
	return found
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

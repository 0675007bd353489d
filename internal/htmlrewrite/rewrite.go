// Package htmlrewrite produces the offline copy of a captured page by
// pointing resource references at the files saved during the session.
package htmlrewrite

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

// tagAttrs lists the attributes that can reference sub-resources, per tag.
var tagAttrs = map[string][]string{
	"img":    {"src", "srcset"},
	"script": {"src"},
	"link":   {"href"},
	"iframe": {"src"},
	"audio":  {"src"},
	"video":  {"src", "poster"},
	"source": {"src", "srcset"},
	"embed":  {"src"},
	"object": {"data"},
}

// Output filenames.
const (
	OriginalFilename = "page.html"
	OfflineFilename  = "page_offline.html"
)

// Rewrite returns htmlContent with every resource URL found in urlToFile
// replaced by its saved relative path. URLs the session did not capture are
// left untouched. pageURL resolves relative references before lookup.
func Rewrite(htmlContent, pageURL string, urlToFile map[string]string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	base, _ := url.Parse(pageURL)

	lookup := func(ref string) (string, bool) {
		if ref == "" {
			return "", false
		}
		if local, ok := urlToFile[ref]; ok {
			return local, true
		}
		if base != nil {
			if abs, err := base.Parse(ref); err == nil {
				if local, ok := urlToFile[abs.String()]; ok {
					return local, true
				}
			}
		}
		return "", false
	}

	for tag, attrs := range tagAttrs {
		doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
			for _, attr := range attrs {
				val, exists := sel.Attr(attr)
				if !exists {
					continue
				}
				if attr == "srcset" {
					sel.SetAttr(attr, rewriteSrcset(val, lookup))
					continue
				}
				if local, ok := lookup(val); ok {
					sel.SetAttr(attr, filepath.ToSlash(local))
				}
			}
		})
	}

	return doc.Html()
}

// rewriteSrcset handles the "url descriptor, url descriptor" form.
func rewriteSrcset(srcset string, lookup func(string) (string, bool)) string {
	parts := strings.Split(srcset, ",")
	for i, part := range parts {
		fields := strings.Fields(strings.TrimSpace(part))
		if len(fields) == 0 {
			continue
		}
		if local, ok := lookup(fields[0]); ok {
			fields[0] = filepath.ToSlash(local)
			parts[i] = strings.Join(fields, " ")
		}
	}
	return strings.Join(parts, ", ")
}

// SaveBoth writes the original page HTML and its offline rewrite next to
// each other in outDir. A rewrite failure still leaves the original.
func SaveBoth(outDir, htmlContent, pageURL string, urlToFile map[string]string) error {
	if err := os.WriteFile(filepath.Join(outDir, OriginalFilename), []byte(htmlContent), 0o644); err != nil {
		return err
	}
	offline, err := Rewrite(htmlContent, pageURL, urlToFile)
	if err != nil {
		log.Warn().Str("tag", "WARN").Err(err).Msg("Offline HTML rewrite failed, keeping original only")
		return nil
	}
	return os.WriteFile(filepath.Join(outDir, OfflineFilename), []byte(offline), 0o644)
}

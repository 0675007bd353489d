package capture

import (
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/Rorqualx/gatecap/internal/fsutil"
)

// typeDirs maps a resource classification onto its output subdirectory.
var typeDirs = map[string]string{
	"Image":      "images",
	"Script":     "scripts",
	"Stylesheet": "stylesheets",
	"Font":       "fonts",
	"Media":      "media",
	"Document":   "html",
}

// DownloadsDir is the subdirectory download bodies land in.
const DownloadsDir = "downloads"

// DirForType returns the output subdirectory for a resource type, "other"
// for anything unrecognized.
func DirForType(resourceType string) string {
	if dir, ok := typeDirs[resourceType]; ok {
		return dir
	}
	return "other"
}

var (
	// filename*=UTF-8''... takes priority per RFC 5987
	filenameStarRe = regexp.MustCompile(`(?i)filename\*\s*=\s*[^'"]+'[^']*'([^;]+)`)
	filenameRe     = regexp.MustCompile(`(?i)filename\*?=(?:UTF-8''|["'])?([^;"']+)`)
)

// binaryMIMEs mark a response as a download regardless of disposition.
var binaryMIMEs = []string{
	"application/pdf",
	"application/zip",
	"application/x-msdownload",
	"application/vnd.microsoft.portable-executable",
	"application/octet-stream",
}

// LooksLikeDownload reports whether the content-type/content-disposition
// pair indicates a file transfer rather than a page resource.
func LooksLikeDownload(contentType, contentDisposition string) bool {
	cd := strings.ToLower(contentDisposition)
	if strings.Contains(cd, "attachment") || strings.Contains(cd, "filename=") {
		return true
	}
	ct := strings.ToLower(contentType)
	for _, m := range binaryMIMEs {
		if strings.Contains(ct, m) {
			return true
		}
	}
	return false
}

// GuessExt infers a file extension from a Content-Type value. Empty when
// nothing sensible applies.
func GuessExt(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "text/css"):
		return ".css"
	case strings.Contains(ct, "javascript"):
		return ".js"
	case strings.HasPrefix(ct, "image/"):
		return "." + subtype(ct)
	case strings.HasPrefix(ct, "font/"):
		return "." + subtype(ct)
	case strings.Contains(ct, "html"):
		return ".html"
	case strings.Contains(ct, "pdf"):
		return ".pdf"
	case strings.Contains(ct, "zip"):
		return ".zip"
	case strings.Contains(ct, "msdownload"), strings.Contains(ct, "portable-executable"):
		return ".exe"
	case strings.Contains(ct, "json"):
		return ".json"
	case strings.Contains(ct, "xml"):
		return ".xml"
	default:
		return ""
	}
}

func subtype(ct string) string {
	s := ct[strings.IndexByte(ct, '/')+1:]
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "x-")
	if s == "svg+xml" {
		return "svg"
	}
	return strings.TrimSpace(s)
}

// FilenameFromCD extracts a safe filename from a Content-Disposition value,
// honoring the RFC 5987 filename* form first. Empty when no filename is
// present.
func FilenameFromCD(cd string) string {
	if cd == "" {
		return ""
	}
	if m := filenameStarRe.FindStringSubmatch(cd); m != nil {
		if decoded, err := url.PathUnescape(m[1]); err == nil {
			return safeName(decoded, "", decoded)
		}
	}
	if m := filenameRe.FindStringSubmatch(cd); m != nil {
		raw := strings.Trim(strings.TrimSpace(m[1]), `"'`)
		return safeName(raw, "", raw)
	}
	return ""
}

// FilenameFromURL derives a filename from the URL path, appending the
// fallback extension when the path has none. The URL itself salts the name
// so equal basenames from different URLs stay distinct.
func FilenameFromURL(rawURL, fallbackExt string) string {
	base := "index"
	if u, err := url.Parse(rawURL); err == nil {
		if b := path.Base(u.Path); b != "" && b != "/" && b != "." {
			base = b
		}
	}
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = fallbackExt
	}
	return fsutil.SafeFilename(stem, ext, rawURL)
}

// safeName splits a raw name into stem/ext and runs it through the salted
// safe-filename builder.
func safeName(raw, fallbackExt, salt string) string {
	base := path.Base(strings.ReplaceAll(raw, "\\", "/"))
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem = "download"
	}
	if ext == "" {
		ext = fallbackExt
	}
	return fsutil.SafeFilename(stem, ext, salt)
}

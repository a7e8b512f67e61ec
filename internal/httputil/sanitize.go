package httputil

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

const maxFilenameRunes = 120

// ValidateURL checks that a URL is well-formed and uses HTTPS.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("only HTTPS URLs are allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL has no host")
	}
	return nil
}

// ValidateMediaURL checks that a media URL is absolute HTTP(S) and returns it parsed.
// CDN nodes still hand out plain HTTP URLs, so both schemes are accepted here.
func ValidateMediaURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("malformed URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("URL has no host")
	}
	if u.User != nil {
		return nil, fmt.Errorf("URL must not carry credentials")
	}
	return u, nil
}

// HostAllowed reports whether host equals, or is a subdomain of, one of the allowed domains.
func HostAllowed(host string, allowed []string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for _, a := range allowed {
		a = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a)), ".")
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// SanitizeFilename removes path traversal and dangerous characters from a filename.
// Returns just the base name, stripped of any directory components.
func SanitizeFilename(name string) string {
	// Take only the base name to strip directory components
	name = filepath.Base(strings.TrimSpace(name))

	replacer := strings.NewReplacer(
		"..", "_",
		"/", "_",
		"\\", "_",
		"\x00", "",
		"\r", "",
		"\n", "",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		";", "_",
	)
	name = replacer.Replace(name)

	if r := []rune(name); len(r) > maxFilenameRunes {
		name = string(r[:maxFilenameRunes])
	}

	if name == "" || name == "." || name == ".." {
		return "untitled"
	}

	return name
}

// ContentDisposition builds a Content-Disposition header value for a media file.
// The ASCII filename parameter is kept for old clients, filename* carries the UTF-8 name.
func ContentDisposition(name, ext string, attachment bool) string {
	kind := "inline"
	if attachment {
		kind = "attachment"
	}

	filename := SanitizeFilename(name)
	if ext != "" && !strings.HasSuffix(strings.ToLower(filename), "."+ext) {
		filename += "." + ext
	}

	ascii := make([]byte, 0, len(filename))
	for i := 0; i < len(filename); i++ {
		c := filename[i]
		if c < 0x20 || c > 0x7e || c == '%' {
			c = '_'
		}
		ascii = append(ascii, c)
	}

	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, kind, ascii, url.PathEscape(filename))
}

// SafeDownloadPath joins a sanitized filename onto dir and verifies the
// result stays inside dir.
func SafeDownloadPath(dir, filename string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}

	resolved, err := filepath.Abs(filepath.Join(absDir, SanitizeFilename(filename)))
	if err != nil {
		return "", fmt.Errorf("resolving path: %w", err)
	}

	if !strings.HasPrefix(resolved, absDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q escapes %q", resolved, absDir)
	}

	return resolved, nil
}

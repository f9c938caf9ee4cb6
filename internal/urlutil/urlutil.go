// Package urlutil resolves resource references found in collected documents.
package urlutil

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var multiSlash = regexp.MustCompile(`/+`)

// Normalize collapses "." and ".." path segments. Leading ".." segments that
// cannot be resolved are kept.
func Normalize(path string) string {
	comps := strings.Split(path, "/")
	parts := make([]string, 0, len(comps))
	leading := true
	for _, comp := range comps {
		switch comp {
		case "..":
			if leading {
				parts = append(parts, comp)
			} else if len(parts) > 0 {
				parts = parts[:len(parts)-1]
			}
		case ".":
		default:
			parts = append(parts, comp)
			leading = false
		}
	}
	return strings.Join(parts, "/")
}

// BasePath returns the directory portion of a resource path. Paths ending in
// "/" are treated as directories already.
func BasePath(path string) string {
	comps := strings.Split(Normalize(path), "/")
	comps[len(comps)-1] = ""
	if len(comps) == 1 {
		return "/"
	}
	return strings.Join(comps, "/")
}

// Join concatenates two path fragments and normalizes the result. Unlike
// path.Join, a leading "/" on the second fragment does not reset the path.
func Join(a, b string) string {
	return Normalize(multiSlash.ReplaceAllString(a+"/"+b, "/"))
}

// AbsolutePath resolves path against the directory of base.
func AbsolutePath(path, base string) string {
	return Normalize(Join(BasePath(base), path))
}

// IsHTTPURL reports whether u already names a host, with or without a scheme.
func IsHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "//")
}

// NormalizeScheme gives scheme-relative URLs ("//host/x") the document's scheme.
func NormalizeScheme(u, scheme string) string {
	if strings.HasPrefix(u, "//") {
		if scheme == "" {
			scheme = "http"
		}
		return scheme + ":" + u
	}
	return u
}

// FullURL combines the scheme and host of base with the path, query and
// fragment of rest.
func FullURL(base *url.URL, rest string) (string, error) {
	ref, err := url.Parse(rest)
	if err != nil {
		return "", fmt.Errorf("parse path %q: %w", rest, err)
	}
	out := url.URL{
		Scheme:   base.Scheme,
		User:     base.User,
		Host:     base.Host,
		Path:     ref.Path,
		RawQuery: ref.RawQuery,
		Fragment: ref.Fragment,
	}
	if out.Host != "" && !strings.HasPrefix(out.Path, "/") {
		out.Path = "/" + out.Path
	}
	return out.String(), nil
}

// Resolve turns an <img src> value into an absolute URL relative to the document at base.
func Resolve(base *url.URL, src string) (string, error) {
	if IsHTTPURL(src) {
		return NormalizeScheme(src, base.Scheme), nil
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", src, err)
	}
	p := ref.Path
	if !strings.HasPrefix(p, "/") {
		p = AbsolutePath(p, base.Path)
	}
	rest := p
	if ref.RawQuery != "" {
		rest += "?" + ref.RawQuery
	}
	return FullURL(base, rest)
}

// Domain returns the host (with port, if any) of rawURL.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}

var escapes = strings.NewReplacer(
	"%", "%25",
	"(", "%2528",
	")", "%2529",
	"[", "%255B",
	"]", "%255D",
)

// PercentEscape escapes characters the headless browser mangles when navigating.
func PercentEscape(rawURL string) string {
	return escapes.Replace(rawURL)
}

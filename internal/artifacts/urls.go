// Package artifacts handles the object storage side of the pipeline: locating
// objects from their public URLs, insert-only uploads, downloads, and the
// naming scheme for derived artifacts.
package artifacts

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"
)

// publicPrefix marks where <bucket>/<key> starts inside a public storage URL.
const publicPrefix = "/storage/v1/object/public/"

// ErrMalformedSourceURL is returned when a URL does not follow the public
// object path convention.
var ErrMalformedSourceURL = errors.New("malformed storage source url")

// ParsePublicURL splits a public storage URL into bucket and object key. The
// key keeps whatever percent-encoding the URL carried; re-encoding it would
// point at a different object. Query parameters (cache busters from earlier
// crops) are dropped.
func ParsePublicURL(rawURL string) (bucket, key string, err error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedSourceURL, err)
	}

	// EscapedPath preserves the original encoding of the path.
	escaped := parsed.EscapedPath()
	idx := strings.Index(escaped, publicPrefix)
	if idx < 0 {
		return "", "", fmt.Errorf("%w: missing %q in %s", ErrMalformedSourceURL, publicPrefix, rawURL)
	}

	rest := escaped[idx+len(publicPrefix):]
	slash := strings.Index(rest, "/")
	if slash <= 0 {
		return "", "", fmt.Errorf("%w: cannot isolate bucket in %s", ErrMalformedSourceURL, rawURL)
	}

	bucket = rest[:slash]
	key = rest[slash+1:]
	if key == "" {
		return "", "", fmt.Errorf("%w: empty object key in %s", ErrMalformedSourceURL, rawURL)
	}
	return bucket, key, nil
}

// DeriveCroppedKey returns the storage key for a crop artifact: the original
// filename stem plus a timestamped suffix, same directory, same extension.
// The suffix guarantees the upload lands on a fresh key and the original
// object survives.
func DeriveCroppedKey(key string, now time.Time) string {
	dir := path.Dir(key)
	base := path.Base(key)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	name := fmt.Sprintf("%s_cropped_%d%s", stem, now.UnixMilli(), ext)
	if dir == "." {
		return name
	}
	return dir + "/" + name
}

// PublicURL builds the public URL for an object, with a cache-busting
// timestamp appended so CDNs and browsers re-fetch right after video_url
// repoints.
func PublicURL(baseURL, bucket, key string, now time.Time) string {
	return fmt.Sprintf("%s%s%s/%s?t=%d",
		strings.TrimSuffix(baseURL, "/"), publicPrefix, bucket, key, now.UnixMilli())
}

package fetch

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// finalName determines the file name a download will be stored under.
// The URL path's base name wins when it is non-empty and the declared
// media type maps to a known extension; otherwise a timestamped name is
// synthesized from the media type, defaulting to .jpg.
func finalName(u *url.URL, mediaType string, now time.Time) string {
	ext := imageTypes[mediaType]

	base := path.Base(u.Path)
	if base != "" && base != "." && base != "/" && ext != "" {
		return base
	}

	if ext == "" {
		ext = ".jpg"
	}

	return fmt.Sprintf("image_%s%s", now.Format("20060102_150405"), ext)
}

// uniquePath joins dir and name, appending _1, _2, ... before the
// extension until the path does not collide with an existing file.
// Two different images resolving to the same name never overwrite
// each other; only content is deduplicated.
func uniquePath(dir, name string) string {
	p := filepath.Join(dir, name)
	if _, err := os.Stat(p); err != nil {
		return p
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 1; ; i++ {
		p = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Stat(p); err != nil {
			return p
		}
	}
}

package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	unsafeNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	dotRun          = regexp.MustCompile(`^\.+`)
)

// SanitizeName makes a group, channel or package title usable as a single
// path element. Reserved characters become "_"; an empty result becomes "_".
func SanitizeName(name string) string {
	result := unsafeNameChars.ReplaceAllString(strings.TrimSpace(name), "_")
	result = dotRun.ReplaceAllString(result, "_")
	if len(result) > 128 {
		result = result[:128]
	}
	if result == "" {
		return "_"
	}
	return result
}

// timestampName formats t as YYYYMMDDhhmmss followed by six digits of microseconds.
func timestampName(t time.Time) string {
	return t.Format("20060102150405") + fmt.Sprintf("%06d", t.Nanosecond()/1000)
}

// FileName returns the scratch file name for a download of the given kind.
// Generic files keep their original base name after the timestamp.
func FileName(t time.Time, kind Kind, original string) string {
	ts := timestampName(t)
	if kind == KindFile {
		base := SanitizeName(filepath.Base(original))
		if original == "" || base == "_" {
			return ts
		}
		return ts + "_" + base
	}
	return ts + kind.Ext()
}

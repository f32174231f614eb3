package archive

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxNameLength is the longest encoded entry name both formats can record.
const MaxNameLength = 0xFFFF

// NormalizeName converts a caller path into an archive entry name: '/'
// separators, no leading "./" or "/", NFC normalization.
//
// Empty names, "." or ".." components, NUL bytes and invalid UTF-8 are
// rejected with ErrIllegalArchiveName.
func NormalizeName(p string) (string, error) {
	name, err := normalize(p)
	if err != nil {
		return "", NewError(ErrIllegalArchiveName, "normalize", p, err)
	}
	return name, nil
}

func normalize(p string) (string, error) {
	if !utf8.ValidString(p) {
		return "", errors.New("invalid utf-8")
	}
	if strings.IndexByte(p, 0) >= 0 {
		return "", errors.New("contains NUL")
	}
	name := strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(name, "./") {
		name = name[2:]
	}
	name = strings.TrimLeft(name, "/")
	name = norm.NFC.String(name)
	if name == "" {
		return "", errors.New("empty name")
	}
	if strings.HasSuffix(name, "/") {
		return "", errors.New("names a directory")
	}
	for _, part := range strings.Split(name, "/") {
		switch part {
		case "":
			return "", errors.New("empty path component")
		case ".", "..":
			return "", fmt.Errorf("relative path component %q", part)
		}
	}
	if len(name) > MaxNameLength {
		return "", fmt.Errorf("name is %d bytes", len(name))
	}
	return name, nil
}

// PrepareNames normalizes every path and rejects duplicates. It runs before
// any volume is opened so a bad file list never leaves partial output.
func PrepareNames(op string, files []string) ([]string, error) {
	names := make([]string, len(files))
	seen := make(map[string]string, len(files))
	for i, f := range files {
		n, err := normalize(f)
		if err != nil {
			return nil, NewError(ErrIllegalArchiveName, op, f, err)
		}
		if first, dup := seen[n]; dup {
			return nil, Errorf(ErrDuplicateEntry, op, n, "%q and %q map to the same entry", first, f)
		}
		seen[n] = f
		names[i] = n
	}
	return names, nil
}

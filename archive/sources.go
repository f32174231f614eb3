package archive

import (
	"errors"

	"github.com/pithecene-io/strata/types"
)

// SourceSet describes every input of a Pack, gathered before any volume
// is opened.
type SourceSet struct {
	Infos      []types.SourceInfo
	TotalBytes int64
	MaxLength  int64
}

// StatSources opens and closes each file once to learn its SourceInfo.
// The first file that cannot be opened fails the call with
// ErrSourceNotFound naming it.
func StatSources(sc StreamContext, op string, files []string) (SourceSet, error) {
	set := SourceSet{Infos: make([]types.SourceInfo, len(files))}
	for i, f := range files {
		rc, info, err := sc.OpenFileReadStream(f)
		if err != nil {
			return SourceSet{}, SourceError(op, f, err)
		}
		if rc == nil {
			return SourceSet{}, NewError(ErrSourceNotFound, op, f, nil)
		}
		if err := sc.CloseFileReadStream(f, rc); err != nil {
			return SourceSet{}, Wrap(op, f, err)
		}
		set.Infos[i] = info
		set.TotalBytes += info.Length
		set.MaxLength = max(set.MaxLength, info.Length)
	}
	return set, nil
}

// SourceError classifies a failure to open source path. Errors already
// carrying an *Error keep their kind; anything else is ErrSourceNotFound.
func SourceError(op, path string, err error) error {
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return NewError(ErrSourceNotFound, op, path, err)
}

package reader

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/types"
)

// Rows flattens a listing for table output.
func Rows(files []types.ArchiveFileInfo) []FileRow {
	rows := make([]FileRow, len(files))
	for i, fi := range files {
		rows[i] = FileRow{
			Name:       fi.Name,
			Size:       fi.Length,
			Compressed: fi.CompressedSize,
			Method:     fi.Method,
			Attrs:      fi.Attributes.String(),
			Modified:   fi.LastWriteTime,
			Volume:     fi.ArchiveName,
		}
	}
	return rows
}

// Summarize aggregates a listing per volume and per method.
// Volumes are the highest directory volume plus one, so trailing volumes
// that hold only spanned data or directory records are not counted.
func Summarize(files []types.ArchiveFileInfo) *ArchiveStats {
	st := &ArchiveStats{
		Files:     len(files),
		Ratio:     1,
		PerVolume: []VolumeStats{},
		PerMethod: []MethodStats{},
	}
	var largest int64 = -1
	vols := map[int]*VolumeStats{}
	methods := map[string]*MethodStats{}
	for _, fi := range files {
		st.TotalBytes += fi.Length
		st.CompressedBytes += fi.CompressedSize
		if fi.Length > largest {
			largest, st.Largest = fi.Length, fi.Name
		}
		if !fi.LastWriteTime.IsZero() && (st.Newest == nil || fi.LastWriteTime.After(*st.Newest)) {
			t := fi.LastWriteTime
			st.Newest = &t
		}

		v, ok := vols[fi.ArchiveNumber]
		if !ok {
			v = &VolumeStats{Number: fi.ArchiveNumber, Name: fi.ArchiveName}
			vols[fi.ArchiveNumber] = v
		}
		v.Files++
		v.Bytes += fi.Length
		v.Compressed += fi.CompressedSize

		m, ok := methods[fi.Method]
		if !ok {
			m = &MethodStats{Method: fi.Method}
			methods[fi.Method] = m
		}
		m.Files++
		m.Bytes += fi.Length
	}
	for _, v := range vols {
		st.PerVolume = append(st.PerVolume, *v)
		st.Volumes = max(st.Volumes, v.Number+1)
	}
	slices.SortFunc(st.PerVolume, func(a, b VolumeStats) int { return cmp.Compare(a.Number, b.Number) })
	for _, m := range methods {
		st.PerMethod = append(st.PerMethod, *m)
	}
	slices.SortFunc(st.PerMethod, func(a, b MethodStats) int { return cmp.Compare(a.Method, b.Method) })
	if st.TotalBytes > 0 {
		st.Ratio = float64(st.CompressedBytes) / float64(st.TotalBytes)
	}
	return st
}

// Inspect returns the entry named name.
func Inspect(files []types.ArchiveFileInfo, name string) (*EntryDetail, error) {
	nn, err := archive.NormalizeName(name)
	if err != nil {
		return nil, err
	}
	for _, fi := range files {
		if fi.Name == nn {
			return &EntryDetail{
				ArchiveFileInfo: fi,
				Dir:             fi.Dir(),
				Ratio:           fi.CompressionRatio(),
				Flags:           fi.Attributes.String(),
			}, nil
		}
	}
	return nil, fmt.Errorf("entry %q not found", name)
}

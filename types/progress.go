package types

// ProgressKind discriminates progress events.
type ProgressKind string

// Progress event kinds.
const (
	ProgressStartArchive  ProgressKind = "start_archive"
	ProgressStartFile     ProgressKind = "start_file"
	ProgressPartialFile   ProgressKind = "partial_file"
	ProgressFinishFile    ProgressKind = "finish_file"
	ProgressFinishArchive ProgressKind = "finish_archive"
)

// Valid reports whether k is one of the defined kinds.
func (k ProgressKind) Valid() bool {
	switch k {
	case ProgressStartArchive, ProgressStartFile, ProgressPartialFile,
		ProgressFinishFile, ProgressFinishArchive:
		return true
	}
	return false
}

// IsArchiveBoundary reports whether k opens or closes a volume.
func (k ProgressKind) IsArchiveBoundary() bool {
	return k == ProgressStartArchive || k == ProgressFinishArchive
}

// ProgressEvent is a snapshot of operation progress.
// Events are delivered by value; every counter is computed by the engine.
type ProgressEvent struct {
	// Kind is the event discriminator.
	Kind ProgressKind `msgpack:"kind" json:"kind"`

	// CurrentFileName is the archive-relative name of the current file.
	CurrentFileName string `msgpack:"file_name,omitempty" json:"file_name,omitempty"`
	// CurrentFileNumber is the 0-based index of the current file.
	CurrentFileNumber int `msgpack:"file_number" json:"file_number"`
	// TotalFiles is fixed for the whole operation.
	TotalFiles int `msgpack:"total_files" json:"total_files"`
	// CurrentFolderNumber is the format's folder (compression stream) index.
	CurrentFolderNumber int `msgpack:"folder_number" json:"folder_number"`

	// CurrentArchiveName is the resolved name of the current volume.
	CurrentArchiveName string `msgpack:"archive_name,omitempty" json:"archive_name,omitempty"`
	// CurrentArchiveNumber is the 0-based index of the current volume.
	CurrentArchiveNumber int `msgpack:"archive_number" json:"archive_number"`
	// TotalArchives counts volumes opened so far. It is never a forecast.
	TotalArchives int `msgpack:"total_archives" json:"total_archives"`

	CurrentFileBytesProcessed    int64 `msgpack:"file_bytes" json:"file_bytes"`
	CurrentFileTotalBytes        int64 `msgpack:"file_total_bytes" json:"file_total_bytes"`
	CurrentArchiveBytesProcessed int64 `msgpack:"archive_bytes" json:"archive_bytes"`
	CurrentArchiveTotalBytes     int64 `msgpack:"archive_total_bytes" json:"archive_total_bytes"`

	// FileBytesProcessed and TotalFileBytes are operation-wide.
	FileBytesProcessed int64 `msgpack:"bytes" json:"bytes"`
	TotalFileBytes     int64 `msgpack:"total_bytes" json:"total_bytes"`
}

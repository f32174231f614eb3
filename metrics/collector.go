// Package metrics provides per-operation metrics collection.
//
// The Collector accumulates counters during a single pack, unpack or list
// operation. It is a leaf package with no internal dependencies.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all operation metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Volumes
	VolumesOpened int64
	VolumesClosed int64
	Spans         int64

	// Files
	FilesPacked    int64
	FilesExtracted int64
	FilesSkipped   int64
	FilesCorrupt   int64

	// Bytes
	BytesRead    int64
	BytesWritten int64

	// Storage
	OpenRetries int64

	// Lifecycle
	Cancellations int64

	// Dimensions (informational, set at construction)
	Operation      string
	Format         string
	StorageBackend string
	OpID           string
}

// Collector accumulates metrics during a single operation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	volumesOpened int64
	volumesClosed int64
	spans         int64

	filesPacked    int64
	filesExtracted int64
	filesSkipped   int64
	filesCorrupt   int64

	bytesRead    int64
	bytesWritten int64

	openRetries   int64
	cancellations int64

	// Dimensions
	operation      string
	format         string
	storageBackend string
	opID           string
}

// NewCollector creates a Collector with dimension labels.
// opID is optional.
func NewCollector(operation, format, storageBackend, opID string) *Collector {
	return &Collector{
		operation:      operation,
		format:         format,
		storageBackend: storageBackend,
		opID:           opID,
	}
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// --- Volumes ---

// IncVolumeOpened records a volume stream opened for reading or writing.
func (c *Collector) IncVolumeOpened() {
	if c == nil {
		return
	}
	c.add(&c.volumesOpened, 1)
}

// IncVolumeClosed records a volume stream closed.
func (c *Collector) IncVolumeClosed() {
	if c == nil {
		return
	}
	c.add(&c.volumesClosed, 1)
}

// IncSpan records a file continuing across a volume boundary.
func (c *Collector) IncSpan() {
	if c == nil {
		return
	}
	c.add(&c.spans, 1)
}

// --- Files ---

// IncFilePacked records a file fully written into the archive.
func (c *Collector) IncFilePacked() {
	if c == nil {
		return
	}
	c.add(&c.filesPacked, 1)
}

// IncFileExtracted records a file written to its destination.
func (c *Collector) IncFileExtracted() {
	if c == nil {
		return
	}
	c.add(&c.filesExtracted, 1)
}

// IncFileSkipped records an entry skipped by filter or by the context.
func (c *Collector) IncFileSkipped() {
	if c == nil {
		return
	}
	c.add(&c.filesSkipped, 1)
}

// IncFileCorrupt records an entry dropped in best-effort mode.
func (c *Collector) IncFileCorrupt() {
	if c == nil {
		return
	}
	c.add(&c.filesCorrupt, 1)
}

// --- Bytes ---

// AddBytesRead records uncompressed bytes read from sources or entries.
func (c *Collector) AddBytesRead(n int64) {
	if c == nil {
		return
	}
	c.add(&c.bytesRead, n)
}

// AddBytesWritten records bytes written to volumes or destinations.
func (c *Collector) AddBytesWritten(n int64) {
	if c == nil {
		return
	}
	c.add(&c.bytesWritten, n)
}

// --- Storage / lifecycle ---

// IncOpenRetry records a retried stream open.
func (c *Collector) IncOpenRetry() {
	if c == nil {
		return
	}
	c.add(&c.openRetries, 1)
}

// IncCancellation records an operation stopped by its progress handler or context.
func (c *Collector) IncCancellation() {
	if c == nil {
		return
	}
	c.add(&c.cancellations, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		VolumesOpened: c.volumesOpened,
		VolumesClosed: c.volumesClosed,
		Spans:         c.spans,

		FilesPacked:    c.filesPacked,
		FilesExtracted: c.filesExtracted,
		FilesSkipped:   c.filesSkipped,
		FilesCorrupt:   c.filesCorrupt,

		BytesRead:    c.bytesRead,
		BytesWritten: c.bytesWritten,

		OpenRetries:   c.openRetries,
		Cancellations: c.cancellations,

		Operation:      c.operation,
		Format:         c.format,
		StorageBackend: c.storageBackend,
		OpID:           c.opID,
	}
}

package streamctx

import (
	"bytes"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/iox"
	"github.com/pithecene-io/strata/types"
)

// MemoryFile is a source or extracted file held in memory.
type MemoryFile struct {
	Data          []byte
	Attributes    types.FileAttributes
	LastWriteTime time.Time
}

// MemoryContext keeps sources, volumes and extracted files in memory.
// Safe for concurrent inspection while an operation runs.
type MemoryContext struct {
	// BaseName is the name of volume 0.
	BaseName string
	// Namer names later volumes. Defaults to DefaultNamer.
	Namer VolumeNamer
	// MaxVolumes refuses volume n >= MaxVolumes when positive.
	MaxVolumes int
	// Skip, when set, makes OpenFileWriteStream skip matching entries.
	Skip func(path string) bool
	// Resolve answers ResolveOption when set.
	Resolve func(name string, params archive.OptionParams) (any, bool)

	mu      sync.Mutex
	sources map[string]MemoryFile
	volumes map[string][]byte
	outputs map[string]MemoryFile
	removed []string
	open    int
}

var (
	_ archive.StreamContext  = (*MemoryContext)(nil)
	_ archive.OptionResolver = (*MemoryContext)(nil)
	_ archive.VolumeRemover  = (*MemoryContext)(nil)
)

// NewMemoryContext creates an empty memory context.
func NewMemoryContext(baseName string) *MemoryContext {
	return &MemoryContext{
		BaseName: baseName,
		sources:  make(map[string]MemoryFile),
		volumes:  make(map[string][]byte),
		outputs:  make(map[string]MemoryFile),
	}
}

// AddSource registers a source file.
func (m *MemoryContext) AddSource(path string, data []byte, attrs types.FileAttributes, mtime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[path] = MemoryFile{Data: data, Attributes: attrs, LastWriteTime: mtime}
}

// Volume returns the bytes of volume n.
func (m *MemoryContext) Volume(n int) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.volumes[m.ArchiveName(n)]
	return b, ok
}

// SetVolume replaces the bytes of volume n.
func (m *MemoryContext) SetVolume(n int, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volumes[m.ArchiveName(n)] = data
}

// DeleteVolume removes volume n.
func (m *MemoryContext) DeleteVolume(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.volumes, m.ArchiveName(n))
}

// VolumeCount returns the number of stored volumes.
func (m *MemoryContext) VolumeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.volumes)
}

// VolumeNames returns the stored volume names, sorted.
func (m *MemoryContext) VolumeNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.volumes))
	for n := range m.volumes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Output returns an extracted file.
func (m *MemoryContext) Output(path string) (MemoryFile, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.outputs[path]
	return f, ok
}

// Outputs returns the extracted file paths, sorted.
func (m *MemoryContext) Outputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	paths := make([]string, 0, len(m.outputs))
	for p := range m.outputs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Removed lists volumes deleted through RemoveArchive.
func (m *MemoryContext) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// OpenStreams returns the number of streams opened but not yet closed.
func (m *MemoryContext) OpenStreams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// ArchiveName implements archive.StreamContext.
func (m *MemoryContext) ArchiveName(n int) string {
	namer := m.Namer
	if namer == nil {
		namer = DefaultNamer
	}
	return namer(m.BaseName, n)
}

type memWriter struct {
	bytes.Buffer
}

func (*memWriter) Close() error { return nil }

// OpenArchiveWriteStream implements archive.StreamContext.
func (m *MemoryContext) OpenArchiveWriteStream(n int, _ string, _ bool) (io.WriteCloser, error) {
	if m.MaxVolumes > 0 && n >= m.MaxVolumes {
		return nil, nil
	}
	m.mu.Lock()
	m.open++
	m.mu.Unlock()
	return &memWriter{}, nil
}

// CloseArchiveWriteStream implements archive.StreamContext.
func (m *MemoryContext) CloseArchiveWriteStream(_ int, name string, stream io.WriteCloser) error {
	mw, ok := stream.(*memWriter)
	if !ok {
		return archive.Errorf(archive.ErrStorage, "close", name, "foreign stream %T", stream)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open--
	m.volumes[name] = append([]byte(nil), mw.Bytes()...)
	return nil
}

// OpenArchiveReadStream implements archive.StreamContext.
func (m *MemoryContext) OpenArchiveReadStream(_ int, name string, _ archive.Engine) (io.ReadSeekCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.volumes[name]
	if !ok {
		return nil, nil
	}
	m.open++
	return iox.NopReadSeekCloser(bytes.NewReader(b)), nil
}

// CloseArchiveReadStream implements archive.StreamContext.
func (m *MemoryContext) CloseArchiveReadStream(_ int, _ string, stream io.ReadSeekCloser) error {
	m.mu.Lock()
	m.open--
	m.mu.Unlock()
	return stream.Close()
}

// OpenFileReadStream implements archive.StreamContext.
func (m *MemoryContext) OpenFileReadStream(path string) (io.ReadCloser, types.SourceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.sources[path]
	if !ok {
		return nil, types.SourceInfo{}, archive.NewError(archive.ErrSourceNotFound, "open", path, nil)
	}
	m.open++
	info := types.SourceInfo{
		Length:        int64(len(f.Data)),
		Attributes:    f.Attributes,
		LastWriteTime: f.LastWriteTime,
	}
	return io.NopCloser(bytes.NewReader(f.Data)), info, nil
}

// CloseFileReadStream implements archive.StreamContext.
func (m *MemoryContext) CloseFileReadStream(_ string, stream io.ReadCloser) error {
	m.mu.Lock()
	m.open--
	m.mu.Unlock()
	return stream.Close()
}

// OpenFileWriteStream implements archive.StreamContext.
func (m *MemoryContext) OpenFileWriteStream(path string, _ int64, _ types.FileAttributes, _ time.Time) (io.WriteCloser, error) {
	if m.Skip != nil && m.Skip(path) {
		return nil, nil
	}
	m.mu.Lock()
	m.open++
	m.mu.Unlock()
	return &memWriter{}, nil
}

// CloseFileWriteStream implements archive.StreamContext.
func (m *MemoryContext) CloseFileWriteStream(path string, stream io.WriteCloser, attrs types.FileAttributes, mtime time.Time) error {
	mw, ok := stream.(*memWriter)
	if !ok {
		return archive.Errorf(archive.ErrStorage, "close", path, "foreign stream %T", stream)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open--
	m.outputs[path] = MemoryFile{
		Data:          append([]byte(nil), mw.Bytes()...),
		Attributes:    attrs,
		LastWriteTime: mtime,
	}
	return nil
}

// ResolveOption implements archive.OptionResolver.
func (m *MemoryContext) ResolveOption(name string, params archive.OptionParams) (any, bool) {
	if m.Resolve == nil {
		return nil, false
	}
	return m.Resolve(name, params)
}

// RemoveArchive implements archive.VolumeRemover.
func (m *MemoryContext) RemoveArchive(_ int, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.volumes, name)
	m.removed = append(m.removed, name)
	return nil
}

package cab

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"
	"time"

	"github.com/pithecene-io/strata/archive"
	"github.com/pithecene-io/strata/metrics"
	"github.com/pithecene-io/strata/progress"
	"github.com/pithecene-io/strata/streamctx"
	"github.com/pithecene-io/strata/types"
)

var testTime = time.Date(2024, 5, 17, 9, 30, 12, 0, time.UTC)

// addFiles registers n sources of size bytes and returns their names.
func addFiles(mc *streamctx.MemoryContext, n, size int, random bool) []string {
	rng := rand.New(rand.NewPCG(uint64(n), uint64(size)))
	names := make([]string, n)
	for i := range names {
		data := make([]byte, size)
		for j := range data {
			if random {
				data[j] = byte(rng.Uint32())
			} else {
				data[j] = byte('a' + (i+j/64)%26)
			}
		}
		names[i] = fmt.Sprintf("dir/file-%02d.bin", i)
		if random {
			names[i] = fmt.Sprintf("rnd/file-%02d.bin", i)
		}
		mc.AddSource(names[i], data, types.AttrArchive, testTime.Add(time.Duration(i)*time.Minute))
	}
	return names
}

func assertRoundTrip(t *testing.T, mc *streamctx.MemoryContext, files []string) {
	t.Helper()
	for _, f := range files {
		out, ok := mc.Output(f)
		if !ok {
			t.Errorf("%s not extracted", f)
			continue
		}
		rc, info, err := mc.OpenFileReadStream(f)
		if err != nil {
			t.Fatal(err)
		}
		var want bytes.Buffer
		_, _ = want.ReadFrom(rc)
		_ = mc.CloseFileReadStream(f, rc)
		if !bytes.Equal(out.Data, want.Bytes()) {
			t.Errorf("%s: content differs (%d vs %d bytes)", f, len(out.Data), want.Len())
		}
		if d := out.LastWriteTime.Sub(info.LastWriteTime); d < -time.Minute || d > time.Minute {
			t.Errorf("%s: mtime %v, want %v", f, out.LastWriteTime, info.LastWriteTime)
		}
		if out.Attributes != info.Attributes {
			t.Errorf("%s: attributes %v, want %v", f, out.Attributes, info.Attributes)
		}
	}
	if n := mc.OpenStreams(); n != 0 {
		t.Errorf("%d streams left open", n)
	}
}

func TestRoundTrip_Limits(t *testing.T) {
	limits := []int64{0, -1, math.MinInt64, 1 << 20, 16 << 10, 300}
	levels := []types.CompressionLevel{types.LevelNone, types.LevelLow, types.LevelNormal, types.LevelHigh}
	for _, limit := range limits {
		for _, level := range levels {
			t.Run(fmt.Sprintf("%d/%s", limit, level), func(t *testing.T) {
				mc := streamctx.NewMemoryContext("rt.cab")
				files := addFiles(mc, 3, 40<<10, false)
				files = append(files, addFiles(mc, 2, 9<<10, true)[1:]...)
				mc.AddSource("empty.txt", nil, types.AttrReadOnly|types.AttrHidden, testTime)
				files = append(files, "empty.txt")

				e := New(archive.WithLevel(level))
				infos, err := e.Pack(context.Background(), mc, files, limit)
				if err != nil {
					t.Fatalf("Pack: %v", err)
				}
				if len(infos) != len(files) {
					t.Fatalf("Pack returned %d infos, want %d", len(infos), len(files))
				}
				if err := e.Unpack(context.Background(), mc, nil); err != nil {
					t.Fatalf("Unpack: %v", err)
				}
				assertRoundTrip(t, mc, files)

				if limit <= 0 && mc.VolumeCount() != 1 {
					t.Errorf("VolumeCount = %d, want 1", mc.VolumeCount())
				}
				if limit > 0 {
					for i, name := range mc.VolumeNames() {
						b, _ := mc.Volume(i)
						if int64(len(b)) > limit {
							t.Errorf("%s is %d bytes, over the %d limit", name, len(b), limit)
						}
					}
				}
			})
		}
	}
}

func TestPack_UnboundedEquivalence(t *testing.T) {
	for _, limit := range []int64{0, -1, math.MinInt64} {
		mc := streamctx.NewMemoryContext("u.cab")
		files := addFiles(mc, 15, 20<<10, false)
		if _, err := New(archive.WithLevel(types.LevelNone)).Pack(context.Background(), mc, files, limit); err != nil {
			t.Fatalf("limit %d: %v", limit, err)
		}
		if mc.VolumeCount() != 1 {
			t.Errorf("limit %d: VolumeCount = %d, want 1", limit, mc.VolumeCount())
		}
	}
}

type step struct {
	kind    types.ProgressKind
	file    int
	archive int
}

func (s step) String() string { return fmt.Sprintf("%s(file=%d, archive=%d)", s.kind, s.file, s.archive) }

// steps drops PartialFile events and file numbers of archive events.
func steps(events []types.ProgressEvent) []step {
	var out []step
	for _, ev := range events {
		switch ev.Kind {
		case types.ProgressPartialFile:
			continue
		case types.ProgressStartArchive, types.ProgressFinishArchive:
			out = append(out, step{ev.Kind, -1, ev.CurrentArchiveNumber})
		default:
			out = append(out, step{ev.Kind, ev.CurrentFileNumber, ev.CurrentArchiveNumber})
		}
	}
	return out
}

// spanningSteps is the event contract for 15 files of 20 KiB packed into
// 130 KiB volumes: files 6 and 12 cross a boundary.
func spanningSteps() []step {
	sa := func(a int) step { return step{types.ProgressStartArchive, -1, a} }
	fa := func(a int) step { return step{types.ProgressFinishArchive, -1, a} }
	sf := func(f, a int) step { return step{types.ProgressStartFile, f, a} }
	ff := func(f, a int) step { return step{types.ProgressFinishFile, f, a} }

	s := []step{sa(0)}
	for f := 0; f <= 5; f++ {
		s = append(s, sf(f, 0), ff(f, 0))
	}
	s = append(s, sf(6, 0), fa(0), sa(1), ff(6, 1))
	for f := 7; f <= 11; f++ {
		s = append(s, sf(f, 1), ff(f, 1))
	}
	s = append(s, sf(12, 1), fa(1), sa(2), ff(12, 2))
	s = append(s, sf(13, 2), ff(13, 2), sf(14, 2), ff(14, 2), fa(2))
	return s
}

func TestPack_SpanningEventContract(t *testing.T) {
	mc := streamctx.NewMemoryContext("span.cab")
	files := addFiles(mc, 15, 20<<10, false)
	var events []types.ProgressEvent
	e := New(archive.WithLevel(types.LevelNone), archive.WithProgress(progress.Collect(&events)))

	infos, err := e.Pack(context.Background(), mc, files, 130<<10)
	if err != nil {
		t.Fatal(err)
	}
	if mc.VolumeCount() != 3 {
		t.Fatalf("VolumeCount = %d, want 3", mc.VolumeCount())
	}

	got, want := steps(events), spanningSteps()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("event steps differ\n got: %v\nwant: %v", got, want)
	}

	starts := map[int]int{}
	for _, fi := range infos {
		starts[fi.ArchiveNumber]++
	}
	if starts[0] != 7 || starts[1] != 6 || starts[2] != 2 {
		t.Errorf("files starting per volume = %v, want 7/6/2", starts)
	}

	for i, ev := range events {
		if ev.TotalFiles != 15 {
			t.Fatalf("event %d TotalFiles = %d, want 15", i, ev.TotalFiles)
		}
		if i > 0 {
			prev := events[i-1]
			if ev.CurrentFileNumber < prev.CurrentFileNumber || ev.TotalArchives < prev.TotalArchives {
				t.Fatalf("event %d not monotonic: %+v after %+v", i, ev, prev)
			}
		}
		if ev.Kind == types.ProgressStartArchive && ev.TotalArchives != ev.CurrentArchiveNumber+1 {
			t.Errorf("StartArchive(%d) TotalArchives = %d", ev.CurrentArchiveNumber, ev.TotalArchives)
		}
	}
	last := events[len(events)-1]
	if last.FileBytesProcessed != 15*20<<10 || last.TotalFileBytes != 15*20<<10 {
		t.Errorf("final byte counters = %d/%d", last.FileBytesProcessed, last.TotalFileBytes)
	}
}

func TestUnpack_SpanningEvents(t *testing.T) {
	mc := streamctx.NewMemoryContext("span.cab")
	files := addFiles(mc, 15, 20<<10, false)
	if _, err := New(archive.WithLevel(types.LevelNone)).Pack(context.Background(), mc, files, 130<<10); err != nil {
		t.Fatal(err)
	}

	var events []types.ProgressEvent
	e := New(archive.WithProgress(progress.Collect(&events)))
	if err := e.Unpack(context.Background(), mc, nil); err != nil {
		t.Fatal(err)
	}
	if got, want := steps(events), spanningSteps(); !reflect.DeepEqual(got, want) {
		t.Errorf("unpack event steps differ\n got: %v\nwant: %v", got, want)
	}
	assertRoundTrip(t, mc, files)
}

func TestGetFileInfo_Idempotent(t *testing.T) {
	mc := streamctx.NewMemoryContext("list.cab")
	files := addFiles(mc, 15, 20<<10, false)
	e := New(archive.WithLevel(types.LevelNone))
	packed, err := e.Pack(context.Background(), mc, files, 130<<10)
	if err != nil {
		t.Fatal(err)
	}
	before := mc.VolumeNames()

	first, err := e.GetFileInfo(context.Background(), mc, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.GetFileInfo(context.Background(), mc, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("listing changed between calls")
	}
	if !reflect.DeepEqual(first, packed) {
		t.Errorf("listing differs from Pack result\nlist: %+v\npack: %+v", first[0], packed[0])
	}
	if !reflect.DeepEqual(before, mc.VolumeNames()) || len(mc.Outputs()) != 0 {
		t.Error("listing wrote to the context")
	}
	for i := 1; i < len(first); i++ {
		if first[i].ArchiveNumber < first[i-1].ArchiveNumber {
			t.Fatalf("ArchiveNumber decreases at %d", i)
		}
	}
	if first[6].CompressedSize != 20<<10+8 {
		t.Errorf("spanning entry CompressedSize = %d, want %d", first[6].CompressedSize, 20<<10+8)
	}
}

func TestGetFileInfo_ArchiveEventsOnly(t *testing.T) {
	mc := streamctx.NewMemoryContext("ev.cab")
	files := addFiles(mc, 15, 20<<10, false)
	if _, err := New(archive.WithLevel(types.LevelNone)).Pack(context.Background(), mc, files, 130<<10); err != nil {
		t.Fatal(err)
	}
	var events []types.ProgressEvent
	infos, err := New(archive.WithProgress(progress.Collect(&events))).GetFileInfo(context.Background(), mc, archive.MatchPattern("file-1*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 5 {
		t.Errorf("filtered listing = %d entries, want 5", len(infos))
	}
	if len(events) != 6 {
		t.Fatalf("events = %d, want 6", len(events))
	}
	for _, ev := range events {
		if !ev.Kind.IsArchiveBoundary() {
			t.Errorf("unexpected %s event", ev.Kind)
		}
	}
}

func TestUnpack_Truncated(t *testing.T) {
	mc := streamctx.NewMemoryContext("t.cab")
	files := addFiles(mc, 2, 1000, false)
	e := New()
	if _, err := e.Pack(context.Background(), mc, files, 0); err != nil {
		t.Fatal(err)
	}
	v, _ := mc.Volume(0)
	mc.SetVolume(0, v[:5])

	if err := e.Unpack(context.Background(), mc, nil); !errors.Is(err, archive.ErrTruncatedArchive) {
		t.Fatalf("Unpack err = %v, want ErrTruncatedArchive", err)
	}
	if len(mc.Outputs()) != 0 {
		t.Errorf("outputs = %v, want none", mc.Outputs())
	}
	if _, err := e.GetFileInfo(context.Background(), mc, nil); !errors.Is(err, archive.ErrTruncatedArchive) {
		t.Errorf("GetFileInfo err = %v, want ErrTruncatedArchive", err)
	}

	// Cut inside the directory.
	mc.SetVolume(0, v[:len(v)-3])
	if err := e.Unpack(context.Background(), mc, nil); !errors.Is(err, archive.ErrTruncatedArchive) {
		t.Errorf("cut footer err = %v, want ErrTruncatedArchive", err)
	}
	if mc.OpenStreams() != 0 {
		t.Errorf("OpenStreams = %d", mc.OpenStreams())
	}
}

func TestUnpack_NotAnArchive(t *testing.T) {
	mc := streamctx.NewMemoryContext("n.cab")
	mc.SetVolume(0, []byte("this is plainly not a cabinet file"))
	if err := New().Unpack(context.Background(), mc, nil); !errors.Is(err, archive.ErrNotAnArchive) {
		t.Fatalf("err = %v, want ErrNotAnArchive", err)
	}
}

func TestUnpack_MissingVolume(t *testing.T) {
	mc := streamctx.NewMemoryContext("m.cab")
	files := addFiles(mc, 15, 20<<10, false)
	e := New(archive.WithLevel(types.LevelNone))
	if _, err := e.Pack(context.Background(), mc, files, 130<<10); err != nil {
		t.Fatal(err)
	}
	mc.DeleteVolume(1)
	err := e.Unpack(context.Background(), mc, nil)
	if !errors.Is(err, archive.ErrArchiveNotFound) {
		t.Fatalf("err = %v, want ErrArchiveNotFound", err)
	}
	var ae *archive.Error
	if !errors.As(err, &ae) || ae.Name != "m.cab.1" {
		t.Errorf("error should name m.cab.1: %v", err)
	}
}

func TestUnpack_ForeignVolume(t *testing.T) {
	pack := func(id uint16) *streamctx.MemoryContext {
		mc := streamctx.NewMemoryContext("f.cab")
		files := addFiles(mc, 15, 20<<10, false)
		e := New(archive.WithLevel(types.LevelNone))
		e.setID = func() uint16 { return id }
		if _, err := e.Pack(context.Background(), mc, files, 130<<10); err != nil {
			t.Fatal(err)
		}
		return mc
	}
	a, b := pack(1), pack(2)
	v, _ := b.Volume(1)
	a.SetVolume(1, v)
	if _, err := New().GetFileInfo(context.Background(), a, nil); !errors.Is(err, archive.ErrNotAnArchive) {
		t.Fatalf("err = %v, want ErrNotAnArchive", err)
	}
}

func TestPack_RejectsBeforeWriting(t *testing.T) {
	mc := streamctx.NewMemoryContext("d.cab")
	mc.AddSource("a.txt", []byte("a"), 0, testTime)
	mc.AddSource("b.txt", []byte("b"), 0, testTime)
	e := New()

	_, err := e.Pack(context.Background(), mc, []string{"a.txt", "b.txt", "./a.txt"}, 0)
	if !errors.Is(err, archive.ErrDuplicateEntry) {
		t.Fatalf("err = %v, want ErrDuplicateEntry", err)
	}
	_, err = e.Pack(context.Background(), mc, []string{"a.txt", "../etc/passwd"}, 0)
	if !errors.Is(err, archive.ErrIllegalArchiveName) {
		t.Fatalf("err = %v, want ErrIllegalArchiveName", err)
	}
	_, err = e.Pack(context.Background(), mc, []string{"a.txt", "missing.txt"}, 0)
	if !errors.Is(err, archive.ErrSourceNotFound) {
		t.Fatalf("err = %v, want ErrSourceNotFound", err)
	}
	var ae *archive.Error
	if errors.As(err, &ae) && ae.Name != "missing.txt" {
		t.Errorf("error names %q, want missing.txt", ae.Name)
	}
	if mc.VolumeCount() != 0 || mc.OpenStreams() != 0 {
		t.Errorf("volumes = %d, open streams = %d; want 0, 0", mc.VolumeCount(), mc.OpenStreams())
	}
}

func TestPack_ZeroFiles(t *testing.T) {
	mc := streamctx.NewMemoryContext("z.cab")
	infos, err := New().Pack(context.Background(), mc, nil, 0)
	if err != nil || infos == nil || len(infos) != 0 {
		t.Fatalf("Pack = %v, %v; want empty list", infos, err)
	}
	if mc.VolumeCount() != 0 {
		t.Errorf("VolumeCount = %d, want 0", mc.VolumeCount())
	}
}

func TestPack_VolumeTooSmall(t *testing.T) {
	mc := streamctx.NewMemoryContext("s.cab")
	files := addFiles(mc, 1, 100, false)
	for _, limit := range []int64{1, 20, 60} {
		_, err := New().Pack(context.Background(), mc, files, limit)
		if !errors.Is(err, archive.ErrVolumeTooSmall) {
			t.Errorf("limit %d: err = %v, want ErrVolumeTooSmall", limit, err)
		}
	}
}

func TestPack_OutOfVolumes(t *testing.T) {
	mc := streamctx.NewMemoryContext("o.cab")
	mc.MaxVolumes = 2
	files := addFiles(mc, 15, 20<<10, false)
	_, err := New(archive.WithLevel(types.LevelNone)).Pack(context.Background(), mc, files, 130<<10)
	if !errors.Is(err, archive.ErrOutOfVolumes) {
		t.Fatalf("err = %v, want ErrOutOfVolumes", err)
	}
}

func TestPack_CancelPolicies(t *testing.T) {
	stop := errors.New("stop requested")
	for _, tt := range []struct {
		policy archive.CancelPolicy
		want   []string
	}{
		{archive.CancelRemovePartial, []string{"c.cab"}},
		{archive.CancelKeepPartial, []string{"c.cab", "c.cab.1"}},
	} {
		t.Run(tt.policy.String(), func(t *testing.T) {
			mc := streamctx.NewMemoryContext("c.cab")
			files := addFiles(mc, 15, 20<<10, false)
			m := metrics.NewCollector("pack", Format, "memory", "")
			handler := func(ev types.ProgressEvent) error {
				if ev.Kind == types.ProgressStartFile && ev.CurrentFileNumber == 8 {
					return stop
				}
				return nil
			}
			e := New(archive.WithLevel(types.LevelNone), archive.WithProgress(handler),
				archive.WithCancelPolicy(tt.policy), archive.WithMetrics(m))

			_, err := e.Pack(context.Background(), mc, files, 130<<10)
			if !errors.Is(err, archive.ErrCanceled) || !errors.Is(err, stop) {
				t.Fatalf("err = %v, want ErrCanceled wrapping the handler error", err)
			}
			if got := mc.VolumeNames(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("volumes = %v, want %v", got, tt.want)
			}
			if mc.OpenStreams() != 0 {
				t.Errorf("OpenStreams = %d, want 0", mc.OpenStreams())
			}
			if m.Snapshot().Cancellations != 1 {
				t.Errorf("Cancellations = %d, want 1", m.Snapshot().Cancellations)
			}
		})
	}
}

func TestPack_ContextCanceled(t *testing.T) {
	mc := streamctx.NewMemoryContext("x.cab")
	files := addFiles(mc, 2, 100, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Pack(ctx, mc, files, 0)
	if !errors.Is(err, archive.ErrCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
	if mc.VolumeCount() != 0 {
		t.Errorf("VolumeCount = %d, want 0 under the remove policy", mc.VolumeCount())
	}
}

func TestUnpack_BestEffort(t *testing.T) {
	mc := streamctx.NewMemoryContext("b.cab")
	files := addFiles(mc, 3, 1000, false)
	if _, err := New(archive.WithLevel(types.LevelNone)).Pack(context.Background(), mc, files, 0); err != nil {
		t.Fatal(err)
	}
	v, _ := mc.Volume(0)
	// First payload byte of file 0: volume header, then the block header.
	v[headerSize+8] ^= 0xFF
	mc.SetVolume(0, v)

	err := New().Unpack(context.Background(), mc, nil)
	if !errors.Is(err, archive.ErrCorruptEntry) {
		t.Fatalf("strict err = %v, want ErrCorruptEntry", err)
	}

	m := metrics.NewCollector("unpack", Format, "memory", "")
	if err := New(archive.WithBestEffort(true), archive.WithMetrics(m)).Unpack(context.Background(), mc, nil); err != nil {
		t.Fatalf("best effort: %v", err)
	}
	if m.Snapshot().FilesCorrupt != 1 || m.Snapshot().FilesExtracted != 2 {
		t.Errorf("metrics = %+v", m.Snapshot())
	}
	assertRoundTrip(t, mc, files[1:])
}

func TestUnpack_FilterAndSkip(t *testing.T) {
	mc := streamctx.NewMemoryContext("f.cab")
	files := addFiles(mc, 4, 500, false)
	if _, err := New().Pack(context.Background(), mc, files, 0); err != nil {
		t.Fatal(err)
	}
	if err := New().Unpack(context.Background(), mc, archive.MatchNames(files[1], files[3])); err != nil {
		t.Fatal(err)
	}
	if got := mc.Outputs(); !reflect.DeepEqual(got, []string{files[1], files[3]}) {
		t.Errorf("outputs = %v", got)
	}

	skipped := streamctx.NewMemoryContext("f.cab")
	v, _ := mc.Volume(0)
	skipped.SetVolume(0, v)
	skipped.Skip = func(p string) bool { return p == files[0] }
	var events []types.ProgressEvent
	if err := New(archive.WithProgress(progress.Collect(&events))).Unpack(context.Background(), skipped, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok := skipped.Output(files[0]); ok {
		t.Error("skipped entry was extracted")
	}
	last := events[len(events)-1]
	if last.FileBytesProcessed != 4*500 {
		t.Errorf("FileBytesProcessed = %d, want %d", last.FileBytesProcessed, 4*500)
	}
}

func TestPack_PerFileLevel(t *testing.T) {
	mc := streamctx.NewMemoryContext("l.cab")
	files := addFiles(mc, 3, 4096, false)
	mc.Resolve = func(name string, p archive.OptionParams) (any, bool) {
		if name == archive.OptionCompressionLevel && p.Name == files[1] {
			return types.LevelNone, true
		}
		return nil, false
	}
	infos, err := New(archive.WithLevel(types.LevelHigh)).Pack(context.Background(), mc, files, 0)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{infos[0].Method, infos[1].Method, infos[2].Method}
	if want := []string{"deflate", "store", "deflate"}; !reflect.DeepEqual(got, want) {
		t.Errorf("methods = %v, want %v", got, want)
	}
	if infos[0].CompressedSize >= infos[0].Length {
		t.Errorf("deflate did not shrink: %d >= %d", infos[0].CompressedSize, infos[0].Length)
	}
	if err := New().Unpack(context.Background(), mc, nil); err != nil {
		t.Fatal(err)
	}
	assertRoundTrip(t, mc, files)
}

func TestPack_Constraints(t *testing.T) {
	mc := streamctx.NewMemoryContext("k.cab")
	files := addFiles(mc, 1, 10, false)
	_, err := New().Pack(context.Background(), mc, files, 5<<30)
	if !errors.Is(err, archive.ErrUnsupportedArchiveConstraint) {
		t.Fatalf("err = %v, want ErrUnsupportedArchiveConstraint", err)
	}

	fc := formatCodec{}
	tests := []struct {
		files       int
		file, arch  int64
		wantNeedExt bool
	}{
		{MaxFiles, 0, 0, false},
		{MaxFiles + 1, 0, 0, true},
		{1, MaxFileSize + 1, 0, true},
		{1, 0, MaxCabinetSize + 1, true},
	}
	for _, tt := range tests {
		if got := fc.NeedsExtendedMode(tt.files, tt.file, tt.arch); got != tt.wantNeedExt {
			t.Errorf("NeedsExtendedMode(%d, %d, %d) = %v", tt.files, tt.file, tt.arch, got)
		}
	}
	if fc.SupportsExtendedMode() {
		t.Error("cab has no extended mode")
	}
}

func TestEngine_Guard(t *testing.T) {
	mc := streamctx.NewMemoryContext("g.cab")
	files := addFiles(mc, 1, 10, false)
	var e *Engine
	var inner error
	e = New(archive.WithProgress(func(types.ProgressEvent) error {
		if inner == nil {
			_, inner = e.GetFileInfo(context.Background(), mc, nil)
		}
		return nil
	}))
	if _, err := e.Pack(context.Background(), mc, files, 0); err != nil {
		t.Fatal(err)
	}
	if !errors.Is(inner, archive.ErrOperationInProgress) {
		t.Errorf("reentrant call err = %v, want ErrOperationInProgress", inner)
	}

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := e.Pack(context.Background(), mc, files, 0); !errors.Is(err, archive.ErrClosed) {
		t.Errorf("Pack after Close err = %v, want ErrClosed", err)
	}
}

func TestIsArchive(t *testing.T) {
	mc := streamctx.NewMemoryContext("i.cab")
	files := addFiles(mc, 1, 10, false)
	e := New()
	if _, err := e.Pack(context.Background(), mc, files, 0); err != nil {
		t.Fatal(err)
	}
	v, _ := mc.Volume(0)
	if ok, err := e.IsArchive(bytes.NewReader(v)); err != nil || !ok {
		t.Errorf("IsArchive = %v, %v", ok, err)
	}
	if ok, _ := e.IsArchive(bytes.NewReader([]byte("PK\x03\x04"))); ok {
		t.Error("zip data reported as cab")
	}
	stub := append(bytes.Repeat([]byte{0x90}, 512), v...)
	if off, err := e.FindArchiveOffset(bytes.NewReader(stub)); err != nil || off != 512 {
		t.Errorf("FindArchiveOffset = %d, %v; want 512", off, err)
	}
}

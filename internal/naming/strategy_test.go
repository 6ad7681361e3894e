package naming

import (
	"strings"
	"testing"
)

func testCollection(t *testing.T, name string) *Collection {
	t.Helper()
	coll, err := NewCollection(DefaultCollectionConfig(name))
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	return coll
}

func TestStrategyCompressedFITS(t *testing.T) {
	coll := testCollection(t, "TEST")
	s := NewStrategy(coll, "obs123.fits.gz", []string{"/data/obs123.fits.gz"})

	if s.FileName() != "obs123.fits.gz" {
		t.Fatalf("file_name=%q", s.FileName())
	}
	if s.FileID() != "obs123" || s.ObsID() != "obs123" || s.ProductID() != "obs123" {
		t.Fatalf("ids: file=%q obs=%q product=%q", s.FileID(), s.ObsID(), s.ProductID())
	}
	if got := s.FileURI(); got != "cadc:TEST/obs123.fits" {
		t.Fatalf("file_uri=%q", got)
	}
	if strings.Contains(s.FileURI(), ".gz") || strings.Contains(s.FileURI(), ".header") {
		t.Fatalf("file_uri kept compression marker: %q", s.FileURI())
	}
	if got := s.DestinationURIs(); len(got) != 1 || got[0] != "cadc:TEST/obs123.fits" {
		t.Fatalf("destination_uris=%v", got)
	}
	if s.Key() != s.FileURI() {
		t.Fatalf("key=%q, want file uri", s.Key())
	}
}

func TestFileIDIsFixedPoint(t *testing.T) {
	coll := testCollection(t, "TEST")
	names := []string{
		"obs123.fits",
		"obs123.fits.gz",
		"obs123.fits.header",
		"obs123.fits.bz2",
		"obs123.fits.gz.header",
		"obs123.fits.fits.gz",
		"obs123.gz.fits",
		"preview.jpg",
		"notes.txt.gz",
		".fits",
		"",
	}
	for _, name := range names {
		once := coll.FileID(name)
		if twice := coll.FileID(once); twice != once {
			t.Fatalf("FileID not idempotent for %q: %q then %q", name, once, twice)
		}
	}
	if got := coll.FileID("obs123.fits.gz.header"); got != "obs123" {
		t.Fatalf("FileID(obs123.fits.gz.header)=%q", got)
	}
	if got := coll.FileID("notes.txt.gz"); got != "notes.txt.gz" {
		t.Fatalf("FileID(notes.txt.gz)=%q, non-FITS names keep compression suffixes", got)
	}
	if got := coll.FileID(".fits"); got != ".fits" {
		t.Fatalf("FileID(.fits)=%q, want unchanged", got)
	}
}

func TestFileURINeverHasCompressionMarkers(t *testing.T) {
	coll := testCollection(t, "TEST")
	suffixes := []string{"", ".gz", ".bz2", ".header"}
	for _, a := range suffixes {
		for _, b := range suffixes {
			for _, c := range suffixes {
				name := "x.fits" + a + b + c
				uri := NewStrategy(coll, name, []string{name}).FileURI()
				for _, marker := range []string{".gz", ".bz2", ".header"} {
					if strings.Contains(uri, marker) {
						t.Fatalf("FileURI(%q)=%q contains %s", name, uri, marker)
					}
				}
				if uri != "cadc:TEST/x.fits" {
					t.Fatalf("FileURI(%q)=%q", name, uri)
				}
			}
		}
	}
}

func TestDestinationURIsPreserveOrder(t *testing.T) {
	coll := testCollection(t, "TEST")
	sources := []string{
		"/staging/a.fits.gz",
		"https://example.org/data/a_prev.jpg?token=1",
		"vos:goliaths/dao/a.fits.header",
		"/staging/notes.txt.gz",
	}
	s := NewStrategy(coll, "a.fits.gz", sources)
	got := s.DestinationURIs()
	want := []string{
		"cadc:TEST/a.fits",
		"cadc:TEST/a_prev.jpg",
		"cadc:TEST/a.fits",
		"cadc:TEST/notes.txt.gz",
	}
	if len(got) != len(sources) {
		t.Fatalf("len(destination_uris)=%d, want %d", len(got), len(sources))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("destination_uris[%d]=%q, want %q", i, got[i], want[i])
		}
	}

	if empty := NewStrategy(coll, "a.fits", nil); len(empty.DestinationURIs()) != 0 {
		t.Fatalf("expected no destination uris without sources")
	}
}

func TestPreviewNamesUsePreviewScheme(t *testing.T) {
	cfg := DefaultCollectionConfig("TEST")
	cfg.PreviewScheme = "ad"
	coll, err := NewCollection(cfg)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	s := NewStrategy(coll, "obs9.fits", []string{"obs9.fits"})
	if s.Prev() != "obs9_prev.jpg" || s.Thumb() != "obs9_prev_256.jpg" {
		t.Fatalf("prev=%q thumb=%q", s.Prev(), s.Thumb())
	}
	if s.PrevURI() != "ad:TEST/obs9_prev.jpg" || s.ThumbURI() != "ad:TEST/obs9_prev_256.jpg" {
		t.Fatalf("prev_uri=%q thumb_uri=%q", s.PrevURI(), s.ThumbURI())
	}
	if s.FileURI() != "cadc:TEST/obs9.fits" {
		t.Fatalf("file_uri=%q", s.FileURI())
	}
}

func TestIsValid(t *testing.T) {
	cfg := DefaultCollectionConfig("TEST")
	cfg.Pattern = `^PSM\.band\d\.`
	coll, err := NewCollection(cfg)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	if !NewStrategy(coll, "PSM.band1.0049-51.10887.i.fits", nil).IsValid() {
		t.Fatalf("expected matching name to be valid")
	}
	if NewStrategy(coll, "other.fits", nil).IsValid() {
		t.Fatalf("expected non-matching name to be invalid")
	}

	cfg.Pattern = `obs\d+`
	unanchored, err := NewCollection(cfg)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	if !NewStrategy(unanchored, "obs1.fits", nil).IsValid() {
		t.Fatalf("expected prefix match to be valid")
	}
	if NewStrategy(unanchored, "xobs1.fits", nil).IsValid() {
		t.Fatalf("pattern must match at the start of the name")
	}
	if !NewStrategy(testCollection(t, "TEST"), "anything at all", nil).IsValid() {
		t.Fatalf("default pattern should match everything")
	}
}

func TestClassification(t *testing.T) {
	coll := testCollection(t, "TEST")
	cases := []struct {
		name    string
		hdf5    bool
		preview bool
	}{
		{"cube.hdf5", true, false},
		{"cube.h5", true, false},
		{"obs_prev.jpg", false, true},
		{"obs.fits", false, false},
		{"h5.fits", false, false},
	}
	for _, tc := range cases {
		s := NewStrategy(coll, tc.name, nil)
		if s.HDF5() != tc.hdf5 || s.IsPreview() != tc.preview {
			t.Fatalf("%s: hdf5=%v preview=%v", tc.name, s.HDF5(), s.IsPreview())
		}
	}
}

func TestIdentifierOverrides(t *testing.T) {
	cfg := DefaultCollectionConfig("TEST")
	cfg.ObservationID = func(fileID string) string { return strings.SplitN(fileID, "_", 2)[0] }
	cfg.ProductID = func(fileID string) string { return fileID + "-product" }
	coll, err := NewCollection(cfg)
	if err != nil {
		t.Fatalf("NewCollection: %v", err)
	}
	s := NewStrategy(coll, "N2024_red.fits.gz", nil)
	if s.ObsID() != "N2024" || s.ProductID() != "N2024_red-product" {
		t.Fatalf("obs=%q product=%q", s.ObsID(), s.ProductID())
	}
	if s.Prev() != "N2024_prev.jpg" {
		t.Fatalf("prev=%q", s.Prev())
	}
}

func TestStrategyIsDeterministic(t *testing.T) {
	coll := testCollection(t, "TEST")
	sources := []string{"https://example.org/a.fits.bz2", "/tmp/a.fits.bz2"}
	a := NewStrategy(coll, sources[0], sources)
	b := NewStrategy(coll, sources[0], sources)
	if a.String() != b.String() || a.Key() != b.Key() {
		t.Fatalf("derivation differs:\n%s\n%s", a, b)
	}
	if a.FileName() != "a.fits.bz2" {
		t.Fatalf("file_name=%q", a.FileName())
	}
}

func TestMetadataBackfill(t *testing.T) {
	coll := testCollection(t, "TEST")
	s := NewStrategy(coll, "a.fits", []string{"a.fits"}, WithMetadata("pre-known"))
	if s.Metadata() != "pre-known" || s.FileInfo() != nil {
		t.Fatalf("unexpected initial state")
	}
	s.SetFileInfo(&FileInfo{ID: "a.fits", Size: 10})
	s.SetMetadata([]string{"header"})
	if s.FileInfo().Size != 10 {
		t.Fatalf("file info not set")
	}
	if _, ok := s.Metadata().([]string); !ok {
		t.Fatalf("metadata not replaced")
	}
}

func TestNewCollectionRejects(t *testing.T) {
	bad := []CollectionConfig{
		{},
		{Name: "A:B", Scheme: "cadc"},
		{Name: "A", Scheme: ""},
		{Name: "A", Scheme: "cadc", Pattern: "("},
		{Name: "A", Scheme: "cadc", DataExtensions: []string{"fits"}},
		{Name: "A", Scheme: "cadc", CompressionExtensions: []string{".tar.gz"}},
	}
	for i, cfg := range bad {
		if _, err := NewCollection(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestContentType(t *testing.T) {
	cases := map[string]string{
		"a.fits":         "application/fits",
		"a.fits.gz":      "application/fits",
		"a.fits.header":  "text/plain",
		"a.h5":           "application/x-hdf5",
		"a_prev.jpg":     "image/jpeg",
		"a.tar.gz":       "application/gzip",
		"a.unknown":      "application/octet-stream",
		"A_PREV_256.JPG": "image/jpeg",
	}
	for name, want := range cases {
		if got := ContentType(name); got != want {
			t.Fatalf("ContentType(%q)=%q, want %q", name, got, want)
		}
	}
}

package naming

import (
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
	"sync"
	"time"
)

// FileInfo describes a file as stored, or as it will be stored.
type FileInfo struct {
	ID           string
	Size         int64
	MD5          string
	FileType     string
	LastModified time.Time
}

// Strategy is the naming of one source entry. Identity fields are fixed at
// construction; Metadata and FileInfo may be filled in later by a reader.
type Strategy struct {
	coll            *Collection
	fileName        string
	fileID          string
	obsID           string
	productID       string
	sourceNames     []string
	destinationURIs []string

	mu       sync.RWMutex
	metadata any
	fileInfo *FileInfo
}

type Option func(*Strategy)

// WithMetadata sets pre-known metadata, for example FITS headers.
func WithMetadata(metadata any) Option {
	return func(s *Strategy) { s.metadata = metadata }
}

func WithFileInfo(info *FileInfo) Option {
	return func(s *Strategy) { s.fileInfo = info }
}

// NewStrategy derives the naming of entry. sourceNames are the locations the
// file can be fetched from: local paths, URLs or virtual storage URIs.
func NewStrategy(coll *Collection, entry string, sourceNames []string, opts ...Option) *Strategy {
	s := &Strategy{
		coll:        coll,
		fileName:    BaseName(entry),
		sourceNames: slices.Clone(sourceNames),
	}
	s.fileID = coll.FileID(s.fileName)
	s.obsID = coll.observationID(s.fileID)
	s.productID = coll.productIDFor(s.fileID)
	s.destinationURIs = make([]string, 0, len(s.sourceNames))
	for _, source := range s.sourceNames {
		s.destinationURIs = append(s.destinationURIs, coll.URI(s.destinationName(BaseName(source))))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// destinationName keeps ancillary files (previews and the like) verbatim and
// normalizes the compression variants of FITS files to one name.
func (s *Strategy) destinationName(name string) string {
	if IsFITS(name) {
		return s.coll.StorageName(name)
	}
	return name
}

func (s *Strategy) Collection() *Collection { return s.coll }

// Key identifies the strategy inside a Context and a reader's pending set.
func (s *Strategy) Key() string { return s.FileURI() }

func (s *Strategy) FileName() string { return s.fileName }

// FileID is the file name without data type and compression extensions.
func (s *Strategy) FileID() string { return s.fileID }

func (s *Strategy) ObsID() string { return s.obsID }

func (s *Strategy) ProductID() string { return s.productID }

func (s *Strategy) SourceNames() []string { return slices.Clone(s.sourceNames) }

// DestinationURIs has one archive URI per source name, in the same order.
func (s *Strategy) DestinationURIs() []string { return slices.Clone(s.destinationURIs) }

// FileURI is the archive URI of the file itself, compression markers removed.
func (s *Strategy) FileURI() string {
	return s.coll.URI(s.coll.StorageName(s.fileName))
}

// Prev is the preview file name.
func (s *Strategy) Prev() string { return s.obsID + "_prev.jpg" }

func (s *Strategy) PrevURI() string { return s.coll.PreviewURI(s.Prev()) }

// Thumb is the thumbnail file name.
func (s *Strategy) Thumb() string { return s.obsID + "_prev_256.jpg" }

func (s *Strategy) ThumbURI() string { return s.coll.PreviewURI(s.Thumb()) }

// IsValid reports whether the file name conforms to the collection pattern.
func (s *Strategy) IsValid() bool { return s.coll.Match(s.fileName) }

func (s *Strategy) HDF5() bool { return IsHDF5(s.fileName) }

func (s *Strategy) IsPreview() bool { return IsPreview(s.fileName) }

func (s *Strategy) Metadata() any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metadata
}

func (s *Strategy) SetMetadata(metadata any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = metadata
}

func (s *Strategy) FileInfo() *FileInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fileInfo
}

func (s *Strategy) SetFileInfo(info *FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileInfo = info
}

// FileFQN locates the staged copy of the file beneath root. A nil finder
// searches the directory tree.
func (s *Strategy) FileFQN(root string, finder Finder) (string, error) {
	if finder == nil {
		finder = WalkFinder{}
	}
	return finder.Find(root, s.fileName)
}

func (s *Strategy) String() string {
	return fmt.Sprintf(
		"\n          obs_id: %s\n       file_name: %s\n        file_uri: %s\n      product_id: %s\n    source_names: %v\ndestination_uris: %v",
		s.obsID, s.fileName, s.FileURI(), s.productID, s.sourceNames, s.destinationURIs,
	)
}

// IsFITS reports whether name belongs to the FITS family, compressed or not.
func IsFITS(name string) bool {
	return strings.Contains(strings.ToLower(name), ".fits")
}

func IsHDF5(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".hdf5") || strings.HasSuffix(lower, ".h5")
}

func IsPreview(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".png")
}

// BaseName returns the last path segment of a local path, URL or virtual
// storage URI, ignoring any query or fragment.
func BaseName(entry string) string {
	u, err := url.Parse(entry)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return path.Base(entry)
	}
	p := u.Path
	if p == "" {
		p = u.Opaque
	}
	if p == "" {
		return path.Base(entry)
	}
	return path.Base(p)
}

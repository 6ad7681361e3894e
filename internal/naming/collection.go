package naming

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/animus-labs/animus-ingest/internal/config"
)

// CollectionConfig is the per-collection naming policy.
type CollectionConfig struct {
	Name          string
	Pattern       string
	Scheme        string
	PreviewScheme string
	// DataExtensions are the compound file type suffixes removed from a file
	// name to obtain its file id, for example ".fits.gz".
	DataExtensions []string
	// CompressionExtensions are the markers removed from FITS-family names to
	// obtain their storage name, for example ".gz" or ".header". Each must be
	// a single dot-prefixed token.
	CompressionExtensions []string
	// ObservationID and ProductID override the default (the file id).
	ObservationID func(fileID string) string
	ProductID     func(fileID string) string
}

// Collection is a validated, immutable CollectionConfig. It is safe to share
// between goroutines.
type Collection struct {
	name          string
	scheme        string
	previewScheme string
	pattern       *regexp.Regexp
	strip         []string
	compression   map[string]struct{}
	obsID         func(string) string
	productID     func(string) string
}

func DefaultCollectionConfig(name string) CollectionConfig {
	return CollectionConfig{
		Name:                  name,
		Pattern:               ".*",
		Scheme:                "cadc",
		PreviewScheme:         "cadc",
		DataExtensions:        []string{".fits", ".fits.gz", ".fits.bz2", ".fits.header"},
		CompressionExtensions: []string{".gz", ".bz2", ".header"},
	}
}

// CollectionConfigFrom extracts the naming policy from the worker configuration.
func CollectionConfigFrom(cfg config.Config) CollectionConfig {
	return CollectionConfig{
		Name:                  cfg.Collection,
		Pattern:               cfg.CollectionPattern,
		Scheme:                cfg.Scheme,
		PreviewScheme:         cfg.PreviewScheme,
		DataExtensions:        slices.Clone(cfg.StripExtensions),
		CompressionExtensions: slices.Clone(cfg.CompressionExtensions),
	}
}

func NewCollection(cfg CollectionConfig) (*Collection, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("collection name is required")
	}
	if strings.ContainsAny(name, ":/") {
		return nil, fmt.Errorf("collection name must not contain ':' or '/': %q", name)
	}
	scheme := strings.TrimSpace(cfg.Scheme)
	if scheme == "" {
		return nil, errors.New("scheme is required")
	}
	previewScheme := strings.TrimSpace(cfg.PreviewScheme)
	if previewScheme == "" {
		previewScheme = scheme
	}
	pattern := cfg.Pattern
	if strings.TrimSpace(pattern) == "" {
		pattern = ".*"
	}
	// Anchored at the start of the name; the end is left open.
	re, err := regexp.Compile(`^(?:` + pattern + `)`)
	if err != nil {
		return nil, fmt.Errorf("collection pattern: %w", err)
	}

	strip := make([]string, 0, len(cfg.DataExtensions)+len(cfg.CompressionExtensions))
	for _, ext := range append(slices.Clone(cfg.DataExtensions), cfg.CompressionExtensions...) {
		if err := checkExtension(ext); err != nil {
			return nil, err
		}
		if !slices.Contains(strip, ext) {
			strip = append(strip, ext)
		}
	}
	// Longest first so compound suffixes win over their tails.
	slices.SortStableFunc(strip, func(a, b string) int { return len(b) - len(a) })

	compression := make(map[string]struct{}, len(cfg.CompressionExtensions))
	for _, ext := range cfg.CompressionExtensions {
		token := strings.TrimPrefix(ext, ".")
		if strings.Contains(token, ".") {
			return nil, fmt.Errorf("compression extension must be a single token: %q", ext)
		}
		compression[token] = struct{}{}
	}

	return &Collection{
		name:          name,
		scheme:        scheme,
		previewScheme: previewScheme,
		pattern:       re,
		strip:         strip,
		compression:   compression,
		obsID:         cfg.ObservationID,
		productID:     cfg.ProductID,
	}, nil
}

func checkExtension(ext string) error {
	if len(ext) < 2 || !strings.HasPrefix(ext, ".") {
		return fmt.Errorf("extension must start with '.': %q", ext)
	}
	if strings.ContainsAny(ext, "/:") {
		return fmt.Errorf("extension must not contain '/' or ':': %q", ext)
	}
	return nil
}

func (c *Collection) Name() string { return c.name }

func (c *Collection) Scheme() string { return c.scheme }

func (c *Collection) PreviewScheme() string { return c.previewScheme }

// Match reports whether a prefix of name matches the collection pattern.
func (c *Collection) Match(name string) bool {
	return c.pattern.MatchString(name)
}

// URI builds an archive URI in the collection's scheme.
func (c *Collection) URI(fileName string) string {
	return BuildURI(c.scheme, c.name, fileName)
}

// PreviewURI builds an archive URI in the collection's preview scheme.
func (c *Collection) PreviewURI(fileName string) string {
	return BuildURI(c.previewScheme, c.name, fileName)
}

// FileID strips every known data suffix from name until none is left.
// Compression suffixes are stripped only from FITS-family names, matching
// StorageName. The result is a fixed point: FileID(FileID(x)) == FileID(x).
func (c *Collection) FileID(name string) string {
	fitsFamily := IsFITS(name)
	for {
		trimmed := false
		for _, ext := range c.strip {
			if !fitsFamily && c.isCompression(ext) {
				continue
			}
			if len(name) > len(ext) && strings.HasSuffix(name, ext) {
				name = name[:len(name)-len(ext)]
				trimmed = true
			}
		}
		if !trimmed {
			return name
		}
	}
}

func (c *Collection) isCompression(ext string) bool {
	_, ok := c.compression[strings.TrimPrefix(ext, ".")]
	return ok
}

// StorageName removes compression and header markers from name. Markers are
// matched as whole dot-separated tokens, never the leading one.
func (c *Collection) StorageName(name string) string {
	tokens := strings.Split(name, ".")
	kept := tokens[:1]
	for _, tok := range tokens[1:] {
		if _, ok := c.compression[tok]; ok {
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, ".")
}

func (c *Collection) observationID(fileID string) string {
	if c.obsID != nil {
		if id := c.obsID(fileID); id != "" {
			return id
		}
	}
	return fileID
}

func (c *Collection) productIDFor(fileID string) string {
	if c.productID != nil {
		if id := c.productID(fileID); id != "" {
			return id
		}
	}
	return fileID
}

// BuildURI returns "{scheme}:{collection}/{fileName}".
func BuildURI(scheme, collection, fileName string) string {
	return scheme + ":" + collection + "/" + fileName
}

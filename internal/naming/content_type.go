package naming

import "strings"

// DefaultContentType is reported for names that match no known type.
const DefaultContentType = "application/octet-stream"

// ContentType classifies a file by name. It never touches the file.
func ContentType(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".header"), strings.HasSuffix(lower, ".txt"):
		return "text/plain"
	case IsFITS(lower), strings.HasSuffix(lower, ".fz"):
		return "application/fits"
	case IsHDF5(lower):
		return "application/x-hdf5"
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".gz"):
		return "application/gzip"
	}
	return DefaultContentType
}

package media

import (
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// maxListCount is the single-page listing limit; no deeper pagination is done.
const maxListCount = 1000

// ObjectDescriptor describes one stored object in a bucket listing.
type ObjectDescriptor struct {
	Name          string `json:"name"`
	Size          int64  `json:"size"`
	SizeFormatted string `json:"sizeFormatted"`
	ContentType   string `json:"contentType"`
	// UploadTimestamp is milliseconds since the Unix epoch.
	UploadTimestamp int64  `json:"uploadTimestamp"`
	URL             string `json:"url"`

	// Set only by backends that can resolve them.
	CID     string `json:"cid,omitempty"`
	IPFSURL string `json:"ipfsUrl,omitempty"`
	// Duration is the movie length in seconds, rounded to two decimals.
	Duration float64 `json:"duration,omitempty"`
}

// ListResult is the response body of a bucket listing.
type ListResult struct {
	Bucket    string             `json:"bucket"`
	FileCount int                `json:"fileCount"`
	Files     []ObjectDescriptor `json:"files"`
}

// FetchResult is an open backend download. The caller must close Body.
type FetchResult struct {
	Status int
	Header http.Header
	// ContentLength is -1 when unknown.
	ContentLength int64
	Body          io.ReadCloser
	URL           string
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatBytes renders a size with 1024-based units rounded to two decimals,
// e.g. 1048576 -> "1 MB", 1536 -> "1.5 KB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	i := 0
	for v := n; v >= 1024 && i < len(sizeUnits)-1; v /= 1024 {
		i++
	}
	value := math.Round(float64(n)/math.Pow(1024, float64(i))*100) / 100
	return strconv.FormatFloat(value, 'f', -1, 64) + " " + sizeUnits[i]
}

// encodeObjectPath escapes each segment of an object name, keeping the
// slashes between segments.
func encodeObjectPath(name string) string {
	parts := strings.Split(name, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

// objectURL joins a download base, bucket and object name.
func objectURL(base, bucket, name string) string {
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(bucket) + "/" + encodeObjectPath(name)
}

package media

import (
	"bytes"
	"encoding/binary"
	"math"
	"path"
	"strings"
)

// movieHeaderBytes is how much of a movie is read to find its mvhd box.
// Files written with the moov box first carry it well inside this window.
const movieHeaderBytes = 100 << 10

var movieExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".avi":  true,
	".mkv":  true,
	".webm": true,
	".m4v":  true,
}

func isMovie(name string) bool {
	return movieExtensions[strings.ToLower(path.Ext(name))]
}

// movieDuration reads the duration in seconds from the first mvhd box in
// data. It reports false when there is no usable box.
func movieDuration(data []byte) (float64, bool) {
	i := bytes.Index(data, []byte("mvhd"))
	if i < 0 || i+8 > len(data) {
		return 0, false
	}

	var timescale uint32
	var duration uint64
	// Version 1 widens the creation, modification and duration fields.
	if data[i+4] == 1 {
		if i+36 > len(data) {
			return 0, false
		}
		timescale = binary.BigEndian.Uint32(data[i+24:])
		duration = binary.BigEndian.Uint64(data[i+28:])
	} else {
		if i+24 > len(data) {
			return 0, false
		}
		timescale = binary.BigEndian.Uint32(data[i+16:])
		duration = uint64(binary.BigEndian.Uint32(data[i+20:]))
	}
	if timescale == 0 || duration == 0 {
		return 0, false
	}
	return math.Round(float64(duration)/float64(timescale)*100) / 100, true
}

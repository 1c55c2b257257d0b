package verify

import (
	"math"
	"regexp"
	"strconv"
	"time"

	"github.com/html2ndi/ndi-acceptor/envcheck"
	"github.com/html2ndi/ndi-acceptor/types"
)

var (
	gstWidthRe     = regexp.MustCompile(`width=\(int\)(\d+)`)
	gstHeightRe    = regexp.MustCompile(`height=\(int\)(\d+)`)
	gstFramerateRe = regexp.MustCompile(`framerate=\(fraction\)(\d+)/(\d+)`)
	gstInterlaceRe = regexp.MustCompile(`interlace-mode=\(string\)([\w-]+)`)
)

// GStreamer captures through the ndisrc element of gst-plugin-ndi and reads
// the negotiated caps printed by gst-launch -v.
type GStreamer struct{}

func (GStreamer) Name() string   { return "gstreamer" }
func (GStreamer) Binary() string { return envcheck.GStreamerBinary }

func (GStreamer) Args(source string, expected types.TestCase, duration time.Duration) []string {
	buffers := int(math.Ceil(float64(expected.FPS) * duration.Seconds()))
	if buffers < 1 {
		buffers = 1
	}
	return []string{
		"-v",
		"ndisrc", "ndi-name=" + source, "num-buffers=" + strconv.Itoa(buffers),
		"!", "ndisrcdemux", "name=demux",
		"demux.video", "!", "queue", "!", "fakesink",
	}
}

func (GStreamer) Parse(output string) Diagnostics {
	var d Diagnostics
	w := gstWidthRe.FindStringSubmatch(output)
	h := gstHeightRe.FindStringSubmatch(output)
	if w != nil && h != nil {
		width, okW := parseDimension(w[1])
		height, okH := parseDimension(h[1])
		if okW && okH {
			d.Resolution = &Resolution{Width: width, Height: height}
		}
	}
	if m := gstFramerateRe.FindStringSubmatch(output); m != nil {
		num, errN := strconv.ParseFloat(m[1], 64)
		den, errD := strconv.ParseFloat(m[2], 64)
		if errN == nil && errD == nil && den > 0 && num > 0 {
			fps := num / den
			d.FPS = &fps
		}
	}
	if m := gstInterlaceRe.FindStringSubmatch(output); m != nil {
		if m[1] == "progressive" {
			d.Scan = ScanProgressive
		} else {
			d.Scan = ScanInterlaced
		}
	}
	return d
}

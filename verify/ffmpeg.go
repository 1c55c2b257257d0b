package verify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/html2ndi/ndi-acceptor/envcheck"
	"github.com/html2ndi/ndi-acceptor/types"
)

// ffmpeg does not report the scan type in a fixed place, so the parse is a
// best-effort scan of the video stream descriptions. Progress lines such as
// "frame=  120 fps= 60" are never looked at.
var (
	ffmpegVideoLineRe  = regexp.MustCompile(`(?m)^.*\bStream #.*: Video:.*$`)
	ffmpegResolutionRe = regexp.MustCompile(`\b(\d+)x(\d+)\b`)
	ffmpegFPSRe        = regexp.MustCompile(`\b(\d+(?:\.\d+)?) fps(?:,|\s*$)`)
	ffmpegScanRe       = regexp.MustCompile(`(?i)\b(progressive|interlaced)\b`)
)

// FFmpeg captures through ffmpeg's libndi_newtek input device.
type FFmpeg struct{}

func (FFmpeg) Name() string   { return "ffmpeg" }
func (FFmpeg) Binary() string { return envcheck.FFmpegBinary }

func (FFmpeg) Args(source string, _ types.TestCase, duration time.Duration) []string {
	return []string{
		"-hide_banner",
		"-f", "libndi_newtek",
		"-i", source,
		"-t", formatSeconds(duration),
		"-f", "null",
		"-",
	}
}

func (FFmpeg) Parse(output string) Diagnostics {
	return ParseCaptureDiagnostics(output)
}

// ParseCaptureDiagnostics extracts resolution, frame rate and scan type from
// ffmpeg's video stream lines. The first plausible value of each wins.
func ParseCaptureDiagnostics(output string) Diagnostics {
	var d Diagnostics
	for _, line := range ffmpegVideoLineRe.FindAllString(output, -1) {
		line = strings.TrimRight(line, "\r")
		if d.Resolution == nil {
			for _, m := range ffmpegResolutionRe.FindAllStringSubmatch(line, -1) {
				w, okW := parseDimension(m[1])
				h, okH := parseDimension(m[2])
				if okW && okH {
					d.Resolution = &Resolution{Width: w, Height: h}
					break
				}
			}
		}
		if d.FPS == nil {
			if m := ffmpegFPSRe.FindStringSubmatch(line); m != nil {
				if fps, err := strconv.ParseFloat(m[1], 64); err == nil {
					d.FPS = &fps
				}
			}
		}
		if d.Scan == ScanUnknown {
			if m := ffmpegScanRe.FindStringSubmatch(line); m != nil {
				d.Scan = ScanMode(strings.ToLower(m[1]))
			}
		}
	}
	return d
}

// parseDimension rejects zero and zero-padded numbers so hex codec tags like
// 0x59565955 are not taken for a frame size.
func parseDimension(s string) (int, bool) {
	if s == "" || s[0] == '0' {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n > 65535 {
		return 0, false
	}
	return n, true
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

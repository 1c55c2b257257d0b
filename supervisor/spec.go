package supervisor

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/html2ndi/ndi-acceptor/types"
)

const (
	DefaultStatusHost = "127.0.0.1"
	StatusPath        = "/status"
)

// LaunchSpec is everything needed to start one worker instance.
type LaunchSpec struct {
	Binary    string
	URL       string
	Case      types.TestCase
	NDIName   string
	HTTPPort  int
	CachePath string
	LogPath   string
	ExtraArgs []string
}

// Validate reports the first problem that would prevent a launch.
func (s LaunchSpec) Validate() error {
	if s.Binary == "" {
		return errors.New("worker binary is required")
	}
	if err := s.Case.Validate(); err != nil {
		return err
	}
	if s.NDIName == "" {
		return errors.New("ndi name is required")
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("http port %d out of range", s.HTTPPort)
	}
	if s.CachePath == "" {
		return errors.New("cache path is required")
	}
	if s.LogPath == "" {
		return errors.New("log path is required")
	}
	return nil
}

// Args builds the worker command line. --interlaced is only passed for
// interlaced cases; its absence selects progressive output.
func (s LaunchSpec) Args() []string {
	url := s.URL
	if url == "" {
		url = "about:blank"
	}
	args := []string{
		"--url", url,
		"--width", strconv.Itoa(s.Case.Width),
		"--height", strconv.Itoa(s.Case.Height),
		"--fps", strconv.Itoa(s.Case.FPS),
		"--ndi-name", s.NDIName,
		"--http-port", strconv.Itoa(s.HTTPPort),
		"--cache-path", s.CachePath,
	}
	if !s.Case.Progressive {
		args = append(args, "--interlaced")
	}
	return append(args, s.ExtraArgs...)
}

// StatusURL is the worker's status endpoint.
func (s LaunchSpec) StatusURL() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(DefaultStatusHost, strconv.Itoa(s.HTTPPort)), StatusPath)
}

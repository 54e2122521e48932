package descriptor

import (
	"bufio"
	"io"
	"strings"
)

// Placeholders recognised in descriptor files.
const (
	PlaceholderToken = "__CLIMATE_IP_TOKEN__"
	PlaceholderHost  = "__CLIMATE_IP_HOST__"
)

// Substitutions are the values injected into a descriptor.
type Substitutions struct {
	Host  string
	Token string
}

// substituteReader replaces placeholders one line at a time.
// Placeholders never span a line break.
type substituteReader struct {
	src      *bufio.Reader
	replacer *strings.Replacer
	pending  []byte
	err      error
}

// Substitute wraps r so that every __CLIMATE_IP_TOKEN__ and
// __CLIMATE_IP_HOST__ is replaced with token and host.
func Substitute(r io.Reader, host, token string) io.Reader {
	return &substituteReader{
		src:      bufio.NewReader(r),
		replacer: strings.NewReplacer(PlaceholderToken, token, PlaceholderHost, host),
	}
}

// Read implements io.Reader.
func (s *substituteReader) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		line, err := s.src.ReadString('\n')
		if line != "" {
			s.pending = []byte(s.replacer.Replace(line))
		}
		s.err = err
	}

	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

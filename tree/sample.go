package tree

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"bitbucket.org/Davydov/gss/input"
)

// maxLine is the longest tree line accepted by the readers.
const maxLine = 256 * 1024 * 1024

// Sample reads a sample of trees from a file. The file can contain one
// newick tree per line or be a NEXUS trees block with an optional
// translate table. The first burn-in percent of the trees are skipped.
// The file is read lazily; Reset rewinds to the first tree after the
// burn-in.
type Sample struct {
	path      string
	total     int
	burnin    int
	translate map[string]string

	rc      io.ReadCloser
	scanner *bufio.Scanner
	next    *Tree
	err     error
	line    int
}

// OpenSample opens a tree sample and counts the trees.
func OpenSample(path string, burninPct int) (*Sample, error) {
	if burninPct < 0 || burninPct >= 100 {
		return nil, fmt.Errorf("burn-in percentage %d is outside of [0, 100)", burninPct)
	}
	s := &Sample{
		path:      path,
		translate: make(map[string]string),
	}
	if err := s.open(); err != nil {
		return nil, err
	}
	for s.scan() {
		s.total++
	}
	if s.err != nil {
		s.Close()
		return nil, s.err
	}
	s.burnin = s.total * burninPct / 100
	log.Debugf("%s: %d trees, %d burn-in", path, s.total, s.burnin)
	if err := s.Reset(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sample) open() error {
	if s.rc != nil {
		s.rc.Close()
	}
	rc, err := input.Open(s.path)
	if err != nil {
		return err
	}
	s.rc = rc
	s.scanner = bufio.NewScanner(rc)
	s.scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	s.next = nil
	s.err = nil
	s.line = 0
	return nil
}

// scanText advances to the next line containing a tree and returns the
// newick part of it.
func (s *Sample) scanText() (string, bool) {
	inTranslate := false
	for s.scanner.Scan() {
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		lower := strings.ToLower(line)
		switch {
		case inTranslate:
			s.addTranslation(line)
			if strings.HasSuffix(line, ";") {
				inTranslate = false
			}
		case lower == "translate" || strings.HasPrefix(lower, "translate "):
			inTranslate = true
			s.addTranslation(strings.TrimSpace(line[len("translate"):]))
			if strings.HasSuffix(line, ";") {
				inTranslate = false
			}
		case strings.HasPrefix(lower, "tree ") || strings.HasPrefix(lower, "utree "):
			i := assignment(line)
			if i < 0 {
				s.err = fmt.Errorf("%s:%d: malformed tree line", s.path, s.line)
				return "", false
			}
			return line[i+1:], true
		case strings.HasPrefix(line, "(") || strings.HasPrefix(line, "["):
			return line, true
		}
	}
	if err := s.scanner.Err(); err != nil {
		s.err = err
	}
	return "", false
}

// assignment returns the position of the first '=' outside of square
// bracket comments, e.g. in "tree STATE_0 [&lnP=-1.5] = [&R] (...);".
func assignment(line string) int {
	depth := 0
	for i, c := range line {
		switch c {
		case '[':
			depth++
		case ']':
			if depth > 0 {
				depth--
			}
		case '=':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// scan skips to the next tree without parsing it.
func (s *Sample) scan() bool {
	_, ok := s.scanText()
	return ok
}

// addTranslation parses translate entries like "1 name," or "2 'a b';".
func (s *Sample) addTranslation(line string) {
	for _, entry := range strings.Split(line, ",") {
		entry = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(entry), ";"))
		if entry == "" {
			continue
		}
		f := strings.Fields(entry)
		if len(f) < 2 {
			continue
		}
		s.translate[f[0]] = strings.Trim(strings.Join(f[1:], " "), "'\"")
	}
}

// Reset rewinds the sample to the first tree after the burn-in.
func (s *Sample) Reset() error {
	if err := s.open(); err != nil {
		return err
	}
	for i := 0; i < s.burnin; i++ {
		if !s.scan() {
			if s.err != nil {
				return s.err
			}
			return fmt.Errorf("%s: file changed while reading", s.path)
		}
	}
	return nil
}

// HasNext reports whether there is another tree. Parsing errors are
// returned by Next.
func (s *Sample) HasNext() bool {
	if s.next != nil {
		return true
	}
	if s.err != nil {
		return false
	}
	text, ok := s.scanText()
	if !ok {
		return false
	}
	t, err := ParseNewickString(text)
	if err != nil {
		s.err = fmt.Errorf("%s:%d: %w", s.path, s.line, err)
		return true
	}
	if len(s.translate) > 0 {
		for node := range t.Terminals() {
			if name, ok := s.translate[node.Name]; ok {
				node.Name = name
			}
		}
	}
	s.next = t
	return true
}

// Next returns the next tree.
func (s *Sample) Next() (*Tree, error) {
	if !s.HasNext() {
		if s.err != nil {
			return nil, s.err
		}
		return nil, io.EOF
	}
	if s.next == nil {
		return nil, s.err
	}
	t := s.next
	s.next = nil
	return t, nil
}

// Len returns the number of trees after the burn-in.
func (s *Sample) Len() int {
	return s.total - s.burnin
}

// Total returns the number of trees including the burn-in.
func (s *Sample) Total() int {
	return s.total
}

func (s *Sample) Close() error {
	if s.rc == nil {
		return nil
	}
	err := s.rc.Close()
	s.rc = nil
	return err
}

// ReadSample reads all trees after the burn-in.
func ReadSample(path string, burninPct int) ([]*Tree, error) {
	s, err := OpenSample(path, burninPct)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	trees := make([]*Tree, 0, s.Len())
	for s.HasNext() {
		t, err := s.Next()
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	return trees, s.err
}

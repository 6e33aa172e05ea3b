package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Writer writes a trace log.
type Writer struct {
	w     *bufio.Writer
	c     io.Closer
	nCols int
	buf   []byte
}

// NewWriter writes the header and returns the writer.
func NewWriter(w io.Writer, labels ...string) (*Writer, error) {
	tw := &Writer{w: bufio.NewWriter(w), nCols: len(labels)}
	if err := tw.header(labels); err != nil {
		return nil, err
	}
	return tw, nil
}

func (tw *Writer) header(labels []string) error {
	_, err := fmt.Fprintf(tw.w, "Sample\t%s\n", strings.Join(labels, "\t"))
	return err
}

// Create creates a trace log file. In the append mode the header is
// only written to an empty file.
func Create(path string, appendMode bool, labels ...string) (*Writer, error) {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if appendMode {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, err
	}
	tw := &Writer{w: bufio.NewWriter(f), c: f, nCols: len(labels)}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if st.Size() == 0 {
		if err := tw.header(labels); err != nil {
			f.Close()
			return nil, err
		}
	}
	return tw, nil
}

// Log writes a row.
func (tw *Writer) Log(sample int64, values ...float64) error {
	if len(values) != tw.nCols {
		return fmt.Errorf("expected %d values, got %d", tw.nCols, len(values))
	}
	tw.buf = strconv.AppendInt(tw.buf[:0], sample, 10)
	for _, v := range values {
		tw.buf = append(tw.buf, '\t')
		tw.buf = strconv.AppendFloat(tw.buf, v, 'g', -1, 64)
	}
	tw.buf = append(tw.buf, '\n')
	_, err := tw.w.Write(tw.buf)
	return err
}

func (tw *Writer) Flush() error {
	return tw.w.Flush()
}

func (tw *Writer) Close() error {
	err := tw.w.Flush()
	if tw.c != nil {
		if cerr := tw.c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// TruncateAfter removes the rows with sample number larger than sample,
// e.g. rows logged after the last checkpoint of an interrupted run.
func TruncateAfter(path string, sample int64) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.SplitAfter(string(data), "\n")
	var b strings.Builder
	header := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") || !header {
			if !strings.HasPrefix(line, "#") {
				header = true
			}
			b.WriteString(line)
			continue
		}
		f := line
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			f = line[:i]
		}
		s, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil || s > sample {
			continue
		}
		if !strings.HasSuffix(line, "\n") {
			line += "\n"
		}
		b.WriteString(line)
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

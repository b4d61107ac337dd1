// Package logs serves the process log file: paging, tailing, and a live
// follow over server-sent events.
package logs

import (
	"bufio"
	"errors"
	"io"
	"os"
	"strings"
)

// File reads a line-oriented log file that another writer appends to.
type File struct {
	Path string
}

func (f File) Exists() bool {
	info, err := os.Stat(f.Path)
	return err == nil && !info.IsDir()
}

func (f File) Size() int64 {
	info, err := os.Stat(f.Path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// TotalLines counts lines, including a final line without a newline.
func (f File) TotalLines() (int, error) {
	n := 0
	err := f.each(func(string) bool {
		n++
		return true
	})
	return n, err
}

// ReadLines returns up to limit lines starting at the 0-based line start, and
// whether more lines follow.
func (f File) ReadLines(start, limit int) ([]string, bool, error) {
	lines := []string{}
	hasMore := false
	i := 0
	err := f.each(func(line string) bool {
		defer func() { i++ }()
		if i < start {
			return true
		}
		if len(lines) == limit {
			hasMore = true
			return false
		}
		lines = append(lines, line)
		return true
	})
	return lines, hasMore, err
}

// Tail returns the last n lines in file order.
func (f File) Tail(n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	ring := make([]string, 0, n)
	next := 0
	err := f.each(func(line string) bool {
		if len(ring) < n {
			ring = append(ring, line)
			return true
		}
		ring[next] = line
		next = (next + 1) % n
		return true
	})
	if err != nil {
		return nil, err
	}
	return append(ring[next:], ring[:next]...), nil
}

func (f File) each(fn func(line string) bool) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	r := bufio.NewReader(file)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			if !fn(strings.TrimRight(line, "\r\n")) {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// follower hands out lines appended after offset. A partial last line is held
// back until its newline arrives; a file that shrank is read from the start.
type follower struct {
	path    string
	offset  int64
	partial string
}

func (fl *follower) readNew() ([]string, error) {
	file, err := os.Open(fl.path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < fl.offset {
		fl.offset, fl.partial = 0, ""
	}
	if info.Size() == fl.offset {
		return nil, nil
	}
	if _, err := file.Seek(fl.offset, io.SeekStart); err != nil {
		return nil, err
	}
	chunk, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}
	fl.offset += int64(len(chunk))

	text := fl.partial + string(chunk)
	parts := strings.Split(text, "\n")
	fl.partial = parts[len(parts)-1]
	lines := make([]string, 0, len(parts)-1)
	for _, p := range parts[:len(parts)-1] {
		lines = append(lines, strings.TrimRight(p, "\r"))
	}
	return lines, nil
}

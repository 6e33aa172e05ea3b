package tree

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type mode int

const (
	normal mode = iota
	length
)

func IsSpecial(c rune) bool {
	switch c {
	case '(', ')', ':', ';', ',', '[', '\'':
		return true
	}
	return false
}

// NewickSplit is a bufio.SplitFunc returning newick tokens. Comments in
// square brackets are skipped, quoted labels are returned without the
// quotes.
func NewickSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := 0
	// Skip leading spaces; and return 1-char tokens.
	for width := 0; start < len(data); start += width {
		var r rune
		r, width = utf8.DecodeRune(data[start:])
		switch r {
		case '[':
			end := bytes.IndexByte(data[start:], ']')
			if end < 0 {
				if atEOF {
					return 0, nil, errors.New("unterminated comment")
				}
				return start, nil, nil
			}
			// comments are dropped inside the split function, a nil
			// token after EOF would end the scan
			start += end + 1
			width = 0
			continue
		case '\'':
			end := bytes.IndexByte(data[start+1:], '\'')
			if end < 0 {
				if atEOF {
					return 0, nil, errors.New("unterminated quote")
				}
				return start, nil, nil
			}
			return start + end + 2, data[start+1 : start+1+end], nil
		}
		if IsSpecial(r) {
			return start + width, data[start : start+width], nil
		}
		if !unicode.IsSpace(r) {
			break
		}
	}
	if atEOF && len(data) <= start {
		return len(data), nil, nil
	}

	// Scan until space or special character.
	for width, i := 0, start; i < len(data); i += width {
		var r rune
		r, width = utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) || IsSpecial(r) {
			return i, data[start:i], nil
		}
	}
	// If we're at EOF, we have a final, non-empty, non-terminated word. Return it.
	if atEOF && len(data) > start {
		return len(data), data[start:], nil
	}
	// Request more data.
	return start, nil, nil
}

// ParseNewickString parses a single newick tree.
func ParseNewickString(s string) (*Tree, error) {
	return ParseNewick(strings.NewReader(s))
}

// ParseNewick parses a newick tree. Node heights are computed from the
// branch lengths.
func ParseNewick(rd io.Reader) (tree *Tree, err error) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	scanner.Split(NewickSplit)

	nodeId := 0

	node := NewNode(nil, nodeId)
	tree = &Tree{Node: node}
	nodeId++

	md := normal
	started := false

	for scanner.Scan() {
		text := scanner.Text()
		switch text {
		case "(":
			subNode := NewNode(nil, nodeId)
			nodeId++
			node.AddChild(subNode)
			node = subNode
			started = true

		case ",":
			if node.Parent == nil {
				return nil, errors.New("top level comma mismatch")
			}
			subNode := NewNode(nil, nodeId)
			nodeId++

			node.Parent.AddChild(subNode)
			node = subNode

		case ")":
			if node.Parent == nil {
				return nil, errors.New("brackets mismatch")
			}
			node = node.Parent
		case ":":
			md = length
		case ";":
			if node.Parent != nil {
				return nil, errors.New("brackets mismatch")
			}
			tree.finish()
			return tree, nil
		default:
			started = true
			switch md {
			case length:
				l, err := strconv.ParseFloat(text, 64)
				if err != nil {
					return nil, err
				}
				node.BranchLength = l
				md = normal
			default:
				node.Name = text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !started {
		return nil, io.EOF
	}
	if node.Parent != nil {
		return nil, errors.New("brackets mismatch")
	}
	tree.finish()
	return tree, nil
}

// finish numbers the leaves and computes node heights.
func (tree *Tree) finish() {
	tree.ClearCache()
	leafId := 0
	for node := range tree.Terminals() {
		node.LeafId = leafId
		leafId++
	}
	tree.UpdateHeights()
}

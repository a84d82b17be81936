// Package trace reads allocator trace files and replays them against a heap.
//
// A trace file starts with four header lines: suggested heap size, number of
// block ids, number of operations, and a weight. Each following line is one
// operation:
//
//	a <id> <size>    allocate size bytes and name the block id
//	r <id> <size>    reallocate block id to size bytes
//	f <id>           free block id
//
// Replay checks every result the heap hands back (alignment, overlap with
// other live blocks, payload integrity) and reports peak utilization.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// OpKind is the kind of a trace operation.
type OpKind byte

const (
	OpAlloc   OpKind = 'a'
	OpRealloc OpKind = 'r'
	OpFree    OpKind = 'f'
)

func (k OpKind) String() string {
	switch k {
	case OpAlloc:
		return "alloc"
	case OpRealloc:
		return "realloc"
	case OpFree:
		return "free"
	default:
		return fmt.Sprintf("OpKind(%q)", byte(k))
	}
}

// Op is one trace operation.
type Op struct {
	Kind OpKind
	ID   int
	Size uint32 // unused for OpFree
}

// Trace is a parsed trace file.
type Trace struct {
	SuggestedHeap int
	NumIDs        int
	Weight        int
	Ops           []Op
}

// ErrSyntax is matched by every *ParseError.
var ErrSyntax = errors.New("trace: syntax error")

// ParseError reports a malformed trace line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trace: line %d: %s", e.Line, e.Msg)
}

func (e *ParseError) Is(target error) bool { return target == ErrSyntax }

// ParseFile parses the trace file at path.
func ParseFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tr, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tr, nil
}

// Parse reads a trace. Blank lines are skipped. The operation count in the
// header must match the number of operation lines, and every id must be below
// the declared id count.
func Parse(r io.Reader) (*Trace, error) {
	sc := bufio.NewScanner(r)
	line := 0

	next := func() ([]string, bool) {
		for sc.Scan() {
			line++
			if fields := strings.Fields(sc.Text()); len(fields) > 0 {
				return fields, true
			}
		}
		return nil, false
	}

	var header [4]int
	names := [4]string{"suggested heap size", "id count", "op count", "weight"}
	for i := range header {
		fields, ok := next()
		if !ok {
			if err := sc.Err(); err != nil {
				return nil, err
			}
			return nil, &ParseError{Line: line, Msg: "missing " + names[i]}
		}
		v, err := strconv.Atoi(fields[0])
		if err != nil || v < 0 || len(fields) != 1 {
			return nil, &ParseError{Line: line, Msg: fmt.Sprintf("bad %s %q", names[i], strings.Join(fields, " "))}
		}
		header[i] = v
	}

	tr := &Trace{
		SuggestedHeap: header[0],
		NumIDs:        header[1],
		Weight:        header[3],
		Ops:           make([]Op, 0, header[2]),
	}

	for {
		fields, ok := next()
		if !ok {
			break
		}
		op, err := parseOp(fields, tr.NumIDs)
		if err != nil {
			return nil, &ParseError{Line: line, Msg: err.Error()}
		}
		tr.Ops = append(tr.Ops, op)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(tr.Ops) != header[2] {
		return nil, &ParseError{Line: line, Msg: fmt.Sprintf("header declares %d ops, found %d", header[2], len(tr.Ops))}
	}
	return tr, nil
}

func parseOp(fields []string, numIDs int) (Op, error) {
	if len(fields[0]) != 1 {
		return Op{}, fmt.Errorf("unknown operation %q", fields[0])
	}
	op := Op{Kind: OpKind(fields[0][0])}

	want := 3
	switch op.Kind {
	case OpAlloc, OpRealloc:
	case OpFree:
		want = 2
	default:
		return Op{}, fmt.Errorf("unknown operation %q", fields[0])
	}
	if len(fields) != want {
		return Op{}, fmt.Errorf("%s takes %d fields, got %d", op.Kind, want, len(fields))
	}

	id, err := strconv.Atoi(fields[1])
	if err != nil || id < 0 || id >= numIDs {
		return Op{}, fmt.Errorf("bad id %q (id count %d)", fields[1], numIDs)
	}
	op.ID = id

	if want == 3 {
		size, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return Op{}, fmt.Errorf("bad size %q", fields[2])
		}
		op.Size = uint32(size)
	}
	return op, nil
}

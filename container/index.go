package container

import (
	"errors"
	"io"
	"sort"

	"github.com/justapithecus/sieve/types"
)

// boundaryIndex lists the offsets at which an independent reader can start.
//
// The scan reads only frame or block headers. It stops at the first header
// that cannot be trusted; that offset is kept as the last boundary so the
// unreadable tail lands in the final segment and surfaces as corruption to
// whichever cursor reaches it.
type boundaryIndex struct {
	offsets []int64
	size    int64
	// stopped is the offset where the scan gave up, or -1 if it reached the end.
	stopped int64
}

func scanBoundaries(r io.ReaderAt, size int64, compressed bool) (*boundaryIndex, error) {
	idx := &boundaryIndex{size: size, stopped: -1}

	var off int64
	for off < size {
		next, ok, err := nextBoundary(r, off, size, compressed)
		if err != nil {
			return nil, err
		}
		idx.offsets = append(idx.offsets, off)
		if !ok {
			idx.stopped = off
			break
		}
		off = next
	}
	return idx, nil
}

// nextBoundary returns the offset following the unit at off.
// ok is false if the unit header is unreadable or overruns the container.
func nextBoundary(r io.ReaderAt, off, size int64, compressed bool) (int64, bool, error) {
	if compressed {
		var h [BlockHeaderSize]byte
		if off+BlockHeaderSize > size {
			return 0, false, nil
		}
		if _, err := r.ReadAt(h[:], off); err != nil && !errors.Is(err, io.EOF) {
			return 0, false, err
		}
		n, err := parseBlockHeader(h[:])
		if err != nil || off+n > size {
			return 0, false, nil
		}
		return off + n, true, nil
	}

	var h [FrameHeaderSize]byte
	if off+FrameHeaderSize > size {
		return 0, false, nil
	}
	if _, err := r.ReadAt(h[:], off); err != nil && !errors.Is(err, io.EOF) {
		return 0, false, err
	}
	n, _ := parseFrameHeader(h)
	if n > MaxPayloadSize {
		return 0, false, nil
	}
	end := off + FrameHeaderSize + int64(n)
	if end > size {
		return 0, false, nil
	}
	return end, true, nil
}

// contains reports whether off is a known boundary.
func (idx *boundaryIndex) contains(off int64) bool {
	i := sort.Search(len(idx.offsets), func(i int) bool { return idx.offsets[i] >= off })
	return i < len(idx.offsets) && idx.offsets[i] == off
}

// nearest returns the boundary closest to target that lies strictly between
// lo and the container end, preferring the later boundary on ties.
func (idx *boundaryIndex) nearest(target, lo int64) (int64, bool) {
	i := sort.Search(len(idx.offsets), func(i int) bool { return idx.offsets[i] >= target })

	best, found := int64(0), false
	consider := func(j int) {
		if j < 0 || j >= len(idx.offsets) {
			return
		}
		b := idx.offsets[j]
		if b <= lo || b >= idx.size {
			return
		}
		if !found || abs64(b-target) < abs64(best-target) ||
			(abs64(b-target) == abs64(best-target) && b > best) {
			best, found = b, true
		}
	}
	consider(i - 1)
	consider(i)
	if !found {
		// Neighbours were at or before lo; take the first boundary after it.
		j := sort.Search(len(idx.offsets), func(j int) bool { return idx.offsets[j] > lo })
		consider(j)
	}
	return best, found
}

// segments partitions the container into at most n segments.
func (idx *boundaryIndex) segments(n int) []types.Segment {
	if len(idx.offsets) == 0 {
		return nil
	}
	if n < 1 {
		n = 1
	}

	first := idx.offsets[0]
	total := idx.size - first
	cuts := []int64{first}
	for i := 1; i < n; i++ {
		target := first + total*int64(i)/int64(n)
		b, ok := idx.nearest(target, cuts[len(cuts)-1])
		if !ok {
			break
		}
		cuts = append(cuts, b)
	}

	segs := make([]types.Segment, 0, len(cuts))
	for i, start := range cuts {
		end := idx.size
		if i+1 < len(cuts) {
			end = cuts[i+1]
		}
		segs = append(segs, types.Segment{Index: i, Start: start, End: end})
	}
	return segs
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

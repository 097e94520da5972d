//nolint:revive // types is a common Go package naming convention
package types

import "fmt"

// Segment is a contiguous, independently decodable span of a container.
// Start is inclusive and End is exclusive. Segments returned for one
// container partition it without gaps or overlaps, in ascending order.
type Segment struct {
	Index int   `json:"index"`
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Len returns the byte length of the segment.
func (s Segment) Len() int64 {
	return s.End - s.Start
}

// Contains reports whether a record at pos belongs to the segment.
func (s Segment) Contains(pos Position) bool {
	return pos.Offset >= s.Start && pos.Offset < s.End
}

func (s Segment) String() string {
	return fmt.Sprintf("segment %d [%d, %d)", s.Index, s.Start, s.End)
}

// Entry is one unit of derived output appended to a sink.
type Entry struct {
	// Stage is the name of the stage that produced the entry.
	Stage string `json:"stage" msgpack:"stage"`
	// Pos is the position of the source record.
	Pos Position `json:"pos" msgpack:"pos"`
	// Data is the serialized value.
	Data []byte `json:"data" msgpack:"data"`
}

// Size returns the approximate in-memory size of the entry in bytes.
func (e *Entry) Size() int64 {
	return int64(len(e.Data) + len(e.Stage) + 16)
}

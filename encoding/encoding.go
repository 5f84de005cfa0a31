// Package encoding defines the wire-level block model for node response
// streams and the codec that turns raw payloads into typed blocks. A node
// streams back an ordered sequence of blocks, each of which is either a data
// block (schema + rows) or a metadata-only block (execution stats). The
// presence of a schema discriminates the two.
package encoding

import (
	"time"

	"github.com/getlantern/errors"
	"gopkg.in/vmihailenco/msgpack.v2"
)

// Row is one materialized result row. Values are whatever the codec produced
// (numbers, strings, bools, byte slices).
type Row []interface{}

// Column describes one column of a data block.
type Column struct {
	Name string
	Type string
}

func (c Column) Equals(o Column) bool {
	return c.Name == o.Name && c.Type == o.Type
}

// Schema is the ordered set of columns carried by a data block.
type Schema struct {
	Columns []Column
}

func (s *Schema) Equals(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Columns) != len(o.Columns) {
		return false
	}
	for i, col := range s.Columns {
		if !col.Equals(o.Columns[i]) {
			return false
		}
	}
	return true
}

// ColumnIndex returns the index of the named column, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, col := range s.Columns {
		if col.Name == name {
			return i
		}
	}
	return -1
}

// Exception is an error report raised by a node during query execution and
// shipped back inside a metadata block.
type Exception struct {
	Code    int
	Message string
}

// Stats carries one node's execution metadata.
type Stats struct {
	DocsScanned              int64
	EntriesScannedInFilter   int64
	EntriesScannedPostFilter int64
	SegmentsQueried          int64
	SegmentsProcessed        int64
	SegmentsMatched          int64
	TotalDocs                int64
	TimeUsed                 time.Duration
	Exceptions               []Exception
	TraceInfo                map[string]string
}

// Block is one unit of a node's response stream. A nil Schema marks a
// metadata-only block.
type Block struct {
	Schema *Schema
	Rows   []Row
	Stats  *Stats
}

// IsData indicates whether this block carries rows (as opposed to being
// metadata-only).
func (b *Block) IsData() bool {
	return b.Schema != nil
}

// Decode deserializes a wire payload into a Block.
func Decode(payload []byte) (*Block, error) {
	block := &Block{}
	if err := msgpack.Unmarshal(payload, block); err != nil {
		return nil, errors.New("unable to decode block: %v", err)
	}
	return block, nil
}

// Encode serializes a Block for the wire.
func Encode(block *Block) ([]byte, error) {
	payload, err := msgpack.Marshal(block)
	if err != nil {
		return nil, errors.New("unable to encode block: %v", err)
	}
	return payload, nil
}

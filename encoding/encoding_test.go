package encoding

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBlockTagging(t *testing.T) {
	data := &Block{
		Schema: &Schema{Columns: []Column{{Name: "dim", Type: "string"}, {Name: "val", Type: "double"}}},
		Rows:   []Row{{"a", float64(1)}, {"b", float64(2)}},
	}
	assert.True(t, data.IsData())

	metadata := &Block{
		Stats: &Stats{DocsScanned: 1234, TimeUsed: 5 * time.Millisecond},
	}
	assert.False(t, metadata.IsData())

	payload, err := Encode(data)
	if !assert.NoError(t, err) {
		return
	}
	decoded, err := Decode(payload)
	if !assert.NoError(t, err) {
		return
	}
	assert.True(t, decoded.IsData())
	assert.True(t, decoded.Schema.Equals(data.Schema))
	if assert.Len(t, decoded.Rows, 2) {
		assert.EqualValues(t, "a", decoded.Rows[0][0])
		assert.EqualValues(t, 1, decoded.Rows[0][1])
	}

	payload, err = Encode(metadata)
	if !assert.NoError(t, err) {
		return
	}
	decoded, err = Decode(payload)
	if !assert.NoError(t, err) {
		return
	}
	assert.False(t, decoded.IsData())
	if assert.NotNil(t, decoded.Stats) {
		assert.EqualValues(t, 1234, decoded.Stats.DocsScanned)
		assert.Equal(t, 5*time.Millisecond, decoded.Stats.TimeUsed)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := Decode([]byte("this is not msgpack"))
	assert.Error(t, err)
}

func TestSchemaColumnIndex(t *testing.T) {
	schema := &Schema{Columns: []Column{{Name: "a"}, {Name: "b"}}}
	assert.Equal(t, 0, schema.ColumnIndex("a"))
	assert.Equal(t, 1, schema.ColumnIndex("b"))
	assert.Equal(t, -1, schema.ColumnIndex("c"))
}

func TestSchemaEquals(t *testing.T) {
	a := &Schema{Columns: []Column{{Name: "a", Type: "long"}}}
	b := &Schema{Columns: []Column{{Name: "a", Type: "long"}}}
	c := &Schema{Columns: []Column{{Name: "a", Type: "string"}}}
	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
	assert.False(t, a.Equals(nil))
}

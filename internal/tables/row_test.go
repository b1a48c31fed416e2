package tables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRowAccessors(t *testing.T) {
	row := Row{"id": float64(3), "code": "T7", "credit": "2.5", "capacity": float64(50), "note": nil}

	assert.Equal(t, "3", row.Key("id"))
	assert.Equal(t, "T7", row.Key("code"))
	assert.Equal(t, "", row.Key("missing"))
	assert.Equal(t, 2.5, row.Float("credit"))
	assert.Equal(t, 50, row.Int("capacity"))
	assert.Equal(t, 0, row.Int("code"))
	assert.True(t, row.Has("id"))
	assert.False(t, row.Has("note"))
	assert.Equal(t, "", row.String("note"))
}

func TestIndexJoinsNumericAndStringKeys(t *testing.T) {
	idx := Index([]Row{{"id": float64(1), "name": "A101"}, {"id": "2", "name": "B202"}}, "id")
	assert.Equal(t, "A101", idx[Row{"classroom_id": "1"}.Key("classroom_id")].String("name"))
	assert.Equal(t, "B202", idx[Row{"classroom_id": float64(2)}.Key("classroom_id")].String("name"))
}

package temporal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Bwilkie91/camera/internal/models"
)

func push(f *Filter, kinds ...models.EventKind) models.EventKind {
	var last models.EventKind
	for _, k := range kinds {
		last = f.Push(k, false)
	}
	return last
}

func TestFilter_Majority(t *testing.T) {
	tests := []struct {
		name  string
		votes []models.EventKind
		want  models.EventKind
	}{
		{"motion none motion", []models.EventKind{models.KindMotion, models.KindNone, models.KindMotion}, models.KindMotion},
		{"no strict majority", []models.EventKind{models.KindMotion, models.KindLoitering, models.KindNone}, models.KindNone},
		{"majority of none", []models.EventKind{models.KindNone, models.KindLoitering, models.KindNone}, models.KindNone},
		{"two of two", []models.EventKind{models.KindLineCross, models.KindLineCross}, models.KindLineCross},
		{"one of two", []models.EventKind{models.KindNone, models.KindLoitering}, models.KindNone},
		{"oldest vote drops out", []models.EventKind{models.KindMotion, models.KindMotion, models.KindNone, models.KindLoitering}, models.KindNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, push(NewFilter(), tt.votes...))
		})
	}
}

func TestFilter_SingleEntryPassesThrough(t *testing.T) {
	f := NewFilter()
	assert.Equal(t, models.KindMotion, f.Push(models.KindMotion, false))
}

func TestFilter_PersonDownOverrides(t *testing.T) {
	f := NewFilter()
	push(f, models.KindMotion, models.KindMotion)

	assert.Equal(t, models.KindFall, f.Push(models.KindMotion, true))
	// The raw candidate still votes on later cycles
	assert.Equal(t, []models.EventKind{models.KindMotion, models.KindMotion, models.KindMotion}, f.Window())
}

func TestFilter_WindowBounded(t *testing.T) {
	f := NewFilter()
	push(f, models.KindNone, models.KindNone, models.KindNone, models.KindNone, models.KindMotion)
	assert.Len(t, f.Window(), WindowSize)

	f.Reset()
	assert.Empty(t, f.Window())
}

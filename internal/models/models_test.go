package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseUnmarshalPrice(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    float64
		wantErr bool
	}{
		{"number", `{"title":"Algebra","price":500}`, 500, false},
		{"numeric string", `{"title":"Algebra","price":"499.5"}`, 499.5, false},
		{"padded string", `{"title":"Algebra","price":" 10 "}`, 10, false},
		{"absent", `{"title":"Algebra"}`, 0, false},
		{"null", `{"title":"Algebra","price":null}`, 0, false},
		{"word", `{"title":"Algebra","price":"free"}`, 0, true},
		{"object", `{"title":"Algebra","price":{}}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Course
			err := json.Unmarshal([]byte(tt.body), &c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "Algebra", c.Title)
			assert.Equal(t, tt.want, c.Price)
		})
	}
}

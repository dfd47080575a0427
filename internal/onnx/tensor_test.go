package onnx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewImageTensor(t *testing.T) {
	data := make([]float32, 3*4*5)
	tensor, err := NewImageTensor(data, 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	require.NoError(t, VerifyImageTensor(tensor))

	_, err = NewImageTensor(nil, 3, 4, 5)
	require.Error(t, err)
	_, err = NewImageTensor(make([]float32, 7), 3, 4, 5)
	require.Error(t, err)
}

func TestValidateNCHW(t *testing.T) {
	require.NoError(t, ValidateNCHW([]int64{1, 3, 640, 640}))
	require.Error(t, ValidateNCHW([]int64{1, 3, 640}))
	require.Error(t, ValidateNCHW([]int64{1, 3, -1, 640}))
}

func TestVerifyImageTensorMismatch(t *testing.T) {
	err := VerifyImageTensor(Tensor{Data: make([]float32, 10), Shape: []int64{1, 3, 2, 2}})
	require.Error(t, err)
}

func TestParseHeadLayout(t *testing.T) {
	tests := []struct {
		name    string
		shape   []int64
		classes int
		want    HeadLayout
		wantErr bool
	}{
		{"yolov8 coco", []int64{1, 84, 8400}, 80, HeadLayout{Features: 84, Anchors: 8400}, false},
		{"transposed", []int64{1, 8400, 84}, 80, HeadLayout{Features: 84, Anchors: 8400, Transposed: true}, false},
		{"unknown classes", []int64{1, 14, 2100}, 0, HeadLayout{Features: 14, Anchors: 2100}, false},
		{"unknown classes transposed", []int64{1, 2100, 14}, 0, HeadLayout{Features: 14, Anchors: 2100, Transposed: true}, false},
		{"few anchors known classes", []int64{1, 84, 3}, 80, HeadLayout{Features: 84, Anchors: 3}, false},
		{"rank 4", []int64{1, 1, 84, 8400}, 80, HeadLayout{}, true},
		{"batch 2", []int64{2, 84, 8400}, 80, HeadLayout{}, true},
		{"too small", []int64{1, 4, 4}, 0, HeadLayout{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHeadLayout(tt.shape, tt.classes)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHeadLayoutAt(t *testing.T) {
	// features 5, anchors 2
	data := []float32{0, 1, 10, 11, 20, 21, 30, 31, 40, 41}
	h := HeadLayout{Features: 5, Anchors: 2}
	assert.InDelta(t, 21, h.At(data, 1, 2), 1e-6)
	assert.Equal(t, 1, h.Classes())

	tr := HeadLayout{Features: 5, Anchors: 2, Transposed: true}
	assert.InDelta(t, 7, tr.At([]float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 1, 2), 1e-6)
}

package onnx

import (
	"errors"
	"fmt"
)

// Tensor is a float32 buffer prepared for ONNX input. Image data is NCHW.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewImageTensor builds a single-image tensor with shape [1, C, H, W].
// data must hold C*H*W values in CHW order.
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if c <= 0 || h <= 0 || w <= 0 {
		return Tensor{}, fmt.Errorf("invalid image dims: c=%d h=%d w=%d", c, h, w)
	}
	expected := c * h * w
	if len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// ValidateRank4 ensures a shape has four strictly positive dimensions.
func ValidateRank4(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// GridDims reads (H, W) from a channels-last [B, H, W, C] output shape and checks
// that C equals channels and that data holds exactly one batch item.
func GridDims(shape []int64, dataLen, channels int) (int, int, error) {
	if err := ValidateRank4(shape); err != nil {
		return 0, 0, err
	}
	if shape[0] != 1 {
		return 0, 0, fmt.Errorf("expected batch size 1, got %d", shape[0])
	}
	if int(shape[3]) != channels {
		return 0, 0, fmt.Errorf("expected %d channels, got %d (shape %v)", channels, shape[3], shape)
	}
	h, w := int(shape[1]), int(shape[2])
	if dataLen != h*w*channels {
		return 0, 0, fmt.Errorf("output data length %d != expected %d for shape %v", dataLen, h*w*channels, shape)
	}
	return h, w, nil
}

// TensorStats returns min, max and mean for debug output.
func TensorStats(data []float32) (float32, float32, float32) {
	if len(data) == 0 {
		return 0, 0, 0
	}
	minVal, maxVal := data[0], data[0]
	var sum float64
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
		sum += float64(v)
	}
	return minVal, maxVal, float32(sum / float64(len(data)))
}

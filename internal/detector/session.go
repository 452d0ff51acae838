package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/MeKo-Tech/formocr/internal/mempool"
	"github.com/MeKo-Tech/formocr/internal/models"
	"github.com/MeKo-Tech/formocr/internal/onnx"
	"github.com/MeKo-Tech/formocr/internal/utils"
	"github.com/yalue/onnxruntime_go"
)

// Output slots in the order Forward consumes them.
const (
	slotBoxes = iota
	slotObjectness
	slotClassLogits
	numOutputs
)

// OnnxHead runs the exported detector through ONNX Runtime.
type OnnxHead struct {
	config      Config
	session     *onnxruntime_go.DynamicAdvancedSession
	inputInfo   onnxruntime_go.InputOutputInfo
	outputInfos [numOutputs]onnxruntime_go.InputOutputInfo
	mu          sync.RWMutex
}

// OnnxHeadFactory returns a HeadFactory that loads cfg.ModelPath.
func OnnxHeadFactory(cfg Config) HeadFactory {
	return func() (Head, error) {
		h, err := NewOnnxHead(cfg)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// NewOnnxHead loads the detector model. Every load failure is a *ModelError.
func NewOnnxHead(cfg Config) (*OnnxHead, error) {
	if err := models.ValidateModelExists(cfg.ModelPath); err != nil {
		return nil, &ModelError{Path: cfg.ModelPath, Err: err}
	}

	slog.Debug("Initializing detector head",
		"model_path", cfg.ModelPath,
		"gpu_enabled", cfg.GPU.UseGPU,
		"num_threads", cfg.NumThreads)

	if err := onnx.EnsureEnvironment(cfg.GPU.UseGPU); err != nil {
		return nil, &ModelError{Path: cfg.ModelPath, Err: err}
	}

	inputInfo, outputInfos, err := validateModelInfo(cfg.ModelPath)
	if err != nil {
		return nil, &ModelError{Path: cfg.ModelPath, Err: err}
	}

	session, err := createSession(cfg, inputInfo, outputInfos)
	if err != nil {
		return nil, &ModelError{Path: cfg.ModelPath, Err: err}
	}

	h := &OnnxHead{
		config:      cfg,
		session:     session,
		inputInfo:   inputInfo,
		outputInfos: outputInfos,
	}

	if cfg.WarmupIterations > 0 {
		if err := h.Warmup(cfg.WarmupIterations); err != nil {
			slog.Warn("detector warmup failed", "error", err)
		}
	}

	slog.Debug("Detector head initialized", "input", inputInfo.Name)
	return h, nil
}

// validateModelInfo checks for one rank-4 input and the three head outputs,
// returning the outputs ordered boxes, objectness, class logits.
func validateModelInfo(modelPath string) (onnxruntime_go.InputOutputInfo,
	[numOutputs]onnxruntime_go.InputOutputInfo, error,
) {
	var ordered [numOutputs]onnxruntime_go.InputOutputInfo

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return onnxruntime_go.InputOutputInfo{}, ordered, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return onnxruntime_go.InputOutputInfo{}, ordered, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return onnxruntime_go.InputOutputInfo{}, ordered,
			fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}
	if len(outputs) != numOutputs {
		return onnxruntime_go.InputOutputInfo{}, ordered, fmt.Errorf("expected %d outputs, got %d", numOutputs, len(outputs))
	}

	names := make([]string, len(outputs))
	for i, o := range outputs {
		names[i] = o.Name
	}
	order := resolveOutputOrder(names)
	for slot, idx := range order {
		ordered[slot] = outputs[idx]
	}
	return inputs[0], ordered, nil
}

// resolveOutputOrder maps each slot to an index in names. Outputs are matched by
// their conventional names; if any name is missing the graph order is used.
func resolveOutputOrder(names []string) [numOutputs]int {
	want := [numOutputs]string{OutputBoxes, OutputObjectness, OutputClassLogits}
	var order [numOutputs]int
	for slot, name := range want {
		idx := slices.Index(names, name)
		if idx < 0 {
			return [numOutputs]int{0, 1, 2}
		}
		order[slot] = idx
	}
	return order
}

// createSession creates the ONNX session with the given configuration.
func createSession(cfg Config, inputInfo onnxruntime_go.InputOutputInfo,
	outputInfos [numOutputs]onnxruntime_go.InputOutputInfo,
) (*onnxruntime_go.DynamicAdvancedSession, error) {
	sessionOptions, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := sessionOptions.Destroy(); err != nil {
			slog.Warn("failed to destroy session options", "error", err)
		}
	}()

	if err := onnx.ConfigureSessionForGPU(sessionOptions, cfg.GPU); err != nil {
		slog.Warn("GPU unavailable, running detector on CPU", "error", err)
	}

	if cfg.NumThreads > 0 {
		if err := sessionOptions.SetIntraOpNumThreads(cfg.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	outputNames := make([]string, 0, numOutputs)
	for _, o := range outputInfos {
		outputNames = append(outputNames, o.Name)
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputInfo.Name}, outputNames, sessionOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}

// Forward runs one inference and copies the three outputs into a GridOutput.
func (h *OnnxHead) Forward(ctx context.Context, img PreparedImage) (GridOutput, error) {
	if err := ctx.Err(); err != nil {
		return GridOutput{}, err
	}
	if img.Image == nil {
		return GridOutput{}, errors.New("prepared image is nil")
	}

	b := img.Image.Bounds()
	buf := mempool.GetFloat32(3 * b.Dx() * b.Dy())
	defer mempool.PutFloat32(buf)

	data, w, ht, err := utils.NormalizeImageInto(img.Image, buf)
	if err != nil {
		return GridOutput{}, fmt.Errorf("failed to normalize image: %w", err)
	}
	tensor, err := onnx.NewImageTensor(data, 3, ht, w)
	if err != nil {
		return GridOutput{}, fmt.Errorf("failed to create tensor: %w", err)
	}
	if slog.Default().Enabled(ctx, slog.LevelDebug) {
		lo, hi, mean := onnx.TensorStats(tensor.Data)
		slog.Debug("detector input", "shape", tensor.Shape, "min", lo, "max", hi, "mean", mean)
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.session == nil {
		return GridOutput{}, errors.New("detector session is nil")
	}

	inputTensor, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return GridOutput{}, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := inputTensor.Destroy(); err != nil {
			slog.Warn("failed to destroy input tensor", "error", err)
		}
	}()

	// nil outputs are allocated by ONNX Runtime
	outputs := make([]onnxruntime_go.Value, numOutputs)
	if err := h.session.Run([]onnxruntime_go.Value{inputTensor}, outputs); err != nil {
		return GridOutput{}, fmt.Errorf("inference failed: %w", err)
	}
	defer destroyValues(outputs)

	return gridFromOutputs(outputs)
}

func destroyValues(values []onnxruntime_go.Value) {
	for _, v := range values {
		if v == nil {
			continue
		}
		if err := v.Destroy(); err != nil {
			slog.Warn("failed to destroy output tensor", "error", err)
		}
	}
}

// gridFromOutputs validates shapes and copies tensor data out of ONNX-owned memory.
func gridFromOutputs(outputs []onnxruntime_go.Value) (GridOutput, error) {
	floats := make([][]float32, numOutputs)
	shapes := make([][]int64, numOutputs)
	for i, v := range outputs {
		ft, ok := v.(*onnxruntime_go.Tensor[float32])
		if !ok {
			return GridOutput{}, fmt.Errorf("output %d: expected float32 tensor, got %T", i, v)
		}
		floats[i] = ft.GetData()
		shapes[i] = ft.GetShape()
	}

	bh, bw, err := onnx.GridDims(shapes[slotBoxes], len(floats[slotBoxes]), 4)
	if err != nil {
		return GridOutput{}, fmt.Errorf("boxes output: %w", err)
	}
	oh, ow, err := onnx.GridDims(shapes[slotObjectness], len(floats[slotObjectness]), 1)
	if err != nil {
		return GridOutput{}, fmt.Errorf("objectness output: %w", err)
	}
	clsShape := shapes[slotClassLogits]
	if len(clsShape) != 4 {
		return GridOutput{}, fmt.Errorf("class logits output: shape rank %d != 4", len(clsShape))
	}
	ch, cw, err := onnx.GridDims(clsShape, len(floats[slotClassLogits]), int(clsShape[3]))
	if err != nil {
		return GridOutput{}, fmt.Errorf("class logits output: %w", err)
	}
	if bh != oh || bh != ch || bw != ow || bw != cw {
		return GridOutput{}, fmt.Errorf("output grids disagree: boxes %dx%d, objectness %dx%d, classes %dx%d",
			bw, bh, ow, oh, cw, ch)
	}

	return GridOutput{
		GridW:       bw,
		GridH:       bh,
		NumClasses:  int(clsShape[3]),
		Objectness:  slices.Clone(floats[slotObjectness]),
		Boxes:       slices.Clone(floats[slotBoxes]),
		ClassLogits: slices.Clone(floats[slotClassLogits]),
	}, nil
}

// Close releases the ONNX session. The runtime environment stays initialized
// for the rest of the process.
func (h *OnnxHead) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session != nil {
		if err := h.session.Destroy(); err != nil {
			slog.Warn("failed to destroy detector session", "error", err)
		}
		h.session = nil
	}
	return nil
}

// GetModelInfo returns information about the loaded detection model.
func (h *OnnxHead) GetModelInfo() map[string]interface{} {
	h.mu.RLock()
	defer h.mu.RUnlock()

	outputs := make([]map[string]interface{}, 0, numOutputs)
	for _, o := range h.outputInfos {
		outputs = append(outputs, map[string]interface{}{
			"name":  o.Name,
			"shape": o.Dimensions,
		})
	}
	return map[string]interface{}{
		"model_path":  h.config.ModelPath,
		"input_name":  h.inputInfo.Name,
		"input_shape": h.inputInfo.Dimensions,
		"outputs":     outputs,
		"num_threads": h.config.NumThreads,
		"gpu": map[string]interface{}{
			"enabled":            h.config.GPU.UseGPU,
			"device_id":          h.config.GPU.DeviceID,
			"memory_limit_bytes": h.config.GPU.GPUMemLimit,
		},
	}
}

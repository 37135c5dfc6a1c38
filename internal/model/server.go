package model

import (
	"image"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// InitRuntime loads the ONNX Runtime shared library once per process.
func InitRuntime(sharedLibrary string) error {
	if ort.IsInitialized() {
		return nil
	}
	if sharedLibrary != "" {
		ort.SetSharedLibraryPath(sharedLibrary)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize ONNX environment")
	}
	return nil
}

// DestroyRuntime releases the ONNX Runtime environment.
func DestroyRuntime() error {
	if !ort.IsInitialized() {
		return nil
	}
	return ort.DestroyEnvironment()
}

// Server runs a YOLO detector exported to ONNX.
type Server struct {
	session  *ort.DynamicAdvancedSession
	metadata Metadata
}

// NewServer opens modelPath. The runtime must already be initialized.
// intraOpThreads <= 0 leaves the ONNX Runtime default.
func NewServer(modelPath string, intraOpThreads int) (*Server, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read model inputs and outputs")
	}
	if len(inputs) != 1 || len(outputs) < 1 {
		return nil, errors.Errorf("expected one input and at least one output, got %d and %d", len(inputs), len(outputs))
	}

	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return nil, errors.Errorf("input %q must be float32, got %v", in.Name, in.DataType)
	}
	inputShape, outputShape := []int64(in.Dimensions), []int64(out.Dimensions)
	if len(inputShape) != 4 || inputShape[1] != 3 || inputShape[2] <= 0 || inputShape[3] <= 0 {
		return nil, errors.Errorf("input shape %v is not a static 1x3xHxW image", inputShape)
	}
	for _, d := range outputShape {
		if d <= 0 {
			return nil, errors.Errorf("output shape %v must be static", outputShape)
		}
	}

	classes, err := readSidecar(modelPath)
	if err != nil {
		return nil, err
	}
	if classes == nil {
		if classes, err = readEmbeddedNames(modelPath); err != nil {
			return nil, err
		}
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()
	if intraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(intraOpThreads); err != nil {
			return nil, errors.Wrap(err, "failed to set intra-op threads")
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath,
		[]string{in.Name}, []string{out.Name}, options)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ONNX session")
	}

	return &Server{
		session: session,
		metadata: Metadata{
			Path:        modelPath,
			Classes:     classes,
			InputName:   in.Name,
			OutputName:  out.Name,
			InputWidth:  int(inputShape[3]),
			InputHeight: int(inputShape[2]),
			OutputShape: outputShape,
		},
	}, nil
}

// readEmbeddedNames returns an empty map when the exporter wrote no names.
func readEmbeddedNames(modelPath string) (map[int]string, error) {
	meta, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read model metadata")
	}
	defer meta.Destroy()

	raw, ok, err := meta.LookupCustomMetadataMap("names")
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up class names")
	}
	if !ok {
		return map[int]string{}, nil
	}
	return ParseNames(raw)
}

// Detect implements Handle. Tensors are allocated per call so concurrent
// requests can share the session.
func (s *Server) Detect(img image.Image, confThreshold float32) ([]Box, error) {
	md := s.metadata
	inputData, lb := preprocessImage(img, md.InputWidth, md.InputHeight)

	inputTensor, err := ort.NewTensor(ort.NewShape(1, 3, int64(md.InputHeight), int64(md.InputWidth)), inputData)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(md.OutputShape...))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create output tensor")
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor}); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	return decodeOutput(outputTensor.GetData(), md.OutputShape, confThreshold, lb)
}

// Metadata implements Handle.
func (s *Server) Metadata() Metadata {
	return s.metadata
}

// Close implements Handle.
func (s *Server) Close() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

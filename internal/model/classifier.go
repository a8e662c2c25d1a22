package model

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	Channels  = 3
	ImageSize = 224
)

type Options struct {
	// Candidates is the checkpoint search order.
	Candidates  []string
	Device      string
	LibraryPath string
}

// Classifier runs the checkpoint's network. It is immutable after
// construction and safe for concurrent use: every call allocates its own
// tensors.
type Classifier struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	classes    []string
	device     string
	modelPath  string
}

// NewClassifier resolves and loads the checkpoint, checks that the network
// produces one score per class and warms the session up.
func NewClassifier(opts Options) (*Classifier, error) {
	modelPath, err := ResolveCheckpoint(opts.Candidates)
	if err != nil {
		return nil, err
	}
	log.Infof("Loading model from: %s", modelPath)

	if err := InitRuntime(opts.LibraryPath); err != nil {
		return nil, err
	}

	ckpt, err := LoadCheckpoint(modelPath)
	if err != nil {
		return nil, err
	}
	log.Infof("Found %d classes: %v", len(ckpt.Classes), ckpt.Classes)

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model info: %w", err)
	}
	inputName, outputName, err := validateIO(inputs, outputs, len(ckpt.Classes))
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		inputName:  inputName,
		outputName: outputName,
		classes:    ckpt.Classes,
		modelPath:  modelPath,
	}
	device, err := startOnDevice(opts.Device, c.start)
	if err != nil {
		return nil, err
	}
	c.device = device
	log.Infof("Model loaded on %s", device)

	return c, nil
}

// start opens a session on device and runs a warm-up inference through it.
// On failure the session is released and c is left without one.
func (c *Classifier) start(device string) error {
	sessOpts, err := sessionOptions(device)
	if err != nil {
		return err
	}
	defer sessOpts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(c.modelPath,
		[]string{c.inputName}, []string{c.outputName}, sessOpts)
	if err != nil {
		return fmt.Errorf("failed to create ONNX session on %s: %w", device, err)
	}
	c.session = session

	if _, err := c.Scores(make([]float32, InputLen)); err != nil {
		c.Close()
		return fmt.Errorf("warm-up inference on %s failed: %w", device, err)
	}
	return nil
}

// InputLen is the number of values in one preprocessed image.
const InputLen = Channels * ImageSize * ImageSize

// validateIO picks the image input and score output and checks their shapes
// against the class count.
func validateIO(inputs, outputs []ort.InputOutputInfo, numClasses int) (string, string, error) {
	if len(inputs) != 1 {
		return "", "", fmt.Errorf("%w: expected 1 input, got %d", ErrInvalidInput, len(inputs))
	}
	in := inputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat {
		return "", "", fmt.Errorf("%w: input %q is %v, want float", ErrInvalidInput, in.Name, in.DataType)
	}
	want := []int64{1, Channels, ImageSize, ImageSize}
	if len(in.Dimensions) != len(want) {
		return "", "", fmt.Errorf("%w: input %q has shape %v, want %v", ErrInvalidInput, in.Name, in.Dimensions, want)
	}
	for i, d := range in.Dimensions {
		if d >= 0 && d != want[i] {
			return "", "", fmt.Errorf("%w: input %q has shape %v, want %v", ErrInvalidInput, in.Name, in.Dimensions, want)
		}
	}

	if len(outputs) == 0 {
		return "", "", fmt.Errorf("%w: model has no outputs", ErrInvalidInput)
	}
	out := outputs[0]
	if len(out.Dimensions) != 2 {
		return "", "", fmt.Errorf("%w: output %q has shape %v, want [1 %d]", ErrClassCountMismatch, out.Name, out.Dimensions, numClasses)
	}
	if n := out.Dimensions[1]; n >= 0 && n != int64(numClasses) {
		return "", "", fmt.Errorf("%w: output has %d values, checkpoint lists %d classes", ErrClassCountMismatch, n, numClasses)
	}

	return in.Name, out.Name, nil
}

// Scores runs one forward pass over a preprocessed CHW image and returns
// the raw logits.
func (c *Classifier) Scores(input []float32) ([]float32, error) {
	if len(input) != InputLen {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidInput, InputLen, len(input))
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, Channels, ImageSize, ImageSize), input)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(c.classes))))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := c.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	src := outputTensor.GetData()
	if len(src) != len(c.classes) {
		return nil, fmt.Errorf("%w: got %d values for %d classes", ErrClassCountMismatch, len(src), len(c.classes))
	}
	logits := make([]float32, len(src))
	copy(logits, src)
	return logits, nil
}

// Predict returns the topK most probable classes for a preprocessed image.
func (c *Classifier) Predict(input []float32, topK int) ([]Prediction, error) {
	logits, err := c.Scores(input)
	if err != nil {
		return nil, err
	}
	return TopK(Softmax(logits), c.classes, topK), nil
}

func (c *Classifier) Classes() []string {
	out := make([]string, len(c.classes))
	copy(out, c.classes)
	return out
}

func (c *Classifier) Device() string    { return c.device }
func (c *Classifier) ModelPath() string { return c.modelPath }

func (c *Classifier) Close() {
	if c.session != nil {
		if err := c.session.Destroy(); err != nil {
			log.Warnf("destroy ONNX session: %v", err)
		}
		c.session = nil
	}
}

package model

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

func imageInput(dims ...int64) []ort.InputOutputInfo {
	return []ort.InputOutputInfo{{
		Name:       "input",
		Dimensions: ort.NewShape(dims...),
		DataType:   ort.TensorElementDataTypeFloat,
	}}
}

func scoreOutput(dims ...int64) []ort.InputOutputInfo {
	return []ort.InputOutputInfo{{
		Name:       "output",
		Dimensions: ort.NewShape(dims...),
		DataType:   ort.TensorElementDataTypeFloat,
	}}
}

func TestValidateIO(t *testing.T) {
	in, out, err := validateIO(imageInput(1, 3, 224, 224), scoreOutput(1, 4), 4)
	require.NoError(t, err)
	assert.Equal(t, "input", in)
	assert.Equal(t, "output", out)

	_, _, err = validateIO(imageInput(-1, 3, 224, 224), scoreOutput(-1, -1), 4)
	assert.NoError(t, err)
}

func TestValidateIOClassCountMismatch(t *testing.T) {
	_, _, err := validateIO(imageInput(1, 3, 224, 224), scoreOutput(1, 1000), 4)
	assert.ErrorIs(t, err, ErrClassCountMismatch)

	_, _, err = validateIO(imageInput(1, 3, 224, 224), scoreOutput(1, 4, 1), 4)
	assert.ErrorIs(t, err, ErrClassCountMismatch)
}

func TestValidateIOBadInput(t *testing.T) {
	_, _, err := validateIO(imageInput(1, 1, 48, 48), scoreOutput(1, 4), 4)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = validateIO(imageInput(3, 224, 224), scoreOutput(1, 4), 4)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = validateIO(nil, scoreOutput(1, 4), 4)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = validateIO(imageInput(1, 3, 224, 224), nil, 4)
	assert.ErrorIs(t, err, ErrInvalidInput)

	ints := imageInput(1, 3, 224, 224)
	ints[0].DataType = ort.TensorElementDataTypeInt64
	_, _, err = validateIO(ints, scoreOutput(1, 4), 4)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

// The tests below need a real checkpoint and the ONNX Runtime shared library.
func testModelPath(t *testing.T) string {
	t.Helper()
	path := os.Getenv("WHEAT_TEST_MODEL")
	if path == "" {
		t.Skip("WHEAT_TEST_MODEL not set; skipping ONNX Runtime tests")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("model file not found: %v", err)
	}
	return path
}

func TestClassifierPredict(t *testing.T) {
	path := testModelPath(t)

	c, err := NewClassifier(Options{
		Candidates:  []string{path},
		Device:      DeviceCPU,
		LibraryPath: os.Getenv("ONNXRUNTIME_LIB"),
	})
	require.NoError(t, err)
	defer c.Close()

	assert.Equal(t, DeviceCPU, c.Device())
	assert.Equal(t, path, c.ModelPath())
	require.NotEmpty(t, c.Classes())

	logits, err := c.Scores(make([]float32, InputLen))
	require.NoError(t, err)
	assert.Len(t, logits, len(c.Classes()))

	preds, err := c.Predict(make([]float32, InputLen), len(c.Classes())+5)
	require.NoError(t, err)
	assert.Len(t, preds, len(c.Classes()))

	_, err = c.Predict(make([]float32, 10), 1)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

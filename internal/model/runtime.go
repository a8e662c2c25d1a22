package model

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
	DeviceAuto = "auto"
)

var ortEnv struct {
	once sync.Once
	err  error
}

// InitRuntime initializes the process-wide ONNX Runtime environment. Only
// the first call has any effect.
func InitRuntime(libPath string) error {
	ortEnv.once.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		ortEnv.err = ort.InitializeEnvironment()
	})
	if ortEnv.err != nil {
		return fmt.Errorf("failed to initialize ONNX environment: %w", ortEnv.err)
	}
	return nil
}

// ShutdownRuntime releases the ONNX Runtime environment.
func ShutdownRuntime() {
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Warnf("destroy ONNX environment: %v", err)
		}
	}
}

// startOnDevice calls start for the requested device and returns the device
// that ended up running. With auto, any CUDA failure (provider, session
// creation or warm-up) is retried on the CPU.
func startOnDevice(device string, start func(device string) error) (string, error) {
	switch device {
	case DeviceCPU, DeviceCUDA:
		if err := start(device); err != nil {
			return "", err
		}
		return device, nil
	case DeviceAuto, "":
		err := start(DeviceCUDA)
		if err == nil {
			return DeviceCUDA, nil
		}
		log.Warnf("CUDA unavailable, using CPU: %v", err)
		if err := start(DeviceCPU); err != nil {
			return "", err
		}
		return DeviceCPU, nil
	default:
		return "", fmt.Errorf("unknown device %q (want cpu, cuda or auto)", device)
	}
}

// sessionOptions builds session options for a concrete device.
func sessionOptions(device string) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	if device == DeviceCUDA {
		if err := appendCUDA(opts); err != nil {
			opts.Destroy()
			return nil, fmt.Errorf("CUDA requested but unavailable: %w", err)
		}
	}
	return opts, nil
}

func appendCUDA(opts *ort.SessionOptions) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOpts.Destroy()

	if err := cudaOpts.Update(map[string]string{"device_id": "0"}); err != nil {
		return err
	}
	return opts.AppendExecutionProviderCUDA(cudaOpts)
}

package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

// classesKey is the ONNX custom metadata property holding the JSON class list.
const classesKey = "classes"

// ResolveCheckpoint returns the first candidate that exists as a regular file.
func ResolveCheckpoint(candidates []string) (string, error) {
	for _, p := range candidates {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			log.WithField("path", p).Debug("checkpoint candidate not usable")
			continue
		}
		if info.Mode().IsRegular() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w. Checked: %v. Set MODEL_PATH or run the fetcher first", ErrCheckpointNotFound, candidates)
}

// LoadCheckpoint reads the class list for the checkpoint at path, first from
// the embedded ONNX metadata and then from the sidecar JSON file. The ONNX
// Runtime environment must already be initialized.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	classes, err := embeddedClasses(path)
	if err != nil {
		return nil, err
	}
	if classes == nil {
		classes, err = sidecarClasses(SidecarPath(path))
		if err != nil {
			return nil, err
		}
	}
	if len(classes) == 0 {
		return nil, ErrMissingClasses
	}
	return &Checkpoint{Path: path, Classes: classes}, nil
}

func embeddedClasses(path string) ([]string, error) {
	md, err := ort.GetModelMetadata(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}
	defer md.Destroy()

	raw, ok, err := md.LookupCustomMetadataMap(classesKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q metadata: %w", classesKey, err)
	}
	if !ok {
		return nil, nil
	}
	return ParseClasses(raw)
}

// SidecarPath is where a checkpoint's metadata document is expected.
func SidecarPath(checkpoint string) string {
	return checkpoint + ".json"
}

func sidecarClasses(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrMissingClasses
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if len(metadata.Classes) == 0 {
		return nil, ErrMissingClasses
	}
	return metadata.Classes, nil
}

// ParseClasses decodes a class list stored as a JSON array of strings.
func ParseClasses(raw string) ([]string, error) {
	var classes []string
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &classes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingClasses, err)
	}
	if len(classes) == 0 {
		return nil, ErrMissingClasses
	}
	return classes, nil
}

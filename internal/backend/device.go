package backend

import (
	"fmt"
	"strings"
)

const (
	Auto = "auto"
	CPU  = "cpu"
	GPU  = "gpu"
)

// AllLayers asks the engine to offload every layer.
const AllLayers = 999

// NormalizeDevice validates a device name. Empty means auto.
func NormalizeDevice(name string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(name))
	switch d {
	case "":
		return Auto, nil
	case Auto, CPU, GPU:
		return d, nil
	case "cuda", "metal", "vulkan":
		return GPU, nil
	default:
		return "", fmt.Errorf("unknown device %q (expected auto, cpu, or gpu)", name)
	}
}

// GPULayersFor resolves how many layers to offload. requested > 0 is an
// explicit layer count and wins for gpu and auto. gpuAvailable is consulted
// only for auto.
func GPULayersFor(device string, requested int, gpuAvailable bool) (int, error) {
	d, err := NormalizeDevice(device)
	if err != nil {
		return 0, err
	}
	switch d {
	case CPU:
		return 0, nil
	case GPU:
		if requested > 0 {
			return requested, nil
		}
		return AllLayers, nil
	default:
		if !gpuAvailable {
			return 0, nil
		}
		if requested > 0 {
			return requested, nil
		}
		return AllLayers, nil
	}
}

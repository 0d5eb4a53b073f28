// Package accel detects the host accelerator and selects a torch build tag.
//
// Detection asks nvidia-smi for the driver's CUDA version and maps it to one
// of three build tags: cu121 for CUDA 12.x drivers, cu118 for CUDA 11.x, and
// cpu when no usable NVIDIA driver is present. Each tag carries a fallback
// chain so an install that fails on a CUDA wheel can degrade to the next
// compatible build, ending at cpu.
//
// GPU and CPU inventory for the doctor report comes from ghw and cpuid.
package accel

package disk

// Device selection and partition layout constants.
const (
	// MinDriveSize filters out media too small for a Windows installer (4GB).
	MinDriveSize = 4_000_000_000

	// GPTDataPartitionSuffix is the data slice on a GPT-formatted device.
	// Slice 1 is the EFI system partition, slice 2 holds the data volume.
	GPTDataPartitionSuffix = "s2"

	// MBRDataPartitionSuffix is the single data slice on an MBR device.
	MBRDataPartitionSuffix = "s1"
)

// DataPartition resolves the partition that carries the data volume after a
// whole-device erase with the given scheme.
func DataPartition(devicePath string, gpt bool) string {
	if gpt {
		return devicePath + GPTDataPartitionSuffix
	}
	return devicePath + MBRDataPartitionSuffix
}

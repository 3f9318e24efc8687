package disk

import (
	"howett.net/plist"

	"github.com/usbforge/usbforge/pkg/errors"
)

// SystemPartitions mirrors the output of "diskutil list -plist".
type SystemPartitions struct {
	AllDisks   []string `plist:"AllDisks"`
	WholeDisks []string `plist:"WholeDisks"`
}

// DiskInfo mirrors the fields of "diskutil info -plist <device>" used by the
// pipeline.
type DiskInfo struct {
	DeviceIdentifier string `plist:"DeviceIdentifier"`
	DeviceNode       string `plist:"DeviceNode"`
	MediaName        string `plist:"MediaName"`
	VolumeName       string `plist:"VolumeName"`
	MountPoint       string `plist:"MountPoint"`
	TotalSize        int64  `plist:"TotalSize"`
	RemovableMedia   bool   `plist:"RemovableMedia"`
	Ejectable        bool   `plist:"Ejectable"`
	WholeDisk        bool   `plist:"WholeDisk"`
	Internal         bool   `plist:"Internal"`
}

// AttachEntity is one system entity reported by "hdiutil attach -plist".
type AttachEntity struct {
	DevEntry   string `plist:"dev-entry"`
	MountPoint string `plist:"mount-point"`
}

// AttachInfo mirrors the output of "hdiutil attach -plist".
type AttachInfo struct {
	SystemEntities []AttachEntity `plist:"system-entities"`
}

func parseSystemPartitions(data []byte) (*SystemPartitions, error) {
	var parts SystemPartitions
	if _, err := plist.Unmarshal(data, &parts); err != nil {
		return nil, errors.Wrap(err, "failed to parse diskutil list output")
	}
	return &parts, nil
}

func parseDiskInfo(data []byte) (*DiskInfo, error) {
	var info DiskInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(err, "failed to parse diskutil info output")
	}
	return &info, nil
}

func parseAttachInfo(data []byte) (*AttachInfo, error) {
	var info AttachInfo
	if _, err := plist.Unmarshal(data, &info); err != nil {
		return nil, errors.Wrap(err, "failed to parse hdiutil attach output")
	}
	return &info, nil
}

// driveFromInfo converts diskutil metadata into a Drive snapshot. The second
// return is false for devices the pipeline must never offer as targets:
// non-removable media and anything below MinDriveSize.
func driveFromInfo(info *DiskInfo) (Drive, bool) {
	removable := info.RemovableMedia || info.Ejectable
	if !removable || info.Internal {
		return Drive{}, false
	}
	if info.TotalSize < MinDriveSize {
		return Drive{}, false
	}
	name := info.MediaName
	if name == "" {
		name = info.DeviceIdentifier
	}
	return Drive{
		ID:         info.DeviceIdentifier,
		Name:       name,
		DevicePath: info.DeviceNode,
		Size:       info.TotalSize,
		Removable:  true,
	}, true
}

// mountPointFromAttach picks the mounted volume out of an hdiutil attach
// result. Partition-map and EFI entities carry no mount point.
func mountPointFromAttach(info *AttachInfo) string {
	for _, entity := range info.SystemEntities {
		if entity.MountPoint != "" {
			return entity.MountPoint
		}
	}
	return ""
}

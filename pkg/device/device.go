// Package device talks to Tachyon boards connected in EDL update mode: it
// enumerates them, waits for one to appear, reads what the board reports
// about itself and writes images and the configuration partition.
package device

import (
	"context"
	"fmt"
	"io"
)

// USBVersion is the negotiated USB protocol version of the connection.
type USBVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// Slow reports whether the link is USB 2 or older.
func (v USBVersion) Slow() bool {
	return v.Major <= 2
}

func (v USBVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Device is a board in update mode.
type Device struct {
	ID  string     `json:"id"`
	USB USBVersion `json:"usb"`
	// Port is the platform location of the device, e.g. a sysfs name.
	Port string `json:"port,omitempty"`
}

// Partition is one entry of the board's partition table.
type Partition struct {
	Label       string `json:"label"`
	LUN         int    `json:"lun"`
	StartSector int64  `json:"startSector"`
	Sectors     int64  `json:"sectors"`
	SectorSize  int    `json:"sectorSize"`
}

// Size is the partition size in bytes.
func (p Partition) Size() int64 {
	return p.Sectors * int64(p.SectorSize)
}

// Info is what the board reports about itself.
type Info struct {
	DeviceID   string      `json:"deviceId"`
	Region     string      `json:"region"`
	OSVersion  string      `json:"osVersion"`
	Partitions []Partition `json:"partitions"`
}

// Partition returns the partition labelled label.
func (i *Info) Partition(label string) (Partition, bool) {
	for _, p := range i.Partitions {
		if p.Label == label {
			return p, true
		}
	}
	return Partition{}, false
}

// Enumerator lists the devices currently in update mode.
type Enumerator interface {
	List(ctx context.Context) ([]Device, error)
}

// InfoReader reads the device's self-reported information. Tool output is
// appended to log.
type InfoReader interface {
	ReadInfo(ctx context.Context, dev Device, log io.Writer) (*Info, error)
}

// Flasher writes to the device. Tool output is appended to log.
type Flasher interface {
	// FlashPackage writes a complete OS package.
	FlashPackage(ctx context.Context, dev Device, packagePath string, skipReset bool, log io.Writer) error
	// FlashProgram writes the partitions described by the program XML among
	// files, reading the data files next to it.
	FlashProgram(ctx context.Context, dev Device, files []string, skipReset bool, log io.Writer) error
}

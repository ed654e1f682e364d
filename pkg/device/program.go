package device

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/beevik/etree"
	"github.com/edl-tools/tachyon-setup/pkg/errors"
)

// MiscPartition is where the configuration blob is written.
const MiscPartition = "misc"

// ProgramFileName is the program XML written next to a partition image.
func ProgramFileName(label string) string {
	return "rawprogram_" + label + ".xml"
}

// WriteProgramXML writes a program XML into the directory of dataPath that
// tells the flasher to write dataPath into the partition part. The data must
// fit the partition.
func WriteProgramXML(part Partition, dataPath string) (string, error) {
	fi, err := os.Stat(dataPath)
	if err != nil {
		return "", errors.Wrap(err, "failed to stat partition image")
	}
	if part.SectorSize <= 0 || part.Sectors <= 0 {
		return "", fmt.Errorf("partition %s has no usable geometry", part.Label)
	}
	if fi.Size() > part.Size() {
		return "", fmt.Errorf("%s is %d bytes, partition %s holds %d", filepath.Base(dataPath), fi.Size(), part.Label, part.Size())
	}

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" ?`)
	data := doc.CreateElement("data")
	prog := data.CreateElement("program")

	sectorSize := int64(part.SectorSize)
	prog.CreateAttr("SECTOR_SIZE_IN_BYTES", strconv.Itoa(part.SectorSize))
	prog.CreateAttr("file_sector_offset", "0")
	prog.CreateAttr("filename", filepath.Base(dataPath))
	prog.CreateAttr("label", part.Label)
	prog.CreateAttr("num_partition_sectors", strconv.FormatInt(part.Sectors, 10))
	prog.CreateAttr("partofsingleimage", "false")
	prog.CreateAttr("physical_partition_number", strconv.Itoa(part.LUN))
	prog.CreateAttr("readbackverify", "false")
	prog.CreateAttr("size_in_KB", strconv.FormatFloat(float64(part.Size())/1024, 'f', 1, 64))
	prog.CreateAttr("sparse", "false")
	prog.CreateAttr("start_byte_hex", fmt.Sprintf("0x%x", part.StartSector*sectorSize))
	prog.CreateAttr("start_sector", strconv.FormatInt(part.StartSector, 10))

	doc.Indent(2)

	path := filepath.Join(filepath.Dir(dataPath), ProgramFileName(part.Label))
	if err := doc.WriteToFile(path); err != nil {
		return "", errors.Wrap(err, "failed to write program xml")
	}

	slog.Info("program_xml_written", "path", path, "partition", part.Label, "bytes", fi.Size())
	return path, nil
}

// ReadProgramXML returns the partition and file name described by a program
// XML written by WriteProgramXML.
func ReadProgramXML(path string) (Partition, string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return Partition{}, "", errors.Wrap(err, "failed to read program xml")
	}
	prog := doc.FindElement("/data/program")
	if prog == nil {
		return Partition{}, "", fmt.Errorf("%s has no program element", path)
	}

	var p Partition
	var err error
	p.Label = prog.SelectAttrValue("label", "")
	if p.LUN, err = strconv.Atoi(prog.SelectAttrValue("physical_partition_number", "")); err != nil {
		return Partition{}, "", errors.Wrap(err, "invalid physical_partition_number")
	}
	if p.SectorSize, err = strconv.Atoi(prog.SelectAttrValue("SECTOR_SIZE_IN_BYTES", "")); err != nil {
		return Partition{}, "", errors.Wrap(err, "invalid SECTOR_SIZE_IN_BYTES")
	}
	if p.StartSector, err = strconv.ParseInt(prog.SelectAttrValue("start_sector", ""), 10, 64); err != nil {
		return Partition{}, "", errors.Wrap(err, "invalid start_sector")
	}
	if p.Sectors, err = strconv.ParseInt(prog.SelectAttrValue("num_partition_sectors", ""), 10, 64); err != nil {
		return Partition{}, "", errors.Wrap(err, "invalid num_partition_sectors")
	}
	return p, prog.SelectAttrValue("filename", ""), nil
}

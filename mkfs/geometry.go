// Package mkfs builds a fresh FAT12/16/32 volume: it picks or validates a
// geometry, then writes the boot sector, both FAT copies, the root
// directory, and an optional volume label.
package mkfs

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/dargueta/gofat"
)

// Geometry is one predefined disk layout, analogous to the teacher's
// DiskGeometry but carrying FAT-specific BPB fields directly instead of
// physical track/head/sector counts a formatter would have to derive them
// from.
type Geometry struct {
	Slug              string `csv:"slug"`
	Name              string `csv:"name"`
	BytesPerSector    uint16 `csv:"bytes_per_sector"`
	SectorsPerCluster uint8  `csv:"sectors_per_cluster"`
	ReservedSectors   uint16 `csv:"reserved_sectors"`
	NumFATs           uint8  `csv:"num_fats"`
	RootEntries       uint16 `csv:"root_entries"`
	TotalSectors      uint32 `csv:"total_sectors"`
	MediaDescriptor   uint8  `csv:"media_descriptor"`
	FATSizeSectors    uint32 `csv:"fat_size_sectors"`
	SectorsPerTrack   uint16 `csv:"sectors_per_track"`
	Heads             uint16 `csv:"heads"`
}

//go:embed geometries.csv
var geometriesCSV string

var predefinedGeometries map[string]Geometry

func init() {
	predefinedGeometries = make(map[string]Geometry)
	reader := strings.NewReader(geometriesCSV)
	err := gocsv.UnmarshalToCallback(reader, func(row Geometry) error {
		if _, exists := predefinedGeometries[row.Slug]; exists {
			return fmt.Errorf("mkfs: duplicate predefined geometry slug %q", row.Slug)
		}
		predefinedGeometries[row.Slug] = row
		return nil
	})
	if err != nil {
		panic(err)
	}
}

// GetPredefinedGeometry looks up a built-in floppy geometry by slug (see
// geometries.csv for the full list: 360k, 720k, 1200k, 1440k, 2880k).
func GetPredefinedGeometry(slug string) (Geometry, error) {
	g, ok := predefinedGeometries[slug]
	if !ok {
		return Geometry{}, fmt.Errorf("mkfs: no predefined geometry named %q", slug)
	}
	return g, nil
}

// PredefinedGeometrySlugs lists every built-in geometry slug, in CSV order,
// for CLI help text.
func PredefinedGeometrySlugs() []string {
	out := make([]string, 0, len(predefinedGeometries))
	reader := strings.NewReader(geometriesCSV)
	_ = gocsv.UnmarshalToCallback(reader, func(row Geometry) error {
		out = append(out, row.Slug)
		return nil
	})
	return out
}

// rootDirSectors returns how many sectors the fixed root directory's
// RootEntries 32-byte entries occupy; dataSectors returns how many sectors
// remain for data clusters once the reserved region, both FATs, and that
// root directory are accounted for.
func (g Geometry) rootDirSectors() uint32 {
	bytes := uint32(g.RootEntries) * 32
	return (bytes + uint32(g.BytesPerSector) - 1) / uint32(g.BytesPerSector)
}

func (g Geometry) dataSectors() uint32 {
	return g.TotalSectors - uint32(g.ReservedSectors) - uint32(g.NumFATs)*g.FATSizeSectors - g.rootDirSectors()
}

// fatType classifies this geometry exactly as bpb.Classify does once
// formatted, so callers can tell ahead of time which width's packing rules
// Format will use.
func (g Geometry) fatType() gofat.FatType {
	dataClusters := g.dataSectors() / uint32(g.SectorsPerCluster)
	return gofat.ClassifyFatType(dataClusters)
}

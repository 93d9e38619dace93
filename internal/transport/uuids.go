package transport

import (
	"fmt"

	"github.com/google/uuid"
)

// BaseUUID is the vendor base; the XXXX group is replaced by a 16-bit short id.
const BaseUUID = "4A98XXXX-E7C1-EFDE-C757-F1267DD021E8"

// Short ids of the sensor service and its characteristics.
const (
	ShortService    uint16 = 0x1623
	ShortDimensions uint16 = 0x1624
	ShortData       uint16 = 0x1625
)

var (
	ServiceUUID    = CharacteristicUUID(ShortService)
	DimensionsUUID = CharacteristicUUID(ShortDimensions)
	DataUUID       = CharacteristicUUID(ShortData)
)

// CharacteristicUUID expands a short id into the vendor's 128-bit UUID.
func CharacteristicUUID(short uint16) uuid.UUID {
	return uuid.MustParse(fmt.Sprintf("4a98%04x-e7c1-efde-c757-f1267dd021e8", short))
}

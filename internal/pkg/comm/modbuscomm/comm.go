package modbuscomm

import "fmt"

// ModbusComm reads and writes named registers.
type ModbusComm interface {
	Read([]Register) (map[string]float64, error)
	Write([]Register, map[string]float64) error
}

// DataType defines the type of Modbus register for encoding/decoding
type DataType string

// Constants of DataType
const (
	u16 DataType = "u16"
	u32 DataType = "u32"
	u64 DataType = "u64"
	i16 DataType = "i16"
	i32 DataType = "i32"
	i64 DataType = "i64"
	f32 DataType = "f32"
	f64 DataType = "f64"
)

// Access is the register read/write type
type Access string

// Constants of Access
const (
	ReadOnly  Access = "read-only"
	WriteOnly Access = "write-only"
	ReadWrite Access = "read-write"
)

// Endian byte order of Modbus register for encoding/decoding
type Endian string

// Constants of Endian
const (
	littleEndian Endian = "little"
	bigEndian    Endian = "big"
)

// Register contains the data required to read and write a Modbus register.
// Values are multiplied by Scale after decoding and divided by it before
// encoding; a zero Scale is treated as 1.
type Register struct {
	Name       string   `json:"Name" yaml:"name"`
	Address    uint16   `json:"Address" yaml:"address"`
	DataType   DataType `json:"DataType" yaml:"type"`
	AccessType Access   `json:"Access" yaml:"access"`
	Endianness Endian   `json:"Endianness" yaml:"endian"`
	Scale      float64  `json:"Scale" yaml:"scale"`
}

// Validate checks the register type, access and byte order.
func (r Register) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("register at address %d has no name", r.Address)
	}
	if sizeOf(r.DataType) == 0 {
		return fmt.Errorf("register %s: data type %q is not supported", r.Name, r.DataType)
	}
	switch r.AccessType {
	case ReadOnly, WriteOnly, ReadWrite:
	default:
		return fmt.Errorf("register %s: access %q is not supported", r.Name, r.AccessType)
	}
	switch r.Endianness {
	case "", bigEndian, littleEndian:
	default:
		return fmt.Errorf("register %s: endianness %q is not supported", r.Name, r.Endianness)
	}
	return nil
}

func (r Register) scale() float64 {
	if r.Scale == 0 {
		return 1
	}
	return r.Scale
}

// FilterRegisters returns registers from array with matching access type
func FilterRegisters(r []Register, a Access) []Register {
	filtered := make([]Register, 0)
	for _, reg := range r {
		if reg.AccessType == a || reg.AccessType == ReadWrite {
			filtered = append(filtered, reg)
		}
	}
	return filtered
}

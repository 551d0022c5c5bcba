package modbuscomm

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

// Poller reads and writes holding registers of one Modbus TCP target.
type Poller struct {
	mux     *sync.Mutex
	handler *modbus.TCPClientHandler
	logger  *zap.Logger
}

// PollerConfig is the configuration format for Poller
type PollerConfig struct {
	IPAddr  string `json:"IPAddr" yaml:"ip_addr"`
	Port    string `json:"Port" yaml:"port"`
	SlaveID byte   `json:"SlaveID" yaml:"slave_id"`
	Timeout int    `json:"Timeout" yaml:"timeout"` // ms
}

// NewPoller is a factory for the Poller struct
func NewPoller(cfg PollerConfig, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := modbus.NewTCPClientHandler(cfg.IPAddr + ":" + cfg.Port)
	handler.Timeout = time.Millisecond * time.Duration(cfg.Timeout)
	handler.SlaveId = cfg.SlaveID

	return &Poller{
		mux:     &sync.Mutex{},
		handler: handler,
		logger:  logger.Named("modbus").With(zap.String("target", handler.Address)),
	}
}

// Read returns the scaled value of every register that could be read. The
// first failure is returned alongside the values that succeeded.
func (m *Poller) Read(registers []Register) (map[string]float64, error) {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.handler.Connect(); err != nil {
		return nil, err
	}
	defer m.handler.Close()

	client := modbus.NewClient(m.handler)
	values := make(map[string]float64, len(registers))
	var err error
	for _, register := range registers {
		resp, readErr := client.ReadHoldingRegisters(register.Address, sizeOf(register.DataType))
		if readErr != nil {
			m.logger.Debug("read failed", zap.String("register", register.Name), zap.Error(readErr))
			if err == nil {
				err = fmt.Errorf("read %s: %w", register.Name, readErr)
			}
			continue
		}
		values[register.Name] = decode(resp, register) * register.scale()
	}
	return values, err
}

// Write encodes and writes every named value.
func (m *Poller) Write(registers []Register, values map[string]float64) error {
	m.mux.Lock()
	defer m.mux.Unlock()
	if err := m.handler.Connect(); err != nil {
		return err
	}
	defer m.handler.Close()

	client := modbus.NewClient(m.handler)
	var err error
	for name, val := range values {
		register, ok := findByName(registers, name)
		if !ok {
			if err == nil {
				err = fmt.Errorf("register %s not found", name)
			}
			continue
		}
		b := encode(val/register.scale(), register)
		if _, writeErr := client.WriteMultipleRegisters(register.Address, sizeOf(register.DataType), b); writeErr != nil && err == nil {
			err = fmt.Errorf("write %s: %w", name, writeErr)
		}
	}
	return err
}

func findByName(registers []Register, name string) (Register, bool) {
	for _, register := range registers {
		if register.Name == name {
			return register, true
		}
	}
	return Register{}, false
}

// encode converts a float64 into register bytes
func encode(val float64, register Register) []byte {
	var bytes []byte
	endian := getByteOrder(register.Endianness)
	switch register.DataType {
	case u16:
		bytes = make([]byte, 2)
		endian.PutUint16(bytes, uint16(val))
	case i16:
		bytes = make([]byte, 2)
		endian.PutUint16(bytes, uint16(int16(val)))
	case u32:
		bytes = make([]byte, 4)
		endian.PutUint32(bytes, uint32(val))
	case i32:
		bytes = make([]byte, 4)
		endian.PutUint32(bytes, uint32(int32(val)))
	case f32:
		bytes = make([]byte, 4)
		endian.PutUint32(bytes, math.Float32bits(float32(val)))
	case u64:
		bytes = make([]byte, 8)
		endian.PutUint64(bytes, uint64(val))
	case i64:
		bytes = make([]byte, 8)
		endian.PutUint64(bytes, uint64(int64(val)))
	case f64:
		bytes = make([]byte, 8)
		endian.PutUint64(bytes, math.Float64bits(val))
	}
	return bytes
}

// decode converts register bytes into a float64
func decode(bytes []byte, register Register) float64 {
	endian := getByteOrder(register.Endianness)
	switch register.DataType {
	case u16:
		return float64(endian.Uint16(bytes))
	case i16:
		return float64(int16(endian.Uint16(bytes)))
	case u32:
		return float64(endian.Uint32(bytes))
	case i32:
		return float64(int32(endian.Uint32(bytes)))
	case f32:
		return float64(math.Float32frombits(endian.Uint32(bytes)))
	case u64:
		return float64(endian.Uint64(bytes))
	case i64:
		return float64(int64(endian.Uint64(bytes)))
	case f64:
		return math.Float64frombits(endian.Uint64(bytes))
	}
	return math.NaN()
}

// getByteOrder returns the binary.ByteOrder for the register, big endian by
// default
func getByteOrder(e Endian) binary.ByteOrder {
	if e == littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// sizeOf returns the number of u16 registers for the datatype
func sizeOf(t DataType) uint16 {
	switch t {
	case u16, i16:
		return 1
	case u32, i32, f32:
		return 2
	case u64, i64, f64:
		return 4
	}
	return 0
}

package master

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/openecat/go-ecat/ecat"
)

// eepromBusyBit is set in the EEPROM control/status register while the slave
// controller executes a command.
const eepromBusyBit = 0x8000

const eepromPollTimeout = 100 * time.Millisecond

// eepromReadWord reads one 16-bit word from a slave's SII EEPROM.
func (m *Master) eepromReadWord(station uint16, word uint16) (uint16, error) {
	var addr [4]byte
	binary.LittleEndian.PutUint32(addr[:], uint32(word))
	if _, err := m.fpwr(station, ecat.RegEEPROMAddr, addr[:]); err != nil {
		return 0, err
	}
	if _, err := m.fpwrU16(station, ecat.RegEEPROMCtlStat, ecat.EEPROMReadCommand); err != nil {
		return 0, err
	}

	deadline := time.Now().Add(eepromPollTimeout)
	for {
		stat, wkc, err := m.fprdU16(station, ecat.RegEEPROMCtlStat)
		if err != nil {
			return 0, err
		}
		if wkc > 0 && stat&eepromBusyBit == 0 {
			break
		}
		if time.Now().After(deadline) {
			return 0, fmt.Errorf("EEPROM read of word 0x%04X timed out on station 0x%04X", word, station)
		}
	}

	data, wkc, err := m.fprd(station, ecat.RegEEPROMData, 4)
	if err != nil {
		return 0, err
	}
	if wkc == 0 {
		return 0, ecat.ErrFrameTimeout
	}

	return binary.LittleEndian.Uint16(data[0:2]), nil
}

// eepromReadU32 reads a 32-bit value stored as two consecutive SII words.
func (m *Master) eepromReadU32(station uint16, word uint16) (uint32, error) {
	lo, err := m.eepromReadWord(station, word)
	if err != nil {
		return 0, err
	}
	hi, err := m.eepromReadWord(station, word+1)
	if err != nil {
		return 0, err
	}

	return uint32(lo) | uint32(hi)<<16, nil
}

// EEPROMRead reads one word of the device's SII EEPROM. The identity and
// mailbox bootstrap words are read automatically during the scan; this is for
// category data beyond the fixed area.
func (d *Device) EEPROMRead(word uint16) (uint16, error) {
	return d.m.eepromReadWord(d.station, word)
}

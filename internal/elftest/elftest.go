// Package elftest synthesises small, valid ELF shared objects for tests.
//
// The generated file has one PT_LOAD segment and four sections
// (null, .text, .data, .shstrtab). .data optionally carries a fripack sentinel.
package elftest

import (
	"debug/elf"
	"encoding/binary"
)

const (
	tagA = 0x0d000721
	tagB = 0x1f8a4e2b
)

// Options describes the binary to build. The zero value is a 64-bit
// little-endian aarch64 object with a blank version 1 sentinel.
type Options struct {
	Class   elf.Class
	Order   binary.ByteOrder
	Machine elf.Machine

	// Text is the .text content. Defaults to 32 bytes of 0xAA.
	Text []byte
	// DataPrefix is placed in .data before the sentinel.
	DataPrefix []byte
	// Sentinel overrides the encoded sentinel. Nil means BlankSentinel(1).
	Sentinel []byte
	// NoSentinel leaves the sentinel out of .data.
	NoSentinel bool
	// DataSuffix is placed in .data after the sentinel.
	DataSuffix []byte
}

// Fixture is a built binary and the absolute offset of its sentinel (-1 when absent).
type Fixture struct {
	Data           []byte
	SentinelOffset int
	DataOffset     int
}

// BlankSentinel encodes an unpatched sentinel with the given version.
func BlankSentinel(version int32) []byte {
	return EncodeSentinel(version, 0, 0, false)
}

// EncodeSentinel encodes the 21-byte little-endian sentinel layout.
func EncodeSentinel(version, size, offset int32, compressed bool) []byte {
	b := make([]byte, 21)
	binary.LittleEndian.PutUint32(b[0:], tagA)
	binary.LittleEndian.PutUint32(b[4:], tagB)
	binary.LittleEndian.PutUint32(b[8:], uint32(version))
	binary.LittleEndian.PutUint32(b[12:], uint32(size))
	binary.LittleEndian.PutUint32(b[16:], uint32(offset))
	if compressed {
		b[20] = 1
	}
	return b
}

// Tags returns the 8 tag bytes alone, useful for planting decoys.
func Tags() []byte {
	return BlankSentinel(1)[:8]
}

type shdr struct {
	name, typ        uint32
	flags, off, size uint64
	addralign        uint64
}

// Build returns a fixture for opts.
func Build(opts Options) Fixture {
	if opts.Class == elf.ELFCLASSNONE {
		opts.Class = elf.ELFCLASS64
	}
	if opts.Order == nil {
		opts.Order = binary.LittleEndian
	}
	if opts.Machine == elf.EM_NONE {
		if opts.Class == elf.ELFCLASS64 {
			opts.Machine = elf.EM_AARCH64
		} else {
			opts.Machine = elf.EM_ARM
		}
	}
	if opts.Text == nil {
		opts.Text = make([]byte, 32)
		for i := range opts.Text {
			opts.Text[i] = 0xAA
		}
	}
	sentinel := opts.Sentinel
	if sentinel == nil {
		sentinel = BlankSentinel(1)
	}

	is64 := opts.Class == elf.ELFCLASS64
	ehsize, phentsize, shentsize := 52, 32, 40
	if is64 {
		ehsize, phentsize, shentsize = 64, 56, 64
	}

	buf := make([]byte, ehsize+phentsize)

	textOff := len(buf)
	buf = append(buf, opts.Text...)
	buf = pad(buf, 8)

	dataOff := len(buf)
	buf = append(buf, opts.DataPrefix...)
	buf = pad(buf, 8)
	sentinelOff := -1
	if !opts.NoSentinel {
		sentinelOff = len(buf)
		buf = append(buf, sentinel...)
	}
	buf = append(buf, opts.DataSuffix...)
	dataEnd := len(buf)

	strtab := []byte("\x00.text\x00.data\x00.shstrtab\x00")
	strOff := len(buf)
	buf = append(buf, strtab...)
	buf = pad(buf, 8)
	shoff := len(buf)

	sections := []shdr{
		{},
		{name: 1, typ: uint32(elf.SHT_PROGBITS), flags: uint64(elf.SHF_ALLOC | elf.SHF_EXECINSTR), off: uint64(textOff), size: uint64(len(opts.Text)), addralign: 4},
		{name: 7, typ: uint32(elf.SHT_PROGBITS), flags: uint64(elf.SHF_ALLOC | elf.SHF_WRITE), off: uint64(dataOff), size: uint64(dataEnd - dataOff), addralign: 8},
		{name: 13, typ: uint32(elf.SHT_STRTAB), off: uint64(strOff), size: uint64(len(strtab)), addralign: 1},
	}
	o := opts.Order
	for _, s := range sections {
		sh := make([]byte, shentsize)
		o.PutUint32(sh[0:], s.name)
		o.PutUint32(sh[4:], s.typ)
		if is64 {
			o.PutUint64(sh[8:], s.flags)
			o.PutUint64(sh[16:], s.off) // addr == offset, single segment at vaddr 0
			o.PutUint64(sh[24:], s.off)
			o.PutUint64(sh[32:], s.size)
			o.PutUint64(sh[48:], s.addralign)
		} else {
			o.PutUint32(sh[8:], uint32(s.flags))
			o.PutUint32(sh[12:], uint32(s.off))
			o.PutUint32(sh[16:], uint32(s.off))
			o.PutUint32(sh[20:], uint32(s.size))
			o.PutUint32(sh[32:], uint32(s.addralign))
		}
		buf = append(buf, sh...)
	}

	// ELF header
	copy(buf[0:4], elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(opts.Class)
	if o == binary.ByteOrder(binary.BigEndian) {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	o.PutUint16(buf[16:], uint16(elf.ET_DYN))
	o.PutUint16(buf[18:], uint16(opts.Machine))
	o.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	if is64 {
		o.PutUint64(buf[32:], uint64(ehsize))
		o.PutUint64(buf[40:], uint64(shoff))
		o.PutUint16(buf[52:], uint16(ehsize))
		o.PutUint16(buf[54:], uint16(phentsize))
		o.PutUint16(buf[56:], 1)
		o.PutUint16(buf[58:], uint16(shentsize))
		o.PutUint16(buf[60:], uint16(len(sections)))
		o.PutUint16(buf[62:], 3)
	} else {
		o.PutUint32(buf[28:], uint32(ehsize))
		o.PutUint32(buf[32:], uint32(shoff))
		o.PutUint16(buf[40:], uint16(ehsize))
		o.PutUint16(buf[42:], uint16(phentsize))
		o.PutUint16(buf[44:], 1)
		o.PutUint16(buf[46:], uint16(shentsize))
		o.PutUint16(buf[48:], uint16(len(sections)))
		o.PutUint16(buf[50:], 3)
	}

	// PT_LOAD covering everything up to the end of .data
	ph := buf[ehsize : ehsize+phentsize]
	o.PutUint32(ph[0:], uint32(elf.PT_LOAD))
	if is64 {
		o.PutUint32(ph[4:], uint32(elf.PF_R|elf.PF_X))
		o.PutUint64(ph[32:], uint64(dataEnd))
		o.PutUint64(ph[40:], uint64(dataEnd))
		o.PutUint64(ph[48:], 0x1000)
	} else {
		o.PutUint32(ph[16:], uint32(dataEnd))
		o.PutUint32(ph[20:], uint32(dataEnd))
		o.PutUint32(ph[24:], uint32(elf.PF_R|elf.PF_X))
		o.PutUint32(ph[28:], 0x1000)
	}

	return Fixture{Data: buf, SentinelOffset: sentinelOff, DataOffset: dataOff}
}

// Bare returns an ELF header of the given class and byte order with no program
// or section headers, followed by tail.
func Bare(class elf.Class, o binary.ByteOrder, tail []byte) []byte {
	ehsize := 52
	if class == elf.ELFCLASS64 {
		ehsize = 64
	}
	buf := make([]byte, ehsize, ehsize+len(tail))
	copy(buf[0:4], elf.ELFMAG)
	buf[elf.EI_CLASS] = byte(class)
	if o == binary.ByteOrder(binary.BigEndian) {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2MSB)
	} else {
		buf[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	}
	buf[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	o.PutUint16(buf[16:], uint16(elf.ET_DYN))
	o.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	if class == elf.ELFCLASS64 {
		o.PutUint16(buf[18:], uint16(elf.EM_AARCH64))
		o.PutUint16(buf[52:], uint16(ehsize))
	} else {
		o.PutUint16(buf[18:], uint16(elf.EM_ARM))
		o.PutUint16(buf[40:], uint16(ehsize))
	}
	return append(buf, tail...)
}

func pad(b []byte, align int) []byte {
	for len(b)%align != 0 {
		b = append(b, 0)
	}
	return b
}

package inject

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"math"
)

const (
	// shstrtabName names the section name table created for section-less inputs.
	shstrtabName = ".shstrtab"

	// Payload sections start on this boundary.
	sectionAlign = 16

	elf32HeaderSize  = 52
	elf64HeaderSize  = 64
	elf32SectionSize = 40
	elf64SectionSize = 64
)

// elfLayout captures the class dependent field positions of the ELF header.
type elfLayout struct {
	class       elf.Class
	headerSize  int
	sectionSize int
	tableAlign  int

	shoffAt     int
	shentsizeAt int
	shnumAt     int
	shstrndxAt  int
}

var (
	layout32 = elfLayout{
		class:       elf.ELFCLASS32,
		headerSize:  elf32HeaderSize,
		sectionSize: elf32SectionSize,
		tableAlign:  4,
		shoffAt:     32,
		shentsizeAt: 46,
		shnumAt:     48,
		shstrndxAt:  50,
	}
	layout64 = elfLayout{
		class:       elf.ELFCLASS64,
		headerSize:  elf64HeaderSize,
		sectionSize: elf64SectionSize,
		tableAlign:  8,
		shoffAt:     40,
		shentsizeAt: 58,
		shnumAt:     60,
		shstrndxAt:  62,
	}
)

// sectionHeader is a class independent view of Elf32_Shdr / Elf64_Shdr.
type sectionHeader struct {
	Name      uint32
	Type      uint32
	Flags     uint64
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	AddrAlign uint64
	EntSize   uint64
}

// elfImage is the parsed subset of an ELF file needed to append a section.
type elfImage struct {
	layout   elfLayout
	order    binary.ByteOrder
	shoff    uint64
	shstrndx int
	sections []sectionHeader
}

func parseELF(data []byte) (*elfImage, error) {
	if len(data) < elf.EI_NIDENT || string(data[:4]) != elfMagic {
		return nil, fmt.Errorf("%w: missing ELF identity", ErrRewrite)
	}

	img := &elfImage{}
	switch elf.Class(data[elf.EI_CLASS]) {
	case elf.ELFCLASS32:
		img.layout = layout32
	case elf.ELFCLASS64:
		img.layout = layout64
	default:
		return nil, fmt.Errorf("%w: unknown ELF class %d", ErrRewrite, data[elf.EI_CLASS])
	}
	switch elf.Data(data[elf.EI_DATA]) {
	case elf.ELFDATA2LSB:
		img.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		img.order = binary.BigEndian
	default:
		return nil, fmt.Errorf("%w: unknown ELF data encoding %d", ErrRewrite, data[elf.EI_DATA])
	}

	l := img.layout
	if len(data) < l.headerSize {
		return nil, fmt.Errorf("%w: truncated %s header (%d bytes)", ErrRewrite, l.class, len(data))
	}

	img.shoff = img.readAddr(data[l.shoffAt:])
	shentsize := int(img.order.Uint16(data[l.shentsizeAt:]))
	shnum := int(img.order.Uint16(data[l.shnumAt:]))
	shstrndx := int(img.order.Uint16(data[l.shstrndxAt:]))

	if img.shoff == 0 {
		if shnum != 0 || shstrndx != int(elf.SHN_UNDEF) {
			return nil, fmt.Errorf("%w: %d sections (names at %d) declared without a section header table", ErrRewrite, shnum, shstrndx)
		}
		// Section-less binary: AppendSection builds the table from scratch.
		return img, nil
	}
	if shnum == 0 || shstrndx == int(elf.SHN_XINDEX) {
		return nil, fmt.Errorf("%w: extended section numbering is not supported", ErrRewrite)
	}
	if shentsize != l.sectionSize {
		return nil, fmt.Errorf("%w: section header size %d, expected %d", ErrRewrite, shentsize, l.sectionSize)
	}
	if shstrndx >= shnum {
		return nil, fmt.Errorf("%w: section name table index %d out of range (%d sections)", ErrRewrite, shstrndx, shnum)
	}
	tableEnd := img.shoff + uint64(shnum)*uint64(shentsize)
	if tableEnd < img.shoff || tableEnd > uint64(len(data)) {
		return nil, fmt.Errorf("%w: section header table [%d,%d) exceeds file size %d", ErrRewrite, img.shoff, tableEnd, len(data))
	}

	img.shstrndx = shstrndx
	img.sections = make([]sectionHeader, shnum)
	for i := range img.sections {
		start := int(img.shoff) + i*shentsize
		img.sections[i] = img.decodeSection(data[start : start+shentsize])
	}
	return img, nil
}

func (img *elfImage) readAddr(b []byte) uint64 {
	if img.layout.class == elf.ELFCLASS32 {
		return uint64(img.order.Uint32(b))
	}
	return img.order.Uint64(b)
}

func (img *elfImage) decodeSection(b []byte) sectionHeader {
	o := img.order
	if img.layout.class == elf.ELFCLASS32 {
		return sectionHeader{
			Name:      o.Uint32(b[0:]),
			Type:      o.Uint32(b[4:]),
			Flags:     uint64(o.Uint32(b[8:])),
			Addr:      uint64(o.Uint32(b[12:])),
			Offset:    uint64(o.Uint32(b[16:])),
			Size:      uint64(o.Uint32(b[20:])),
			Link:      o.Uint32(b[24:]),
			Info:      o.Uint32(b[28:]),
			AddrAlign: uint64(o.Uint32(b[32:])),
			EntSize:   uint64(o.Uint32(b[36:])),
		}
	}
	return sectionHeader{
		Name:      o.Uint32(b[0:]),
		Type:      o.Uint32(b[4:]),
		Flags:     o.Uint64(b[8:]),
		Addr:      o.Uint64(b[16:]),
		Offset:    o.Uint64(b[24:]),
		Size:      o.Uint64(b[32:]),
		Link:      o.Uint32(b[40:]),
		Info:      o.Uint32(b[44:]),
		AddrAlign: o.Uint64(b[48:]),
		EntSize:   o.Uint64(b[56:]),
	}
}

func (img *elfImage) appendSection(dst []byte, s sectionHeader) []byte {
	o := img.order
	var b [elf64SectionSize]byte
	if img.layout.class == elf.ELFCLASS32 {
		o.PutUint32(b[0:], s.Name)
		o.PutUint32(b[4:], s.Type)
		o.PutUint32(b[8:], uint32(s.Flags))
		o.PutUint32(b[12:], uint32(s.Addr))
		o.PutUint32(b[16:], uint32(s.Offset))
		o.PutUint32(b[20:], uint32(s.Size))
		o.PutUint32(b[24:], s.Link)
		o.PutUint32(b[28:], s.Info)
		o.PutUint32(b[32:], uint32(s.AddrAlign))
		o.PutUint32(b[36:], uint32(s.EntSize))
		return append(dst, b[:elf32SectionSize]...)
	}
	o.PutUint32(b[0:], s.Name)
	o.PutUint32(b[4:], s.Type)
	o.PutUint64(b[8:], s.Flags)
	o.PutUint64(b[16:], s.Addr)
	o.PutUint64(b[24:], s.Offset)
	o.PutUint64(b[32:], s.Size)
	o.PutUint32(b[40:], s.Link)
	o.PutUint32(b[44:], s.Info)
	o.PutUint64(b[48:], s.AddrAlign)
	o.PutUint64(b[56:], s.EntSize)
	return append(dst, b[:]...)
}

// sectionName returns the NUL-terminated name at off in the string table.
func sectionName(strtab []byte, off uint32) string {
	if int(off) >= len(strtab) {
		return ""
	}
	s := strtab[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}

// AppendSection returns a re-serialized copy of the ELF in data with one more
// section named name holding content. data itself is not modified.
//
// Every existing byte keeps its offset: the payload, a rebuilt section name
// table and a new section header table are appended after the original file
// contents and the ELF header is repointed at the new table. Program headers,
// symbols and relocations are untouched. A binary without a section header
// table gets a fresh one holding a null section, .shstrtab and the new section.
func AppendSection(data []byte, name string, content []byte, flags elf.SectionFlag) ([]byte, error) {
	if _, err := elf.NewFile(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("%w: parse input: %v", ErrRewrite, err)
	}
	img, err := parseELF(data)
	if err != nil {
		return nil, err
	}

	var (
		base     []sectionHeader
		strndx   int
		oldNames []byte
	)
	if len(img.sections) == 0 {
		base = []sectionHeader{
			{},
			{Name: 1, Type: uint32(elf.SHT_STRTAB), AddrAlign: 1},
		}
		strndx = 1
		oldNames = []byte("\x00" + shstrtabName + "\x00")
	} else {
		strHdr := img.sections[img.shstrndx]
		if elf.SectionType(strHdr.Type) != elf.SHT_STRTAB {
			return nil, fmt.Errorf("%w: section %d is %s, expected SHT_STRTAB", ErrRewrite, img.shstrndx, elf.SectionType(strHdr.Type))
		}
		strEnd := strHdr.Offset + strHdr.Size
		if strEnd < strHdr.Offset || strEnd > uint64(len(data)) {
			return nil, fmt.Errorf("%w: section name table [%d,%d) exceeds file size %d", ErrRewrite, strHdr.Offset, strEnd, len(data))
		}
		base = img.sections
		strndx = img.shstrndx
		oldNames = data[strHdr.Offset:strEnd]
	}
	for i, s := range base {
		if sectionName(oldNames, s.Name) == name {
			return nil, fmt.Errorf("%w: section %q already present at index %d", ErrStructure, name, i)
		}
	}

	count := len(base) + 1
	if count >= int(elf.SHN_LORESERVE) {
		return nil, fmt.Errorf("%w: %d sections would require extended numbering", ErrRewrite, count)
	}

	names := make([]byte, 0, len(oldNames)+len(name)+2)
	names = append(names, oldNames...)
	if len(names) == 0 || names[len(names)-1] != 0 {
		names = append(names, 0)
	}
	nameOff := uint32(len(names))
	names = append(names, name...)
	names = append(names, 0)

	l := img.layout
	out := make([]byte, len(data), len(data)+sectionAlign+len(content)+len(names)+l.tableAlign+count*l.sectionSize)
	copy(out, data)

	out = padTo(out, sectionAlign)
	contentOff := uint64(len(out))
	out = append(out, content...)

	namesOff := uint64(len(out))
	out = append(out, names...)

	out = padTo(out, l.tableAlign)
	shoff := uint64(len(out))

	sections := make([]sectionHeader, 0, count)
	sections = append(sections, base...)
	sections[strndx].Offset = namesOff
	sections[strndx].Size = uint64(len(names))
	sections = append(sections, sectionHeader{
		Name:      nameOff,
		Type:      uint32(elf.SHT_PROGBITS),
		Flags:     uint64(flags),
		Offset:    contentOff,
		Size:      uint64(len(content)),
		AddrAlign: 1,
	})
	for _, s := range sections {
		out = img.appendSection(out, s)
	}

	if l.class == elf.ELFCLASS32 && uint64(len(out)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: output of %d bytes exceeds ELF32 offsets", ErrRewrite, len(out))
	}
	if l.class == elf.ELFCLASS32 {
		img.order.PutUint32(out[l.shoffAt:], uint32(shoff))
	} else {
		img.order.PutUint64(out[l.shoffAt:], shoff)
	}
	img.order.PutUint16(out[l.shentsizeAt:], uint16(l.sectionSize))
	img.order.PutUint16(out[l.shnumAt:], uint16(count))
	img.order.PutUint16(out[l.shstrndxAt:], uint16(strndx))

	if _, err := sectionOffset(out, name); err != nil {
		return nil, fmt.Errorf("%w: verify output: %v", ErrRewrite, err)
	}
	return out, nil
}

// sectionOffset resolves the file offset of the named section via debug/elf.
func sectionOffset(data []byte, name string) (int64, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	s := f.Section(name)
	if s == nil {
		return 0, fmt.Errorf("section %q not found", name)
	}
	return int64(s.Offset), nil
}

func padTo(b []byte, align int) []byte {
	if rem := len(b) % align; rem != 0 {
		b = append(b, make([]byte, align-rem)...)
	}
	return b
}

package inject

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samcharles93/fripack/internal/elftest"
)

type elfVariant struct {
	class elf.Class
	order binary.ByteOrder
}

var elfVariants = []elfVariant{
	{elf.ELFCLASS64, binary.LittleEndian},
	{elf.ELFCLASS64, binary.BigEndian},
	{elf.ELFCLASS32, binary.LittleEndian},
	{elf.ELFCLASS32, binary.BigEndian},
}

func (v elfVariant) String() string {
	return fmt.Sprintf("%s/%s", v.class, v.order)
}

func TestAppendSection(t *testing.T) {
	t.Parallel()

	content := []byte("payload bytes")
	for _, v := range elfVariants {
		t.Run(v.String(), func(t *testing.T) {
			fx := elftest.Build(elftest.Options{Class: v.class, Order: v.order})
			in := bytes.Clone(fx.Data)

			out, err := AppendSection(fx.Data, SectionName, content, elf.SHF_ALLOC|elf.SHF_EXECINSTR)
			require.NoError(t, err)
			assert.Equal(t, in, fx.Data, "input must not be modified")

			headerSize := elf64HeaderSize
			if v.class == elf.ELFCLASS32 {
				headerSize = elf32HeaderSize
			}
			require.Greater(t, len(out), len(in))
			assert.Equal(t, in[headerSize:], out[headerSize:len(in)], "existing bytes must keep their offsets")

			f, err := elf.NewFile(bytes.NewReader(out))
			require.NoError(t, err)
			assert.Equal(t, v.class, f.Class)
			assert.Equal(t, v.order, f.ByteOrder)
			require.Len(t, f.Sections, 5)
			require.Len(t, f.Progs, 1)

			sec := f.Section(SectionName)
			require.NotNil(t, sec)
			assert.Equal(t, elf.SHT_PROGBITS, sec.Type)
			assert.Equal(t, elf.SHF_ALLOC|elf.SHF_EXECINSTR, sec.Flags)
			assert.Zero(t, sec.Offset%sectionAlign)
			got, err := sec.Data()
			require.NoError(t, err)
			assert.Equal(t, content, got)

			orig, err := elf.NewFile(bytes.NewReader(in))
			require.NoError(t, err)
			for _, name := range []string{".text", ".data"} {
				before, after := orig.Section(name), f.Section(name)
				require.NotNil(t, after, name)
				assert.Equal(t, before.SectionHeader, after.SectionHeader, name)
			}
		})
	}
}

func TestAppendSectionDataOnlyFlags(t *testing.T) {
	t.Parallel()

	fx := elftest.Build(elftest.Options{})
	out, err := AppendSection(fx.Data, ".payload", []byte{1}, elf.SHF_ALLOC)
	require.NoError(t, err)

	f, err := elf.NewFile(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, elf.SHF_ALLOC, f.Section(".payload").Flags)
}

func TestAppendSectionEmptyContent(t *testing.T) {
	t.Parallel()

	fx := elftest.Build(elftest.Options{})
	out, err := AppendSection(fx.Data, SectionName, nil, elf.SHF_ALLOC)
	require.NoError(t, err)

	off, err := sectionOffset(out, SectionName)
	require.NoError(t, err)
	assert.Greater(t, off, int64(0))
}

func TestAppendSectionRejectsDuplicate(t *testing.T) {
	t.Parallel()

	fx := elftest.Build(elftest.Options{})
	_, err := AppendSection(fx.Data, ".data", []byte("x"), elf.SHF_ALLOC)
	assert.True(t, errors.Is(err, ErrStructure), "got %v", err)

	once, err := AppendSection(fx.Data, SectionName, []byte("x"), elf.SHF_ALLOC)
	require.NoError(t, err)
	_, err = AppendSection(once, SectionName, []byte("y"), elf.SHF_ALLOC)
	assert.True(t, errors.Is(err, ErrStructure), "got %v", err)
}

func TestAppendSectionWithoutSectionTable(t *testing.T) {
	t.Parallel()

	content := []byte("payload bytes")
	for _, v := range elfVariants {
		t.Run(v.String(), func(t *testing.T) {
			in := elftest.Bare(v.class, v.order, []byte("tail"))
			out, err := AppendSection(in, SectionName, content, elf.SHF_ALLOC|elf.SHF_EXECINSTR)
			require.NoError(t, err)
			assert.Equal(t, in, out[:len(in)])

			f, err := elf.NewFile(bytes.NewReader(out))
			require.NoError(t, err)
			require.Len(t, f.Sections, 3)
			assert.Equal(t, elf.SHT_NULL, f.Sections[0].Type)
			assert.Equal(t, ".shstrtab", f.Sections[1].Name)
			assert.Equal(t, elf.SHT_STRTAB, f.Sections[1].Type)

			sec := f.Section(SectionName)
			require.NotNil(t, sec)
			assert.Equal(t, elf.SHF_ALLOC|elf.SHF_EXECINSTR, sec.Flags)
			assert.Zero(t, sec.Offset%sectionAlign)
			got, err := sec.Data()
			require.NoError(t, err)
			assert.Equal(t, content, got)

			// A second pass sees the synthesized table and rejects the duplicate.
			_, err = AppendSection(out, SectionName, content, elf.SHF_ALLOC)
			assert.True(t, errors.Is(err, ErrStructure), "got %v", err)
		})
	}
}

func TestAppendSectionMalformed(t *testing.T) {
	t.Parallel()

	fx := elftest.Build(elftest.Options{})

	t.Run("truncated", func(t *testing.T) {
		_, err := AppendSection(fx.Data[:40], SectionName, nil, elf.SHF_ALLOC)
		assert.True(t, errors.Is(err, ErrRewrite), "got %v", err)
	})

	t.Run("section table past end", func(t *testing.T) {
		_, err := AppendSection(fx.Data[:len(fx.Data)-8], SectionName, nil, elf.SHF_ALLOC)
		assert.True(t, errors.Is(err, ErrRewrite), "got %v", err)
	})

	t.Run("sections without table", func(t *testing.T) {
		data := bytes.Clone(fx.Data)
		binary.LittleEndian.PutUint64(data[40:], 0)
		_, err := AppendSection(data, SectionName, nil, elf.SHF_ALLOC)
		assert.True(t, errors.Is(err, ErrRewrite), "got %v", err)
	})

	t.Run("bad class", func(t *testing.T) {
		data := bytes.Clone(fx.Data)
		data[elf.EI_CLASS] = 9
		_, err := AppendSection(data, SectionName, nil, elf.SHF_ALLOC)
		assert.True(t, errors.Is(err, ErrRewrite), "got %v", err)
	})
}

func TestSectionName(t *testing.T) {
	t.Parallel()

	tab := []byte("\x00.text\x00.data")
	assert.Equal(t, "", sectionName(tab, 0))
	assert.Equal(t, ".text", sectionName(tab, 1))
	assert.Equal(t, ".data", sectionName(tab, 7))
	assert.Equal(t, "", sectionName(tab, 99))
}

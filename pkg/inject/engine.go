package inject

import (
	"debug/elf"
	"fmt"
)

// Stage is a step of Patch. Stages are passed in order and never revisited.
type Stage int

const (
	StageValidated Stage = iota + 1
	StageInjected
	StageLocated
	StagePatched
)

func (s Stage) String() string {
	switch s {
	case StageValidated:
		return "validate"
	case StageInjected:
		return "inject"
	case StageLocated:
		return "locate"
	case StagePatched:
		return "patch"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// StageError reports the stage Patch was trying to complete when it failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return "inject: " + e.Stage.String() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Options controls Patch.
type Options struct {
	// Compress xz-encodes the payload.
	Compress bool

	// SectionName overrides the payload section name. Defaults to SectionName.
	SectionName string

	// DataOnlySection drops SHF_EXECINSTR from the payload section.
	DataOnlySection bool

	// StrictVersion only accepts sentinels whose version equals SentinelVersion.
	StrictVersion bool
}

func (o Options) sectionName() string {
	if o.SectionName == "" {
		return SectionName
	}
	return o.SectionName
}

func (o Options) sectionFlags() elf.SectionFlag {
	if o.DataOnlySection {
		return elf.SHF_ALLOC
	}
	return elf.SHF_ALLOC | elf.SHF_EXECINSTR
}

func (o Options) finder() func([]byte) (int, bool) {
	if o.StrictVersion {
		return func(b []byte) (int, bool) { return FindSentinelVersion(b, SentinelVersion) }
	}
	return FindSentinel
}

// Result is the output of a successful Patch.
type Result struct {
	// Data is the complete patched binary.
	Data []byte
	// Payload holds the final payload bytes as stored in the new section.
	Payload []byte
	// Sentinel is the structure as written into Data.
	Sentinel Sentinel

	// SentinelBefore and SentinelAfter are the sentinel offsets in the input and output.
	SentinelBefore int
	SentinelAfter  int
	// SectionOffset is the file offset of the payload section in Data.
	SectionOffset int64
}

// Validate checks the container identity: at least SentinelSize bytes starting
// with the ELF magic.
func Validate(data []byte) error {
	if len(data) < SentinelSize {
		return fmt.Errorf("%w: %d bytes, need at least %d", ErrFormat, len(data), SentinelSize)
	}
	if string(data[:len(elfMagic)]) != elfMagic {
		return fmt.Errorf("%w: magic %q, expected %q", ErrFormat, data[:len(elfMagic)], elfMagic)
	}
	return nil
}

// Patch embeds r into the ELF binary in data and returns the patched copy.
// data is not modified. Any failure aborts the whole operation and no output
// is returned; the error is a *StageError wrapping ErrFormat, ErrStructure,
// ErrCodec or ErrRewrite.
func Patch(data []byte, r Record, opts Options) (*Result, error) {
	if err := Validate(data); err != nil {
		return nil, &StageError{Stage: StageValidated, Err: err}
	}

	find := opts.finder()
	before, ok := find(data)
	if !ok {
		return nil, &StageError{Stage: StageValidated, Err: fmt.Errorf(
			"%w: sentinel tags %#08x %#08x not found in %d byte input", ErrStructure, uint32(TagA), uint32(TagB), len(data))}
	}
	payload, err := EncodePayload(r, opts.Compress)
	if err != nil {
		return nil, &StageError{Stage: StageInjected, Err: err}
	}
	name := opts.sectionName()
	out, err := AppendSection(data, name, payload, opts.sectionFlags())
	if err != nil {
		return nil, &StageError{Stage: StageInjected, Err: err}
	}

	loc, err := locate(out, name, find)
	if err != nil {
		return nil, &StageError{Stage: StageLocated, Err: err}
	}

	s, err := patchSentinel(out, loc, len(payload), opts.Compress)
	if err != nil {
		return nil, &StageError{Stage: StagePatched, Err: err}
	}

	return &Result{
		Data:           out,
		Payload:        payload,
		Sentinel:       s,
		SentinelBefore: before,
		SentinelAfter:  loc.sentinel,
		SectionOffset:  loc.section,
	}, nil
}

package inject

import "errors"

var (
	// ErrFormat reports input that is too short or lacks the ELF magic.
	ErrFormat = errors.New("invalid container format")
	// ErrStructure reports a missing sentinel or section, or a producer mismatch.
	ErrStructure = errors.New("structural error")
	// ErrCodec reports a payload serialization or compression failure.
	ErrCodec = errors.New("payload codec error")
	// ErrRewrite reports a failure to parse or re-serialize the ELF container.
	ErrRewrite = errors.New("container rewrite error")
)

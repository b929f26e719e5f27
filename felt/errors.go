package felt

import "errors"

var (
	// ErrOutOfRange indicates a value is negative or not below the field modulus.
	ErrOutOfRange = errors.New("felt: value out of field range")

	// ErrInvalidHex indicates a string is not a valid hex or decimal field element.
	ErrInvalidHex = errors.New("felt: invalid encoding")

	// ErrWordOverflow indicates a field element that should hold a 32-bit word does not fit.
	ErrWordOverflow = errors.New("felt: word exceeds 32 bits")

	// ErrWordCount indicates a word sequence has the wrong length.
	ErrWordCount = errors.New("felt: wrong number of words")

	// ErrPendingWord indicates a ByteArray pending word is inconsistent with its length.
	ErrPendingWord = errors.New("felt: invalid pending word")
)

package bnt

// base nucleotide type tables, 2bit code: A=0 C=1 G=2 T=3

const (
	BaseTypeNum     = 4
	NumBitsInBase   = 2
	NumBaseInUint64 = 32
	BaseMask        = (1 << NumBitsInBase) - 1
)

// BitNtCharUp maps 2bit code to upper case nucleotide char
var BitNtCharUp = [BaseTypeNum]byte{'A', 'C', 'G', 'T'}

// BntRev maps 2bit code to complement code
var BntRev = [BaseTypeNum]byte{3, 2, 1, 0}

// Base2Bnt maps nucleotide char to 2bit code, 4 note unknown base
var Base2Bnt [256]byte

// NtRev maps nucleotide char to complement char
var NtRev [256]byte

func init() {
	for i := 0; i < 256; i++ {
		Base2Bnt[i] = 4
		NtRev[i] = 'N'
	}
	Base2Bnt['A'], Base2Bnt['a'] = 0, 0
	Base2Bnt['C'], Base2Bnt['c'] = 1, 1
	Base2Bnt['G'], Base2Bnt['g'] = 2, 2
	Base2Bnt['T'], Base2Bnt['t'] = 3, 3
	NtRev['A'], NtRev['a'] = 'T', 'T'
	NtRev['C'], NtRev['c'] = 'G', 'G'
	NtRev['G'], NtRev['g'] = 'C', 'C'
	NtRev['T'], NtRev['t'] = 'A', 'A'
}

func ReverseCompByteArr(seq []byte) {
	lenS := len(seq)
	for i := 0; i < lenS/2; i++ {
		seq[i], seq[lenS-1-i] = NtRev[seq[lenS-1-i]], NtRev[seq[i]]
	}
	if lenS%2 == 1 {
		seq[lenS/2] = NtRev[seq[lenS/2]]
	}
}

func GetReverseCompByteArr(seq []byte) []byte {
	rv := make([]byte, len(seq))
	for i, b := range seq {
		rv[len(seq)-1-i] = NtRev[b]
	}
	return rv
}

// RevComp returns the reverse complement of an ACGT string
func RevComp(s string) string {
	return string(GetReverseCompByteArr([]byte(s)))
}

package wire

// SeqDiff returns the signed mod-2^16 distance a-b: positive means a is
// ahead of b, negative means a is behind. Wrap-around is treated as forward
// motion when the magnitude is within half the sequence space (§4.5 tie-
// break, §9 design note). Grounded on the same signed-int16-subtraction
// idiom used for per-sender sequence tracking elsewhere in the pack.
func SeqDiff(a, b uint16) int32 {
	return int32(int16(a - b))
}

// SeqLess reports whether a is strictly older than b in mod-2^16 order.
func SeqLess(a, b uint16) bool {
	return SeqDiff(a, b) < 0
}

// SeqLessOrEqual reports whether a is not newer than b in mod-2^16 order.
func SeqLessOrEqual(a, b uint16) bool {
	return SeqDiff(a, b) <= 0
}

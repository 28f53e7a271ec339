package gateway

import "context"

// fragmentSeq is a lazy, finite, non-restartable sequence of fixed-size
// text fragments cut from one already-computed response. Fragments are cut
// on rune boundaries so multi-byte characters are never split.
type fragmentSeq struct {
	runes []rune
	size  int
	pos   int
}

func newFragmentSeq(text string, size int) *fragmentSeq {
	return &fragmentSeq{runes: []rune(text), size: size}
}

// next returns the following fragment. It observes the cancellation signal
// before producing anything: once ctx is done the sequence ends, and no
// partial fragment is emitted.
func (f *fragmentSeq) next(ctx context.Context) (string, bool) {
	if ctx.Err() != nil || f.pos >= len(f.runes) {
		return "", false
	}
	end := f.pos + f.size
	if end > len(f.runes) {
		end = len(f.runes)
	}
	frag := string(f.runes[f.pos:end])
	f.pos = end
	return frag, true
}

package output

import (
	"strings"
	"unicode"
)

// Unit selects what ErrorRate compares.
type Unit int

const (
	// Words splits on whitespace (WER).
	Words Unit = iota
	// Chars compares individual runes, for scripts without word spacing (CER).
	Chars
)

// Score holds an edit-distance comparison between a reference transcript
// and a hypothesis.
type Score struct {
	Rate          float64 // (Substitutions + Insertions + Deletions) / Reference
	Substitutions int
	Insertions    int
	Deletions     int
	Reference     int // number of reference tokens
}

// ErrorRate compares hypothesis against reference after lowercasing and
// dropping punctuation. An empty reference scores zero.
func ErrorRate(reference, hypothesis string, unit Unit) Score {
	ref := tokens(reference, unit)
	hyp := tokens(hypothesis, unit)
	n, m := len(ref), len(hyp)
	if n == 0 {
		return Score{}
	}

	// dist[i][j] is the edit distance between ref[:i] and hyp[:j].
	dist := make([][]int, n+1)
	for i := range dist {
		dist[i] = make([]int, m+1)
		dist[i][0] = i
	}
	for j := 1; j <= m; j++ {
		dist[0][j] = j
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			cost := 1
			if ref[i-1] == hyp[j-1] {
				cost = 0
			}
			dist[i][j] = min(dist[i-1][j-1]+cost, dist[i-1][j]+1, dist[i][j-1]+1)
		}
	}

	sc := Score{Reference: n}
	for i, j := n, m; i > 0 || j > 0; {
		switch {
		case i > 0 && j > 0 && ref[i-1] == hyp[j-1]:
			i, j = i-1, j-1
		case i > 0 && j > 0 && dist[i][j] == dist[i-1][j-1]+1:
			sc.Substitutions++
			i, j = i-1, j-1
		case i > 0 && dist[i][j] == dist[i-1][j]+1:
			sc.Deletions++
			i--
		default:
			sc.Insertions++
			j--
		}
	}
	sc.Rate = float64(sc.Substitutions+sc.Insertions+sc.Deletions) / float64(n)
	return sc
}

func tokens(s string, unit Unit) []string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
	if unit == Words {
		return strings.Fields(s)
	}
	var out []string
	for _, r := range s {
		if !unicode.IsSpace(r) {
			out = append(out, string(r))
		}
	}
	return out
}

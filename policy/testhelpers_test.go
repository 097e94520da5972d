package policy_test

import (
	"fmt"

	"github.com/justapithecus/sieve/types"
)

func makeEntries(start, n int) []*types.Entry {
	out := make([]*types.Entry, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, &types.Entry{
			Stage: "digest",
			Pos:   types.Position{Offset: int64(i) * 100},
			Data:  []byte(fmt.Sprintf(`{"n":%d}`, i)),
		})
	}
	return out
}

func offsets(entries []*types.Entry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Pos.Offset
	}
	return out
}

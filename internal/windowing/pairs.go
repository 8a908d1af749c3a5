package windowing

import "github.com/petasbytes/vm-agent/memory"

// PairReport lists tool pairing violations, each as tool_use ids in conversation order.
//
// Fields:
// - Orphans: tool_result ids with no earlier tool_use.
// - Dangling: tool_use ids with no later tool_result.
// - Duplicates: tool_use ids answered more than once.
type PairReport struct {
	Orphans    []string
	Dangling   []string
	Duplicates []string
}

// OK reports whether the conversation has no pairing violations.
func (r PairReport) OK() bool {
	return len(r.Orphans) == 0 && len(r.Dangling) == 0 && len(r.Duplicates) == 0
}

// CheckPairs scans msgs oldest to newest and matches tool_result blocks against
// previously seen tool_use blocks. Error results count like any other result.
func CheckPairs(msgs []memory.Message) PairReport {
	var report PairReport
	var order []string
	answered := make(map[string]int)

	for _, m := range msgs {
		for _, blk := range m.Blocks {
			switch blk.Type {
			case memory.BlockToolUse:
				if _, seen := answered[blk.ID]; !seen {
					order = append(order, blk.ID)
					answered[blk.ID] = 0
				}
			case memory.BlockToolResult:
				n, ok := answered[blk.ToolUseID]
				if !ok {
					report.Orphans = append(report.Orphans, blk.ToolUseID)
					continue
				}
				if n == 1 {
					report.Duplicates = append(report.Duplicates, blk.ToolUseID)
				}
				answered[blk.ToolUseID] = n + 1
			}
		}
	}

	for _, id := range order {
		if answered[id] == 0 {
			report.Dangling = append(report.Dangling, id)
		}
	}
	return report
}

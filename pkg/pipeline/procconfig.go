package pipeline

import (
	"fmt"
	"strings"
)

// TasksPerNode is the fixed node geometry of the target machine.
const TasksPerNode = 12

// ProcConfig renders the srun --multi-prog rank layout: the atmosphere model
// on the first nCos ranks, the land/driver executable on the rest. With
// cosmoOnly the second component is omitted.
func ProcConfig(nCos, nCESM int, cosmoExe, cesmExe string, cosmoOnly bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d-%d ./%s\n", 0, nCos-1, cosmoExe)
	if !cosmoOnly {
		fmt.Fprintf(&b, "%d-%d ./%s\n", nCos, nCos+nCESM-1, cesmExe)
	}
	return b.String()
}

// Nodes computes the node count for a total task count, rounded up.
func Nodes(totalTasks int) int {
	return NodesFor(totalTasks, TasksPerNode)
}

// NodesFor computes the node count for a machine with the given node size.
// Non-positive sizes fall back to TasksPerNode.
func NodesFor(totalTasks, tasksPerNode int) int {
	if tasksPerNode <= 0 {
		tasksPerNode = TasksPerNode
	}
	return (totalTasks + tasksPerNode - 1) / tasksPerNode
}

package conversation

// taskPreamble wraps the initial task sent to the coding agent. Follow-up
// instructions from the decision service are sent verbatim.
const taskPreamble = `You are working on a coding task. Work one step at a time: make a single
coherent change, report what you did, and stop. Do not attempt the whole task
in one pass. If a choice is irreversible or the requirements are ambiguous,
ask before acting instead of guessing.

Task:
`

// decisionInstruction is the fixed system prompt for the per-turn
// consultation. The service judges completion, maintains the checklist, and
// proposes the next instruction.
const decisionInstruction = `You supervise a coding agent working on a task. You are given the
conversation transcript and the current task checklist.

Each time you are consulted:
1. Judge whether the overall task is complete. If and only if it is, reply
   with the exact phrase MISSION COMPLETE.
2. Maintain the task checklist: extract it from the agent's output or update
   the existing one. Emit the full checklist as markdown checkboxes between
   <checklist> and </checklist> tags. Always emit the whole checklist, never
   a fragment.
3. If the task is not complete, state the single next instruction for the
   agent as plain imperative text. Keep it short and concrete.

Reply with nothing else.`

// wrapTask applies the preamble to the initial task text.
func wrapTask(task string) string {
	return taskPreamble + task
}

// Package decision turns cycle features into control verdicts.
//
// Two decision makers implement the same Maker interface:
//
//   - Policy, a deterministic priority-ordered rule set (critical,
//     safety shutoff, warning, proactive, none). It is the floor the
//     system never drops below.
//   - Client, an external HTTP reasoner. Its answers pass strict schema
//     validation; any transport or validation failure makes the
//     orchestrator fall back to Policy.
//
// Every verdict, including rejected and failed ones, is appended to the
// SQLite decision trail via HistoryRepository.
package decision
